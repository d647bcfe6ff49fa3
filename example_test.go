package firebolt_test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"testing"
	"time"

	firebolt "github.com/ethanyzhang/firebolt-go"
	fboauth2 "github.com/ethanyzhang/firebolt-go/fireboltauth/oauth2"
)

// =============================================================================
// Getting Started Examples
//
// These tests serve as executable documentation showing how to use firebolt-go.
// They are skipped by default because they require a Firebolt account and a
// service account with access to it.
// =============================================================================

const exampleDSN = "firebolt://client-id:client-secret@my_db/my_engine?account_name=my_account"

// --- database/sql Interface ---

func TestExample_DatabaseSQL_BasicQuery(t *testing.T) {
	t.Skip("requires a Firebolt account")

	db, err := sql.Open("firebolt", exampleDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	rows, err := db.QueryContext(context.Background(), "SELECT 1 AS id, 'hello' AS greeting")
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var greeting string
		if err := rows.Scan(&id, &greeting); err != nil {
			log.Fatal(err)
		}
		fmt.Println(id, greeting)
	}
}

func TestExample_DatabaseSQL_Parameters(t *testing.T) {
	t.Skip("requires a Firebolt account")

	db, err := sql.Open("firebolt", exampleDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	// Positional parameters
	var n int64
	err = db.QueryRow("SELECT count(*) FROM events WHERE kind = ? AND day >= ?",
		"click", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)).Scan(&n)
	if err != nil {
		log.Fatal(err)
	}

	// Named parameters replace @name placeholders
	err = db.QueryRow("SELECT count(*) FROM events WHERE kind = @kind",
		sql.Named("kind", "view")).Scan(&n)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(n)
}

func TestExample_DatabaseSQL_SessionSettings(t *testing.T) {
	t.Skip("requires a Firebolt account")

	db, err := sql.Open("firebolt", exampleDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	// SET statements apply to every later statement on this connection
	if _, err := conn.ExecContext(ctx, "SET time_zone = 'UTC'"); err != nil {
		log.Fatal(err)
	}

	var now time.Time
	if err := conn.QueryRowContext(ctx, "SELECT now()").Scan(&now); err != nil {
		log.Fatal(err)
	}

	// Drop the settings before handing the connection back to the pool
	err = conn.Raw(func(c any) error {
		c.(interface{ ClearSetList() }).ClearSetList()
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
}

func TestExample_DatabaseSQL_Arrays(t *testing.T) {
	t.Skip("requires a Firebolt account")

	db, err := sql.Open("firebolt", exampleDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	var tags firebolt.NullArray[string]
	if err := db.QueryRow("SELECT ['a', 'b']").Scan(&tags); err != nil {
		log.Fatal(err)
	}
	fmt.Println(tags.Valid, tags.Array)
}

func TestExample_DatabaseSQL_OAuth2StaticToken(t *testing.T) {
	t.Skip("requires a Firebolt account")

	connector, err := fboauth2.NewConnector(
		"firebolt://my_db/my_engine?account_name=my_account&access_token=eyJhbGciOi...")
	if err != nil {
		log.Fatal(err)
	}
	db := sql.OpenDB(connector)
	defer db.Close()
}

// --- Low-Level Client ---

func TestExample_LowLevel_BasicQuery(t *testing.T) {
	t.Skip("requires a Firebolt account")

	ctx := context.Background()
	client, err := firebolt.NewClient("client-id", "client-secret")
	if err != nil {
		log.Fatal(err)
	}

	cc := client.NewConnection().Database("my_db")
	if err := cc.ResolveAccount(ctx, "my_account"); err != nil {
		log.Fatal(err)
	}
	if err := cc.ResolveEngine(ctx, "my_engine"); err != nil {
		log.Fatal(err)
	}

	result, err := cc.Query(ctx, "SELECT * FROM events WHERE id = @id", firebolt.Named("@id", 7))
	if err != nil {
		log.Fatal(err)
	}
	for _, row := range result.Rows {
		fmt.Println(row...)
	}
	fmt.Println("elapsed:", result.Statistics.Duration())
}

func TestExample_LowLevel_ConnectionIsolation(t *testing.T) {
	t.Skip("requires a Firebolt account")

	ctx := context.Background()
	client, _ := firebolt.NewClient("client-id", "client-secret")
	base := client.NewConnection().Database("my_db").AccountID("account-id").EngineURL("engine.example.app.firebolt.io")

	// Clones share the credential cache but not SET statements
	reporting := base.Clone()
	if _, err := reporting.Execute(ctx, "SET enable_result_cache = false"); err != nil {
		log.Fatal(err)
	}
	if _, err := base.Query(ctx, "SELECT 1"); err != nil {
		log.Fatal(err)
	}
}

func TestExample_LowLevel_Cancellation(t *testing.T) {
	t.Skip("requires a Firebolt account")

	client, _ := firebolt.NewClient("client-id", "client-secret")
	cc := client.NewConnection().Database("my_db").AccountID("account-id")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := cc.Query(ctx, "SELECT count(*) FROM huge_table"); err != nil {
		fmt.Println("query failed:", err)
	}
}
