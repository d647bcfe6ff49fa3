// Package firebolt provides a Go client library for the Firebolt cloud data
// warehouse.
//
// The client logs in with a service account, sends SQL statements to an
// engine over HTTP and decodes the JSON_Compact results into Go values.
// Credentials are cached and shared by all connections of a Client, and a
// request rejected with 401 is retried once after a fresh login.
//
// # Getting Started
//
// Create a client and execute a query:
//
//	client, err := firebolt.NewClient("client-id", "client-secret")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cc := client.NewConnection().Database("my_db").AccountID("account-id")
//	if err := cc.ResolveEngine(ctx, "my_engine"); err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := cc.Query(ctx, "SELECT * FROM my_table")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Parameters
//
// Named parameters are substituted as SQL literals. A name matches
// case-insensitively and only as a whole word:
//
//	result, err := cc.Query(ctx, "SELECT * FROM t WHERE id = @id",
//	    firebolt.Named("@id", 42))
//
// # Session State
//
// SET statements are not sent on their own. They are remembered by the
// connection and replayed ahead of every later statement until ClearSetList
// is called:
//
//	cc.Execute(ctx, "SET time_zone = 'UTC'")
//	cc.Query(ctx, "SELECT now()") // sent as "SET time_zone = 'UTC';\nSELECT now()"
//
// # database/sql
//
// The package registers the "firebolt" driver:
//
//	db, err := sql.Open("firebolt", "firebolt://id:secret@my_db/my_engine?account_name=acme")
package firebolt
