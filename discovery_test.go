package firebolt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiscoveryClient(t *testing.T, routes map[string]string) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"access_token":"tok","expires_in":"3600"}`)
	})
	for pattern, body := range routes {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, body)
		})
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c, err := NewClient("id", "secret", WithAuthURL(server.URL+"/oauth/token"), WithAPIEndpoint(server.URL+"/"))
	require.NoError(t, err)
	return c
}

func TestResolveAccountID(t *testing.T) {
	c := newDiscoveryClient(t, map[string]string{
		"GET /iam/v2/accounts:getIdByName": `{"account_id":"acc-1"}`,
	})
	id, err := c.ResolveAccountID(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", id)

	_, err = c.ResolveAccountID(context.Background(), "")
	assert.Error(t, err)
}

func TestEngineURLByName(t *testing.T) {
	c := newDiscoveryClient(t, map[string]string{
		"GET /core/v1/accounts/acc-1/engines:getIdByName": `{"engine_id":{"engine_id":"eng-1","account_id":"acc-1"}}`,
		"GET /core/v1/accounts/acc-1/engines/eng-1":       `{"engine":{"endpoint":"eng-1.app.firebolt.io/"}}`,
	})
	u, err := c.EngineURLByName(context.Background(), "acc-1", "main")
	require.NoError(t, err)
	assert.Equal(t, "https://eng-1.app.firebolt.io", u)

	_, err = c.EngineURLByName(context.Background(), "", "main")
	assert.Error(t, err)
}

func TestEngineURLByDatabase(t *testing.T) {
	c := newDiscoveryClient(t, map[string]string{
		"GET /core/v1/accounts/acc-1/engines:getURLByDatabaseName": `{"engine_url":"https://db-engine.example"}`,
	})
	u, err := c.EngineURLByDatabase(context.Background(), "acc-1", "sales")
	require.NoError(t, err)
	assert.Equal(t, "https://db-engine.example", u)
}

func TestDiscovery_MalformedResponses(t *testing.T) {
	c := newDiscoveryClient(t, map[string]string{
		"GET /iam/v2/accounts:getIdByName":                         `not json`,
		"GET /core/v1/accounts/acc-1/engines:getURLByDatabaseName": `{}`,
	})

	_, err := c.ResolveAccountID(context.Background(), "acme")
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)

	_, err = c.EngineURLByDatabase(context.Background(), "acc-1", "sales")
	assert.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, err.Error(), "no engine_url")
}

func TestConnectionContext_Resolve(t *testing.T) {
	c := newDiscoveryClient(t, map[string]string{
		"GET /iam/v2/accounts:getIdByName":                `{"account_id":"acc-1"}`,
		"GET /core/v1/accounts/acc-1/engines:getIdByName": `{"engine_id":{"engine_id":"eng-1"}}`,
		"GET /core/v1/accounts/acc-1/engines/eng-1":       `{"engine":{"endpoint":"engine.example"}}`,
	})
	cc := c.NewConnection()
	require.NoError(t, cc.ResolveAccount(context.Background(), "acme"))
	require.NoError(t, cc.ResolveEngine(context.Background(), "main"))

	engineURL, _, accountID := cc.target()
	assert.Equal(t, "acc-1", accountID)
	assert.Equal(t, "https://engine.example", engineURL)
}
