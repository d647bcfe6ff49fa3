package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	firebolt "github.com/ethanyzhang/firebolt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewStaticAuthenticator(t *testing.T) {
	lr, err := NewStaticAuthenticator("my-jwt-token").Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my-jwt-token", lr.AccessToken)
	assert.Equal(t, "Bearer", lr.TokenType)
	assert.Equal(t, json.Number("3600"), lr.ExpiresIn)
}

func TestLoginResponse_FromExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	lr := loginResponse(&oauth2.Token{AccessToken: "a", Expiry: now.Add(90 * time.Second)}, now)
	assert.Equal(t, json.Number("90"), lr.ExpiresIn)

	lr = loginResponse(&oauth2.Token{AccessToken: "a", Expiry: now.Add(-time.Minute)}, now)
	assert.Equal(t, json.Number("0"), lr.ExpiresIn, "expired tokens report no lifetime")
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) { return nil, errors.New("no token") }

func TestNewAuthenticator_SourceError(t *testing.T) {
	_, err := NewAuthenticator(failingSource{}).Login(context.Background())
	var authErr *firebolt.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, err.Error(), "no token")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing client ID",
			cfg:     Config{ClientSecret: "secret", TokenURL: "http://auth/token"},
			wantErr: "ClientID is required",
		},
		{
			name:    "missing client secret",
			cfg:     Config{ClientID: "id", TokenURL: "http://auth/token"},
			wantErr: "ClientSecret is required",
		},
		{
			name:    "missing token URL",
			cfg:     Config{ClientID: "id", ClientSecret: "secret"},
			wantErr: "TokenURL is required",
		},
		{
			name: "valid config",
			cfg:  Config{ClientID: "id", ClientSecret: "secret", TokenURL: "http://auth/token"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClientCredentials_ValidationError(t *testing.T) {
	_, err := NewClientCredentials(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ClientID is required")
}

func newTokenServer(t *testing.T, issued *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "firebolt-api", r.PostForm.Get("audience"))
		n := issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "cc-token-" + strconv.FormatInt(n, 10),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClientCredentials_Login(t *testing.T) {
	var issued atomic.Int64
	server := newTokenServer(t, &issued)

	a, err := NewClientCredentials(Config{
		ClientID:     "my-client",
		ClientSecret: "my-secret",
		TokenURL:     server.URL,
		Audience:     "firebolt-api",
	})
	require.NoError(t, err)

	lr, err := a.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cc-token-1", lr.AccessToken)
	assert.Equal(t, "Bearer", lr.TokenType)

	// Every login fetches a new token so a relogin after 401 is effective
	lr, err = a.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cc-token-2", lr.AccessToken)
	assert.EqualValues(t, 2, issued.Load())
}

func TestTokenSource(t *testing.T) {
	session := firebolt.NewAuthSession(NewStaticAuthenticator("static"))
	tok, err := TokenSource(session).Token()
	require.NoError(t, err)
	assert.Equal(t, "static", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.True(t, tok.Valid())
}

func TestParseDSN(t *testing.T) {
	t.Run("static token", func(t *testing.T) {
		a, clean, err := parseDSN("firebolt://db?account_id=acc&access_token=tok")
		require.NoError(t, err)
		require.NotNil(t, a)
		assert.Equal(t, "firebolt://db?account_id=acc", clean)
	})

	t.Run("client credentials", func(t *testing.T) {
		a, clean, err := parseDSN("firebolt://id:secret@db?account_id=acc&oauth2_token_url=http://auth/token&oauth2_audience=aud&oauth2_scopes=a,+b")
		require.NoError(t, err)
		cc, ok := a.(*clientCredentialsAuthenticator)
		require.True(t, ok)
		assert.Equal(t, "id", cc.cfg.ClientID)
		assert.Equal(t, "http://auth/token", cc.cfg.TokenURL)
		assert.Equal(t, []string{"a", "b"}, cc.cfg.Scopes)
		assert.Equal(t, "aud", cc.cfg.EndpointParams.Get("audience"))
		assert.Equal(t, "firebolt://id:secret@db?account_id=acc", clean)
	})

	t.Run("client credentials without user info", func(t *testing.T) {
		_, _, err := parseDSN("firebolt://db?account_id=acc&oauth2_token_url=http://auth/token")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ClientID is required")
	})

	t.Run("no oauth2 parameters", func(t *testing.T) {
		a, clean, err := parseDSN("firebolt://id:secret@db?account_id=acc")
		require.NoError(t, err)
		assert.Nil(t, a)
		assert.Equal(t, "firebolt://id:secret@db?account_id=acc", clean)
	})
}

func TestNewConnector(t *testing.T) {
	_, err := NewConnector("firebolt://db?account_id=acc&access_token=tok")
	require.NoError(t, err)

	// Without a token or credentials the connector cannot build a client
	connector, err := NewConnector("firebolt://db?account_id=acc")
	require.NoError(t, err)
	_, err = connector.Connect(context.Background())
	assert.Error(t, err)

	_, err = NewConnector("firebolt://db?access_token=tok&unknown=1")
	assert.Error(t, err)
}
