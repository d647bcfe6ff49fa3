// Package oauth2 connects the firebolt-go client to golang.org/x/oauth2. It
// provides Authenticators backed by an oauth2 client_credentials flow or a
// static token, and exposes a client's cached credential as an
// oauth2.TokenSource. It is a separate package to keep the oauth2 dependency
// opt-in.
package oauth2

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	firebolt "github.com/ethanyzhang/firebolt-go"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// StaticTokenLifetime is the lifetime assumed for tokens without an expiry.
const StaticTokenLifetime = time.Hour

// --- Token Source Authenticator ---

type tokenSourceAuthenticator struct {
	ts  oauth2.TokenSource
	now func() time.Time
}

// NewAuthenticator wraps an oauth2.TokenSource as a firebolt.Authenticator.
// The source is asked for a token on every login, so it should not cache
// tokens itself; firebolt.AuthSession does that.
func NewAuthenticator(ts oauth2.TokenSource) firebolt.Authenticator {
	return &tokenSourceAuthenticator{ts: ts, now: time.Now}
}

// NewStaticAuthenticator returns an Authenticator that always logs in with
// token. Use this for pre-obtained, long-lived access tokens.
func NewStaticAuthenticator(token string) firebolt.Authenticator {
	return NewAuthenticator(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// Login implements firebolt.Authenticator.
func (a *tokenSourceAuthenticator) Login(ctx context.Context) (*firebolt.LoginResponse, error) {
	tok, err := a.ts.Token()
	if err != nil {
		return nil, &firebolt.AuthError{Endpoint: "oauth2 token source", Err: err}
	}
	return loginResponse(tok, a.now()), nil
}

func loginResponse(tok *oauth2.Token, now time.Time) *firebolt.LoginResponse {
	lifetime := StaticTokenLifetime
	if !tok.Expiry.IsZero() {
		lifetime = tok.Expiry.Sub(now)
		if lifetime < 0 {
			lifetime = 0
		}
	}
	return &firebolt.LoginResponse{
		AccessToken:  tok.AccessToken,
		ExpiresIn:    json.Number(strconv.FormatInt(int64(lifetime/time.Second), 10)),
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
	}
}

// --- Client Credentials Flow ---

// Config holds OAuth2 client credentials configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string   // Token endpoint URL
	Audience     string   // Optional audience, sent as an endpoint parameter
	Scopes       []string // Optional scopes
}

// validate checks that required fields are set.
func (c *Config) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("oauth2: ClientID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("oauth2: ClientSecret is required")
	}
	if c.TokenURL == "" {
		return fmt.Errorf("oauth2: TokenURL is required")
	}
	return nil
}

type clientCredentialsAuthenticator struct {
	cfg *clientcredentials.Config
	now func() time.Time
}

// NewClientCredentials returns an Authenticator that runs the oauth2
// client_credentials flow each time the AuthSession needs a new token.
func NewClientCredentials(cfg Config) (firebolt.Authenticator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ccCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	if cfg.Audience != "" {
		ccCfg.EndpointParams = url.Values{"audience": {cfg.Audience}}
	}
	return &clientCredentialsAuthenticator{cfg: ccCfg, now: time.Now}, nil
}

// Login implements firebolt.Authenticator.
func (a *clientCredentialsAuthenticator) Login(ctx context.Context) (*firebolt.LoginResponse, error) {
	tok, err := a.cfg.Token(ctx)
	if err != nil {
		return nil, &firebolt.AuthError{Endpoint: a.cfg.TokenURL, Err: err}
	}
	return loginResponse(tok, a.now()), nil
}

// --- Token Source Adapter ---

type sessionTokenSource struct {
	session *firebolt.AuthSession
}

// TokenSource exposes an AuthSession's cached credential as an
// oauth2.TokenSource, e.g. for oauth2.NewClient.
func TokenSource(session *firebolt.AuthSession) oauth2.TokenSource {
	return &sessionTokenSource{session: session}
}

// Token implements oauth2.TokenSource.
func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	cred, err := s.session.GetValidToken(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: cred.Token,
		TokenType:   cred.TokenType,
		Expiry:      cred.ExpiresAt,
	}, nil
}

// --- DSN Integration ---

// DSN parameter names for OAuth2 configuration.
const (
	dsnAccessToken = "access_token"
	dsnTokenURL    = "oauth2_token_url"
	dsnAudience    = "oauth2_audience"
	dsnScopes      = "oauth2_scopes"
)

var oauth2DSNParams = []string{
	dsnAccessToken, dsnTokenURL, dsnAudience, dsnScopes,
}

// parseDSN extracts OAuth2 parameters from a DSN and returns the matching
// Authenticator and the cleaned DSN. It supports two modes:
//
//  1. Static token: access_token=<token>
//  2. Client credentials: the DSN user info plus oauth2_token_url
func parseDSN(dsn string) (firebolt.Authenticator, string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, "", fmt.Errorf("oauth2: invalid DSN: %w", err)
	}

	q := u.Query()
	accessToken := q.Get(dsnAccessToken)
	tokenURL := q.Get(dsnTokenURL)
	audience := q.Get(dsnAudience)
	scopes := q.Get(dsnScopes)

	for _, key := range oauth2DSNParams {
		q.Del(key)
	}
	u.RawQuery = q.Encode()
	cleanDSN := u.String()

	if accessToken != "" {
		return NewStaticAuthenticator(accessToken), cleanDSN, nil
	}

	if tokenURL != "" {
		cfg := Config{TokenURL: tokenURL, Audience: audience}
		if u.User != nil {
			cfg.ClientID = u.User.Username()
			cfg.ClientSecret, _ = u.User.Password()
		}
		if scopes != "" {
			parts := strings.Split(scopes, ",")
			cfg.Scopes = make([]string, 0, len(parts))
			for _, s := range parts {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					cfg.Scopes = append(cfg.Scopes, trimmed)
				}
			}
		}
		a, err := NewClientCredentials(cfg)
		if err != nil {
			return nil, "", err
		}
		return a, cleanDSN, nil
	}

	return nil, cleanDSN, nil
}

// NewConnector creates a driver.Connector that authenticates through
// golang.org/x/oauth2. OAuth2 parameters are stripped from the DSN before it
// is passed to firebolt.NewConnector; without them the built-in login is
// used.
func NewConnector(dsn string, opts ...firebolt.ConnectorOption) (driver.Connector, error) {
	authenticator, cleanDSN, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if authenticator != nil {
		authOpt := firebolt.WithClientOptions(firebolt.WithAuthenticator(authenticator))
		opts = append([]firebolt.ConnectorOption{authOpt}, opts...)
	}
	return firebolt.NewConnector(cleanDSN, opts...)
}
