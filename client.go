package firebolt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	DefaultAPIEndpoint = "https://api.app.firebolt.io"
	DefaultUserAgent   = "firebolt-go/" + Version

	// Version of this client, reported in the User-Agent header.
	Version = "0.3.0"

	RequestIDHeader = "X-Request-Id"
	OutputFormat    = "JSON_Compact"
)

// Client carries the network configuration and the authentication session
// shared by every connection created from it.
type Client struct {
	httpClient  *http.Client
	auth        *AuthSession
	apiEndpoint string
	userAgent   string
}

type clientConfig struct {
	httpClient    *http.Client
	apiEndpoint   string
	authURL       string
	audience      string
	userAgent     string
	authenticator Authenticator
	now           func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithHTTPClient sets the HTTP client used for login, discovery and queries.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = hc }
}

// WithAPIEndpoint overrides the API endpoint used for discovery calls.
func WithAPIEndpoint(endpoint string) ClientOption {
	return func(c *clientConfig) { c.apiEndpoint = endpoint }
}

// WithAuthURL overrides the login endpoint used by the default authenticator.
func WithAuthURL(authURL string) ClientOption {
	return func(c *clientConfig) { c.authURL = authURL }
}

// WithAudience overrides the audience sent with the client_credentials grant.
func WithAudience(audience string) ClientOption {
	return func(c *clientConfig) { c.audience = audience }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *clientConfig) { c.userAgent = ua }
}

// WithAuthenticator replaces the built-in client_credentials login.
func WithAuthenticator(a Authenticator) ClientOption {
	return func(c *clientConfig) { c.authenticator = a }
}

// WithClock sets the time source used for credential expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(c *clientConfig) { c.now = now }
}

// NewClient creates a client that logs in with the given service account
// credentials. clientID and clientSecret may be empty when WithAuthenticator
// is supplied.
func NewClient(clientID, clientSecret string, opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		httpClient:  &http.Client{},
		apiEndpoint: DefaultAPIEndpoint,
		userAgent:   DefaultUserAgent,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if _, err := url.Parse(cfg.apiEndpoint); err != nil {
		return nil, fmt.Errorf("invalid API endpoint: %w", err)
	}

	authenticator := cfg.authenticator
	if authenticator == nil {
		if clientID == "" || clientSecret == "" {
			return nil, errors.New("firebolt: client id and client secret are required")
		}
		authenticator = &ClientCredentials{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			AuthURL:      cfg.authURL,
			Audience:     cfg.audience,
			HTTPClient:   cfg.httpClient,
			UserAgent:    cfg.userAgent,
		}
	}

	auth := NewAuthSession(authenticator)
	auth.now = cfg.now
	if cfg.httpClient != nil && cfg.httpClient.Timeout > 0 {
		auth.loginTimeout = cfg.httpClient.Timeout
	}

	return &Client{
		httpClient:  cfg.httpClient,
		auth:        auth,
		apiEndpoint: normalizeURL(cfg.apiEndpoint),
		userAgent:   cfg.userAgent,
	}, nil
}

// Auth returns the client's authentication session.
func (c *Client) Auth() *AuthSession {
	return c.auth
}

// NewConnection creates a connection context with an empty SessionState.
func (c *Client) NewConnection() *ConnectionContext {
	return &ConnectionContext{
		client: c,
		state:  NewSessionState(),
	}
}

// ConnectionContext identifies the target of queries: the engine, database
// and account. Its SessionState is shared by every statement issued through
// it. ConnectionContext is safe for concurrent use.
type ConnectionContext struct {
	client    *Client
	engineURL string
	database  string
	accountID string
	state     *SessionState

	// mu protects the target fields during concurrent access
	mu sync.RWMutex
}

// --- ConnectionContext Setters (Fluent API) ---

func (cc *ConnectionContext) Database(database string) *ConnectionContext {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.database = database
	return cc
}

func (cc *ConnectionContext) AccountID(accountID string) *ConnectionContext {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.accountID = accountID
	return cc
}

// EngineURL sets the engine endpoint. A URL without a scheme gets https://.
func (cc *ConnectionContext) EngineURL(engineURL string) *ConnectionContext {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.engineURL = normalizeURL(engineURL)
	return cc
}

// target returns a consistent snapshot of the connection's target fields.
func (cc *ConnectionContext) target() (engineURL, database, accountID string) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.engineURL, cc.database, cc.accountID
}

// State returns the SessionState shared by statements on this connection.
func (cc *ConnectionContext) State() *SessionState {
	return cc.state
}

// ClearSetList forgets every SET statement issued on this connection.
func (cc *ConnectionContext) ClearSetList() {
	cc.state.Clear()
}

// Clone creates a connection with the same target and a copy of the current
// SessionState. Later SET statements on either do not affect the other.
func (cc *ConnectionContext) Clone() *ConnectionContext {
	engineURL, database, accountID := cc.target()
	return &ConnectionContext{
		client:    cc.client,
		engineURL: engineURL,
		database:  database,
		accountID: accountID,
		state:     cc.state.clone(),
	}
}

// ResolveAccount looks up the account id for accountName and stores it.
func (cc *ConnectionContext) ResolveAccount(ctx context.Context, accountName string) error {
	id, err := cc.client.ResolveAccountID(ctx, accountName)
	if err != nil {
		return err
	}
	cc.AccountID(id)
	return nil
}

// ResolveEngine looks up the URL of engineName in the connection's account
// and stores it.
func (cc *ConnectionContext) ResolveEngine(ctx context.Context, engineName string) error {
	_, _, accountID := cc.target()
	engineURL, err := cc.client.EngineURLByName(ctx, accountID, engineName)
	if err != nil {
		return err
	}
	cc.EngineURL(engineURL)
	return nil
}

// Execute runs sql on this connection and returns the raw response body.
func (cc *ConnectionContext) Execute(ctx context.Context, sql string) ([]byte, error) {
	return cc.client.Execute(ctx, cc, sql)
}

// Query substitutes params into sql, runs it and decodes the result.
// SET statements and statements with an empty response yield an empty result.
func (cc *ConnectionContext) Query(ctx context.Context, sql string, params ...NamedParam) (*QueryResult, error) {
	if len(params) > 0 {
		var err error
		if sql, err = Substitute(sql, params); err != nil {
			return nil, err
		}
	}
	body, err := cc.client.Execute(ctx, cc, sql)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return &QueryResult{}, nil
	}
	return Decode(body)
}

// normalizeURL trims trailing slashes and adds https:// when no scheme is
// present, as engine endpoints are often reported as bare host names.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}
