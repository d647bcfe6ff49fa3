package firebolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultAuthURL   = "https://id.app.firebolt.io/oauth/token"
	DefaultAudience  = "https://api.firebolt.io"
	DefaultTokenType = "Bearer"

	// DefaultLoginTimeout bounds a shared login when the HTTP client has no
	// timeout of its own.
	DefaultLoginTimeout = 30 * time.Second
)

// maxLifetimeSeconds is the longest lifetime a time.Duration can hold.
const maxLifetimeSeconds = float64(math.MaxInt64 / int64(time.Second))

// Credential is a bearer token together with its type and expiry.
// A Credential is never modified after creation; refreshing replaces it.
type Credential struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
}

// ValidAt reports whether the credential may still be sent at the given time.
func (c Credential) ValidAt(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// AuthorizationHeader returns the value for the Authorization header.
func (c Credential) AuthorizationHeader() string {
	return c.TokenType + " " + c.Token
}

// LoginResponse is the record returned by the login endpoint.
// ExpiresIn is given in seconds and usually arrives string-encoded.
type LoginResponse struct {
	AccessToken  string      `json:"access_token"`
	ExpiresIn    json.Number `json:"expires_in"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	TokenType    string      `json:"token_type"`
}

// expiresIn validates the login record and returns its lifetime.
func (r *LoginResponse) expiresIn() (time.Duration, error) {
	if r.AccessToken == "" {
		return 0, errors.New("login response has no access_token")
	}
	if r.ExpiresIn == "" {
		return 0, errors.New("login response has no expires_in")
	}
	secs, err := r.ExpiresIn.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid expires_in %q: %w", r.ExpiresIn, err)
	}
	if secs < 0 {
		return 0, fmt.Errorf("invalid expires_in %q", r.ExpiresIn)
	}
	if secs >= maxLifetimeSeconds {
		return time.Duration(math.MaxInt64), nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Authenticator performs one login call against the identity service.
type Authenticator interface {
	Login(ctx context.Context) (*LoginResponse, error)
}

// ClientCredentials logs in with a service account's client id and secret
// by posting a client_credentials grant to the auth URL.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	AuthURL      string // defaults to DefaultAuthURL
	Audience     string // defaults to DefaultAudience
	HTTPClient   *http.Client
	UserAgent    string
}

var _ Authenticator = (*ClientCredentials)(nil)

// Login implements Authenticator.
func (c *ClientCredentials) Login(ctx context.Context) (*LoginResponse, error) {
	authURL := c.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	audience := c.Audience
	if audience == "" {
		audience = DefaultAudience
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
		"audience":      {audience},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Endpoint: authURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &QueryError{Endpoint: authURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &QueryError{Endpoint: authURL, Err: fmt.Errorf("failed to read login response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AuthError{Endpoint: authURL, StatusCode: resp.StatusCode, Message: truncateBody(body)}
	}

	lr := new(LoginResponse)
	if err := json.Unmarshal(body, lr); err != nil {
		return nil, &AuthError{Endpoint: authURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed login response: %w", err)}
	}
	return lr, nil
}

// AuthSession owns the credential lifecycle for one client: it logs in on
// demand, caches the credential until it expires, and lets callers force a
// fresh login after the service rejects a token. It is safe for concurrent
// use; concurrent callers that find the cache empty share a single login.
type AuthSession struct {
	authenticator Authenticator
	now           func() time.Time
	loginTimeout  time.Duration

	// mu protects cred, flight and seq
	mu     sync.Mutex
	cred   *Credential
	flight *loginFlight
	seq    uint64
	logins singleflight.Group
}

// loginFlight is one shared login and the callers waiting on it.
type loginFlight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewAuthSession creates an AuthSession around the given Authenticator.
func NewAuthSession(authenticator Authenticator) *AuthSession {
	return &AuthSession{
		authenticator: authenticator,
		now:           time.Now,
		loginTimeout:  DefaultLoginTimeout,
	}
}

// cached returns the cached credential if it is still valid.
func (s *AuthSession) cached() (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred != nil && s.cred.ValidAt(s.now()) {
		return *s.cred, true
	}
	return Credential{}, false
}

// GetValidToken returns a credential that is valid now, logging in first if
// the cache is empty, expired, or was invalidated.
//
// A shared login keeps running while at least one caller waits on it and is
// bounded by the login timeout. When the last waiter gives up the login is
// cancelled and the next caller starts a fresh one.
func (s *AuthSession) GetValidToken(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	if cred, ok := s.cached(); ok {
		return cred, nil
	}

	f := s.joinFlight(ctx)
	ch := s.logins.DoChan(f.key, func() (any, error) {
		defer s.endFlight(f)
		if cred, ok := s.cached(); ok {
			return cred, nil
		}
		return s.login(f.ctx)
	})

	select {
	case <-ctx.Done():
		s.leaveFlight(f)
		return Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

// joinFlight returns the login in progress, starting a new one if there is
// none, and counts the caller as a waiter.
func (s *AuthSession) joinFlight(ctx context.Context) *loginFlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flight == nil {
		s.seq++
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loginTimeout)
		s.flight = &loginFlight{
			key:    "login-" + strconv.FormatUint(s.seq, 10),
			ctx:    loginCtx,
			cancel: cancel,
		}
	}
	s.flight.waiters++
	return s.flight
}

func (s *AuthSession) endFlight(f *loginFlight) {
	s.mu.Lock()
	if s.flight == f {
		s.flight = nil
	}
	s.mu.Unlock()
	f.cancel()
}

// leaveFlight drops a waiter that gave up and abandons the login once no one
// is left waiting on it.
func (s *AuthSession) leaveFlight(f *loginFlight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 || s.flight != f {
		return
	}
	s.flight = nil
	f.cancel()
	log.Debug().Str("flight", f.key).Msg("abandoned login with no waiters left")
}

func (s *AuthSession) login(ctx context.Context) (Credential, error) {
	requested := s.now()
	lr, err := s.authenticator.Login(ctx)
	if err != nil {
		return Credential{}, err
	}
	lifetime, err := lr.expiresIn()
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return Credential{}, err
		}
		return Credential{}, &AuthError{Endpoint: endpointOf(s.authenticator), Err: err}
	}

	tokenType := lr.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	cred := Credential{
		Token:     lr.AccessToken,
		TokenType: tokenType,
		ExpiresAt: requested.Add(lifetime),
	}

	s.mu.Lock()
	s.cred = &cred
	s.mu.Unlock()

	log.Debug().Dur("expires_in", lifetime).Str("token_type", tokenType).Msg("obtained access token")
	return cred, nil
}

// Invalidate drops the cached credential so the next GetValidToken logs in.
func (s *AuthSession) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
}

// invalidateToken drops the cached credential only if it still holds token,
// leaving a newer credential fetched by another caller in place.
func (s *AuthSession) invalidateToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred != nil && s.cred.Token == token {
		s.cred = nil
	}
}

func endpointOf(a Authenticator) string {
	if cc, ok := a.(*ClientCredentials); ok {
		if cc.AuthURL != "" {
			return cc.AuthURL
		}
		return DefaultAuthURL
	}
	return fmt.Sprintf("%T", a)
}
