// Package firebolttest provides an in-process mock of the Firebolt identity,
// discovery and engine endpoints for tests.
package firebolttest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	firebolt "github.com/ethanyzhang/firebolt-go"
)

// --- Data Models ---

// MockQueryTemplate defines the canned response for a specific SQL string.
// Templates are matched against the statement with any leading SET
// statements removed.
type MockQueryTemplate struct {
	SQL        string            // The statement used for template matching.
	Columns    []firebolt.Column // Metadata describing the result set columns.
	Data       [][]any           // Rows returned for the statement.
	StatusCode int               // Optional non-2xx status to simulate a failure.
	ErrorBody  string            // Body sent with StatusCode.
	Latency    time.Duration     // Delay before responding.
}

// RecordedRequest is one request observed by the engine endpoint.
type RecordedRequest struct {
	Query         url.Values
	Body          string
	Sets          []string // SET bodies found ahead of the statement
	Statement     string
	Authorization string
	RequestID     string
}

type engine struct {
	id       string
	endpoint string
}

// --- Mock Server Implementation ---

// MockFireboltServer simulates the Firebolt identity service, the account
// and engine discovery API, and an engine. Engine requests must carry a
// token issued by the identity endpoint and not yet revoked.
type MockFireboltServer struct {
	server *httptest.Server

	// mu protects every map and slice below during concurrent test execution
	mu sync.RWMutex

	templates   map[string]*MockQueryTemplate
	validTokens map[string]bool
	accounts    map[string]string            // account name -> id
	engines     map[string]map[string]engine // account id -> engine name -> engine
	databases   map[string]map[string]string // account id -> database -> engine URL
	requests    []RecordedRequest

	clientID     string
	clientSecret string
	expiresIn    int
	tokenCounter atomic.Int64
	logins       atomic.Int64
	discoveries  atomic.Int64
}

// NewMockFireboltServer starts a mock server accepting the given service
// account credentials.
func NewMockFireboltServer(clientID, clientSecret string) *MockFireboltServer {
	mock := &MockFireboltServer{
		templates:    make(map[string]*MockQueryTemplate),
		validTokens:  make(map[string]bool),
		accounts:     make(map[string]string),
		engines:      make(map[string]map[string]engine),
		databases:    make(map[string]map[string]string),
		clientID:     clientID,
		clientSecret: clientSecret,
		expiresIn:    3600,
	}

	mux := http.NewServeMux()

	// POST /oauth/token: client_credentials login.
	mux.HandleFunc("POST /oauth/token", mock.handleLogin)

	// POST /engine: runs a statement.
	mux.HandleFunc("POST /engine", mock.handleQuery)

	// Discovery endpoints.
	mux.HandleFunc("GET /iam/v2/accounts:getIdByName", mock.handleAccountID)
	mux.HandleFunc("GET /core/v1/accounts/{account}/engines:getIdByName", mock.handleEngineID)
	mux.HandleFunc("GET /core/v1/accounts/{account}/engines/{engine}", mock.handleEngine)
	mux.HandleFunc("GET /core/v1/accounts/{account}/engines:getURLByDatabaseName", mock.handleEngineByDatabase)

	mock.server = httptest.NewServer(mux)
	return mock
}

// AddQuery registers a statement template.
func (m *MockFireboltServer) AddQuery(tmpl *MockQueryTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tmpl.SQL] = tmpl
}

// AddAccount registers an account for discovery.
func (m *MockFireboltServer) AddAccount(name, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[name] = id
}

// AddEngine registers an engine of an account. The engine serves this mock's
// engine endpoint.
func (m *MockFireboltServer) AddEngine(accountID, name, engineID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engines[accountID] == nil {
		m.engines[accountID] = make(map[string]engine)
	}
	m.engines[accountID][name] = engine{id: engineID, endpoint: m.EngineURL()}
}

// AddDatabase attaches a database of an account to this mock's engine.
func (m *MockFireboltServer) AddDatabase(accountID, database string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.databases[accountID] == nil {
		m.databases[accountID] = make(map[string]string)
	}
	m.databases[accountID][database] = m.EngineURL()
}

// SetExpiresIn sets the lifetime in seconds reported for new tokens.
func (m *MockFireboltServer) SetExpiresIn(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiresIn = seconds
}

// RevokeTokens invalidates every token issued so far, so the next engine
// request gets a 401.
func (m *MockFireboltServer) RevokeTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validTokens = make(map[string]bool)
}

// Requests returns the engine requests observed so far.
func (m *MockFireboltServer) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LoginCount returns the number of login requests received.
func (m *MockFireboltServer) LoginCount() int { return int(m.logins.Load()) }

// DiscoveryCount returns the number of discovery requests received.
func (m *MockFireboltServer) DiscoveryCount() int { return int(m.discoveries.Load()) }

// URL returns the base URL of the mock server, usable as the API endpoint.
func (m *MockFireboltServer) URL() string { return m.server.URL }

// AuthURL returns the login endpoint.
func (m *MockFireboltServer) AuthURL() string { return m.server.URL + "/oauth/token" }

// EngineURL returns the engine endpoint.
func (m *MockFireboltServer) EngineURL() string { return m.server.URL + "/engine" }

// Close shuts down the mock server.
func (m *MockFireboltServer) Close() { m.server.Close() }

// --- Request Handlers ---

// writeJSON encodes v as JSON and writes it to the response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func (m *MockFireboltServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	m.logins.Add(1)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" ||
		r.PostForm.Get("client_id") != m.clientID ||
		r.PostForm.Get("client_secret") != m.clientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "access_denied"})
		return
	}

	token := fmt.Sprintf("token-%d", m.tokenCounter.Add(1))
	m.mu.Lock()
	m.validTokens[token] = true
	expiresIn := m.expiresIn
	m.mu.Unlock()

	// expires_in is string-encoded, as the real service does
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  token,
		"expires_in":    fmt.Sprint(expiresIn),
		"refresh_token": "refresh-" + token,
		"token_type":    "Bearer",
	})
}

// authorized reports whether the request carries a valid token.
func (m *MockFireboltServer) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validTokens[token]
}

func (m *MockFireboltServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	sets, statement := SplitSessionPrefix(string(body))

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Query:         r.URL.Query(),
		Body:          string(body),
		Sets:          sets,
		Statement:     statement,
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get(firebolt.RequestIDHeader),
	})
	tmpl, exists := m.templates[statement]
	m.mu.Unlock()

	if !m.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if !exists {
		tmpl = &MockQueryTemplate{
			SQL:     statement,
			Columns: []firebolt.Column{{Name: "result", Type: "text"}},
			Data:    [][]any{{"Query template not found; default success"}},
		}
	}
	if tmpl.Latency > 0 {
		time.Sleep(tmpl.Latency)
	}
	if tmpl.StatusCode != 0 {
		http.Error(w, tmpl.ErrorBody, tmpl.StatusCode)
		return
	}

	data := tmpl.Data
	if data == nil {
		data = [][]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"meta": tmpl.Columns,
		"data": data,
		"rows": len(data),
		"statistics": map[string]any{
			"elapsed":    0.001,
			"rows_read":  len(data),
			"bytes_read": 0,
		},
	})
}

// discoveryAuthorized counts the request and rejects it without a valid token.
func (m *MockFireboltServer) discoveryAuthorized(w http.ResponseWriter, r *http.Request) bool {
	m.discoveries.Add(1)
	if !m.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (m *MockFireboltServer) handleAccountID(w http.ResponseWriter, r *http.Request) {
	if !m.discoveryAuthorized(w, r) {
		return
	}
	m.mu.RLock()
	id, ok := m.accounts[r.URL.Query().Get("accountName")]
	m.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account_id": id})
}

func (m *MockFireboltServer) handleEngineID(w http.ResponseWriter, r *http.Request) {
	if !m.discoveryAuthorized(w, r) {
		return
	}
	m.mu.RLock()
	eng, ok := m.engines[r.PathValue("account")][r.URL.Query().Get("engine_name")]
	m.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "engine not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"engine_id": map[string]string{"engine_id": eng.id, "account_id": r.PathValue("account")},
	})
}

func (m *MockFireboltServer) handleEngine(w http.ResponseWriter, r *http.Request) {
	if !m.discoveryAuthorized(w, r) {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, eng := range m.engines[r.PathValue("account")] {
		if eng.id == r.PathValue("engine") {
			writeJSON(w, http.StatusOK, map[string]any{
				"engine": map[string]string{"endpoint": eng.endpoint},
			})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "engine not found"})
}

func (m *MockFireboltServer) handleEngineByDatabase(w http.ResponseWriter, r *http.Request) {
	if !m.discoveryAuthorized(w, r) {
		return
	}
	m.mu.RLock()
	u, ok := m.databases[r.PathValue("account")][r.URL.Query().Get("databaseName")]
	m.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "database not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"engine_url": u})
}

// SplitSessionPrefix separates the leading "SET ...;" lines that the client
// prepends to a request body from the statement that follows them.
func SplitSessionPrefix(body string) (sets []string, statement string) {
	rest := body
	for strings.HasPrefix(rest, "SET ") {
		line, remainder, found := strings.Cut(rest, ";\n")
		if !found {
			break
		}
		sets = append(sets, strings.TrimPrefix(line, "SET "))
		rest = remainder
	}
	return sets, rest
}
