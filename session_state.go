package firebolt

import (
	"slices"
	"strings"
	"sync"
	"unicode"
)

// SessionState accumulates the bodies of SET statements issued on a
// connection so they can be replayed ahead of every later statement.
// Entries are deduplicated by exact text and kept in insertion order.
// It is safe for concurrent use.
type SessionState struct {
	mu   sync.RWMutex
	sets []string
}

// NewSessionState returns an empty SessionState.
func NewSessionState() *SessionState {
	return &SessionState{}
}

// Add records a SET body such as "time_zone='UTC'". It reports whether the
// entry was new.
func (s *SessionState) Add(body string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.sets, body) {
		return false
	}
	s.sets = append(s.sets, body)
	return true
}

// Clear drops every accumulated SET body.
func (s *SessionState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = nil
}

// List returns a copy of the accumulated SET bodies.
func (s *SessionState) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sets)
}

// Len returns the number of accumulated SET bodies.
func (s *SessionState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets)
}

// Prefix renders the accumulated bodies as leading SET statements, e.g.
// "SET a=1;\nSET b=2;\n". It returns "" when nothing has been set.
func (s *SessionState) Prefix() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var b strings.Builder
	for _, set := range s.sets {
		b.WriteString("SET ")
		b.WriteString(set)
		b.WriteString(";\n")
	}
	return b.String()
}

func (s *SessionState) clone() *SessionState {
	return &SessionState{sets: s.List()}
}

// parseSetStatement reports whether sql is a SET statement and returns its
// body with surrounding whitespace and a trailing semicolon removed.
func parseSetStatement(sql string) (string, bool) {
	trimmed := strings.TrimSpace(sql)
	const keyword = "SET"
	if len(trimmed) <= len(keyword) || !strings.EqualFold(trimmed[:len(keyword)], keyword) {
		return "", false
	}
	if !unicode.IsSpace(rune(trimmed[len(keyword)])) {
		return "", false
	}
	body := strings.TrimSpace(trimmed[len(keyword):])
	body = strings.TrimSpace(strings.TrimSuffix(body, ";"))
	if body == "" {
		return "", false
	}
	return body, true
}
