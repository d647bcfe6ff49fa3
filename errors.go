package firebolt

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrUnauthorized is wrapped by an AuthError raised when the query service
// still rejects the request after one re-authentication.
var ErrUnauthorized = errors.New("unauthorized")

// AuthError reports a failed login, a malformed login response, or a request
// that stayed unauthorized after the single retry.
type AuthError struct {
	// Endpoint is the URL of the request that failed
	Endpoint string

	// StatusCode is the HTTP status, or 0 when the failure was not an HTTP response
	StatusCode int

	// Message is the server-provided detail, usually the response body
	Message string

	// Err is the underlying cause, if any
	Err error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("firebolt: authentication failed at %s", e.Endpoint)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status code: %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ServerError is returned for any non-2xx, non-401 response.
type ServerError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("firebolt: server error from %s (status code: %d): %s", e.Endpoint, e.StatusCode, e.Body)
}

// QueryError wraps a transport-level failure: connection refused, timeout, or
// a response whose body could not be read.
type QueryError struct {
	Endpoint string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("firebolt: request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// ParameterError names the bind parameter that could not be encoded.
type ParameterError struct {
	Name string
	Err  error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("firebolt: parameter %q: %v", e.Name, e.Err)
}

func (e *ParameterError) Unwrap() error {
	return e.Err
}

// UnsupportedParameterError is returned by Encode for value kinds that have
// no SQL literal form, such as lists, and by ParamOf for Go values it
// cannot map.
type UnsupportedParameterError struct {
	// Type describes the rejected value, e.g. "[]int" or "list"
	Type string
}

func (e *UnsupportedParameterError) Error() string {
	return fmt.Sprintf("unsupported parameter type: %s", e.Type)
}

// DecodeError reports a response body that is not a well-formed result.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("firebolt: failed to decode result: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// truncateBody keeps error messages readable when the server returns a page
// of HTML instead of a short error string.
func truncateBody(body []byte) string {
	const limit = 1024
	if len(body) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		return string(body[:cut]) + "..."
	}
	return string(body)
}
