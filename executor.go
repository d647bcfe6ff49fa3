package firebolt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Execute runs one statement on the connection and returns the raw response
// body.
//
// A statement starting with the SET keyword is not sent. Its body is added to
// the connection's SessionState and replayed ahead of every later statement;
// Execute then returns a nil body.
//
// A 401 response invalidates the credential and the statement is retried
// once with a fresh login. A second 401 fails with an *AuthError wrapping
// ErrUnauthorized. Other non-2xx responses fail with a *ServerError and
// transport failures with a *QueryError; neither is retried.
func (c *Client) Execute(ctx context.Context, cc *ConnectionContext, sql string) ([]byte, error) {
	if cc == nil {
		return nil, errors.New("firebolt: nil connection")
	}
	if body, ok := parseSetStatement(sql); ok {
		if cc.state.Add(body) {
			log.Debug().Str("set", body).Msg("added session option")
		}
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := c.queryURL(ctx, cc)
	if err != nil {
		return nil, err
	}
	return c.doAuthorized(ctx, http.MethodPost, target, cc.state.Prefix()+sql)
}

// queryURL builds the statement endpoint for the connection, discovering the
// engine URL by database name when none is set.
func (c *Client) queryURL(ctx context.Context, cc *ConnectionContext) (string, error) {
	engineURL, database, accountID := cc.target()
	if engineURL == "" {
		if database == "" || accountID == "" {
			return "", errors.New("firebolt: engine URL is not set and database and account id are required to discover it")
		}
		discovered, err := c.EngineURLByDatabase(ctx, accountID, database)
		if err != nil {
			return "", fmt.Errorf("firebolt: failed to discover engine for database %q: %w", database, err)
		}
		cc.EngineURL(discovered)
		engineURL, _, _ = cc.target()
	}

	u, err := url.Parse(engineURL)
	if err != nil {
		return "", fmt.Errorf("firebolt: invalid engine URL %q: %w", engineURL, err)
	}
	q := u.Query()
	if database != "" {
		q.Set("database", database)
	}
	if accountID != "" {
		q.Set("account_id", accountID)
	}
	q.Set("output_format", OutputFormat)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// doAuthorized sends one request with the current credential. The loop runs
// at most twice: the first 401 invalidates the credential and retries, the
// second is returned as an AuthError.
func (c *Client) doAuthorized(ctx context.Context, method, target, body string) ([]byte, error) {
	retried := false
	for {
		cred, err := c.auth.GetValidToken(ctx)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := c.newRequest(ctx, method, target, body, cred)
		if err != nil {
			return nil, &QueryError{Endpoint: target, Err: err}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &QueryError{Endpoint: target, Err: err}
		}
		respBody, err := readBody(resp)
		if err != nil {
			return nil, &QueryError{Endpoint: target, Err: err}
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if retried {
				return nil, &AuthError{
					Endpoint:   target,
					StatusCode: resp.StatusCode,
					Message:    truncateBody(respBody),
					Err:        ErrUnauthorized,
				}
			}
			retried = true
			log.Debug().Str("endpoint", target).Str("request_id", req.Header.Get(RequestIDHeader)).
				Msg("request unauthorized, retrying with a fresh login")
			c.auth.invalidateToken(cred.Token)
			continue
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, &ServerError{Endpoint: target, StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
		}
		return respBody, nil
	}
}

func (c *Client) newRequest(ctx context.Context, method, target, body string, cred Credential) (*http.Request, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", cred.AuthorizationHeader())
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if bodyReader != nil {
		req.Header.Set("Content-Type", "text/plain")
	}
	return req, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close response body")
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
