package firebolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

type accountIDResponse struct {
	AccountID string `json:"account_id"`
}

type engineIDResponse struct {
	EngineID struct {
		EngineID string `json:"engine_id"`
	} `json:"engine_id"`
}

type engineResponse struct {
	Engine struct {
		Endpoint string `json:"endpoint"`
	} `json:"engine"`
}

type engineURLResponse struct {
	EngineURL string `json:"engine_url"`
}

func (c *Client) apiURL(path string, query url.Values) string {
	u := c.apiEndpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// getJSON performs an authorized GET against the API endpoint and decodes
// the JSON response into v.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	body, err := c.doAuthorized(ctx, http.MethodGet, c.apiURL(path, query), "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &DecodeError{Err: fmt.Errorf("%s: %w", path, err)}
	}
	return nil
}

// ResolveAccountID returns the id of the account named accountName.
func (c *Client) ResolveAccountID(ctx context.Context, accountName string) (string, error) {
	if accountName == "" {
		return "", errors.New("firebolt: account name is required")
	}
	var resp accountIDResponse
	if err := c.getJSON(ctx, "/iam/v2/accounts:getIdByName", url.Values{"accountName": {accountName}}, &resp); err != nil {
		return "", err
	}
	if resp.AccountID == "" {
		return "", &DecodeError{Err: fmt.Errorf("no account_id for account %q", accountName)}
	}
	log.Debug().Str("account", accountName).Str("account_id", resp.AccountID).Msg("resolved account")
	return resp.AccountID, nil
}

// EngineURLByName returns the endpoint of the engine named engineName.
func (c *Client) EngineURLByName(ctx context.Context, accountID, engineName string) (string, error) {
	if accountID == "" || engineName == "" {
		return "", errors.New("firebolt: account id and engine name are required")
	}
	enginesPath := "/core/v1/accounts/" + url.PathEscape(accountID) + "/engines"

	var idResp engineIDResponse
	if err := c.getJSON(ctx, enginesPath+":getIdByName", url.Values{"engine_name": {engineName}}, &idResp); err != nil {
		return "", err
	}
	engineID := idResp.EngineID.EngineID
	if engineID == "" {
		return "", &DecodeError{Err: fmt.Errorf("no engine_id for engine %q", engineName)}
	}

	var engResp engineResponse
	if err := c.getJSON(ctx, enginesPath+"/"+url.PathEscape(engineID), nil, &engResp); err != nil {
		return "", err
	}
	if engResp.Engine.Endpoint == "" {
		return "", &DecodeError{Err: fmt.Errorf("no endpoint for engine %q", engineName)}
	}
	log.Debug().Str("engine", engineName).Str("engine_url", engResp.Engine.Endpoint).Msg("resolved engine")
	return normalizeURL(engResp.Engine.Endpoint), nil
}

// EngineURLByDatabase returns the endpoint of the default engine attached to
// database.
func (c *Client) EngineURLByDatabase(ctx context.Context, accountID, database string) (string, error) {
	if accountID == "" || database == "" {
		return "", errors.New("firebolt: account id and database are required")
	}
	path := "/core/v1/accounts/" + url.PathEscape(accountID) + "/engines:getURLByDatabaseName"

	var resp engineURLResponse
	if err := c.getJSON(ctx, path, url.Values{"databaseName": {database}}, &resp); err != nil {
		return "", err
	}
	if resp.EngineURL == "" {
		return "", &DecodeError{Err: fmt.Errorf("no engine_url for database %q", database)}
	}
	log.Debug().Str("database", database).Str("engine_url", resp.EngineURL).Msg("resolved engine by database")
	return normalizeURL(resp.EngineURL), nil
}
