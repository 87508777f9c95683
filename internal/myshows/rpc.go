package myshows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/olegsh/myshows-backup/internal/errutil"
	"github.com/olegsh/myshows-backup/internal/secret"
)

const (
	oauthTokenURL = "https://myshows.me/oauth/token"
	rpcURL        = "https://api.myshows.me/v2/rpc/"
)

// listCategories are the tracking statuses a user's shows are filed
// under; lists.Shows must be called once per category.
var listCategories = []string{"watching", "later", "cancelled", "completed"}

// OAuthConfig contains the credentials for the v2 API. OAuth client
// credentials are handed out by api@myshows.me.
type OAuthConfig struct {
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret secret.Secret `env:"CLIENT_SECRET"`
	Username     string        `env:"USERNAME"`
	Password     secret.Secret `env:"PASSWORD"`
}

// OAuthClient talks to the myshows v2 API: a password-grant token
// exchange followed by JSON-RPC 2.0 calls carrying a bearer header and
// a monotonically increasing request id.
type OAuthClient struct {
	cfg      OAuthConfig
	tokenURL string
	rpcURL   string
	http     Doer
	retry    RetryPolicy

	// token is written once by Authenticate and only read afterwards.
	token     string
	requestID atomic.Int64
}

// NewOAuthClient creates a client for the v2 API.
func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	return NewOAuthClientWithDoer(cfg, newHTTPClient())
}

// NewOAuthClientWithDoer is NewOAuthClient with an injectable HTTP
// layer, for tests.
func NewOAuthClientWithDoer(cfg OAuthConfig, doer Doer) *OAuthClient {
	return &OAuthClient{
		cfg:      cfg,
		tokenURL: oauthTokenURL,
		rpcURL:   rpcURL,
		http:     doer,
		retry:    DefaultRetryPolicy(),
	}
}

// Variant implements Client.
func (c *OAuthClient) Variant() Variant { return VariantOAuth }

// Username implements Client.
func (c *OAuthClient) Username() string { return c.cfg.Username }

// Authenticate performs the resource-owner password-grant exchange and
// stores the bearer token. The token is never refreshed mid-run.
func (c *OAuthClient) Authenticate(ctx context.Context) (err error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret.Get())
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password.Get())
	encoded := form.Encode()

	resp, err := c.retry.do(ctx, c.http, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	defer errutil.RunAndSetError(resp.Body.Close, &err, "close response body")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token exchange: http %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return errors.New("token exchange: empty access token")
	}

	c.token = token.AccessToken
	slog.Info("authenticated against the v2 API", "username", c.cfg.Username)
	return nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call sends one JSON-RPC request. The payload (and so the request id)
// is built once; transport retries re-send the same id.
func (c *OAuthClient) call(ctx context.Context, method string, params any) (result json.RawMessage, err error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	resp, err := c.retry.do(ctx, c.http, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer errutil.RunAndSetError(resp.Body.Close, &err, "close response body")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: http %d", method, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, decoded.Error)
	}
	return decoded.Result, nil
}

// ListTrackedShows implements Client. Each tracking category is listed
// separately and the results are unioned; a category that fails to
// list is logged and skipped, not fatal to the others.
func (c *OAuthClient) ListTrackedShows(ctx context.Context) ([]ShowRef, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var refs []ShowRef
	for _, category := range listCategories {
		result, err := c.call(ctx, "lists.Shows", map[string]any{"list": category})
		if err != nil {
			slog.Warn("listing a category failed, skipping it", "category", category, "error", err)
			continue
		}
		var shows []map[string]any
		if err := json.Unmarshal(result, &shows); err != nil {
			slog.Warn("could not decode a category listing, skipping it", "category", category, "error", err)
			continue
		}
		for _, raw := range shows {
			raw["list_status"] = category
			refs = append(refs, newOAuthShowRef(raw))
		}
	}
	return refs, nil
}

// newOAuthShowRef resolves id and title from a v2 listing entry, which
// usually nests them under a "show" object but sometimes carries them
// at the top level.
func newOAuthShowRef(raw map[string]any) ShowRef {
	ref := ShowRef{Raw: raw}
	if nested, ok := raw["show"].(map[string]any); ok {
		ref.ID = asInt64(nested["id"])
		ref.Title = asString(nested["title"])
	}
	if ref.ID == 0 {
		ref.ID = asInt64(raw["id"])
	}
	if ref.Title == "" {
		ref.Title = asString(raw["title"])
	}
	return ref
}

// FetchShowDetail implements Client.
func (c *OAuthClient) FetchShowDetail(ctx context.Context, id int64) (map[string]any, error) {
	result, err := c.call(ctx, "shows.GetById", map[string]any{"showId": id})
	if err != nil {
		return nil, fmt.Errorf("show %d detail: %w", id, err)
	}
	var detail map[string]any
	if err := json.Unmarshal(result, &detail); err != nil {
		return nil, fmt.Errorf("decode show %d detail: %w", id, err)
	}
	return detail, nil
}

// FetchWatchedEpisodes implements Client. The v2 API returns the watch
// records as an ordered array.
func (c *OAuthClient) FetchWatchedEpisodes(ctx context.Context, id int64) (*RawEpisodes, error) {
	result, err := c.call(ctx, "shows.GetEpisodes", map[string]any{
		"showId":    id,
		"isWatched": true,
	})
	if err != nil {
		return nil, fmt.Errorf("show %d watched episodes: %w", id, err)
	}
	var ordered []map[string]any
	if err := json.Unmarshal(result, &ordered); err != nil {
		return nil, fmt.Errorf("decode show %d watched episodes: %w", id, err)
	}
	return &RawEpisodes{Ordered: ordered}, nil
}
