package myshows

import (
	"cmp"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/olegsh/myshows-backup/internal/errutil"
	"github.com/olegsh/myshows-backup/internal/secret"
)

const legacyBaseURL = "http://api.myshows.ru"

// LegacyConfig contains the credentials for the legacy API.
type LegacyConfig struct {
	Username string        `env:"USERNAME"`
	Password secret.Secret `env:"PASSWORD"`
}

// LegacyClient talks to the original myshows API, which authenticates a
// server-side session with an md5 digest of the password.
type LegacyClient struct {
	username      string
	password      secret.Secret
	baseURL       string
	http          Doer
	retry         RetryPolicy
	authenticated bool
}

// NewLegacyClient creates a client for the legacy API.
func NewLegacyClient(cfg LegacyConfig) *LegacyClient {
	return NewLegacyClientWithDoer(cfg, newHTTPClient())
}

// NewLegacyClientWithDoer is NewLegacyClient with an injectable HTTP
// layer, for tests.
func NewLegacyClientWithDoer(cfg LegacyConfig, doer Doer) *LegacyClient {
	return &LegacyClient{
		username: cfg.Username,
		password: cfg.Password,
		baseURL:  legacyBaseURL,
		http:     doer,
		retry:    DefaultRetryPolicy(),
	}
}

// Variant implements Client.
func (c *LegacyClient) Variant() Variant { return VariantLegacy }

// Username implements Client.
func (c *LegacyClient) Username() string { return c.username }

func (c *LegacyClient) get(ctx context.Context, path string) (body []byte, err error) {
	resp, err := c.retry.do(ctx, c.http, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	})
	if err != nil {
		return nil, err
	}
	defer errutil.RunAndSetError(resp.Body.Close, &err, "close response body")

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return body, nil
}

// Authenticate logs the session in. The API expects the password as an
// md5 hex digest in the query string.
func (c *LegacyClient) Authenticate(ctx context.Context) error {
	digest := md5.Sum([]byte(c.password.Get()))
	q := url.Values{}
	q.Set("login", c.username)
	q.Set("password", hex.EncodeToString(digest[:]))

	if _, err := c.get(ctx, "/profile/login?"+q.Encode()); err != nil {
		return fmt.Errorf("authenticate %q: %w", c.username, err)
	}
	c.authenticated = true
	slog.Info("authenticated against the legacy API", "username", c.username)
	return nil
}

// ListTrackedShows implements Client. The legacy listing is a single
// object keyed by show id.
func (c *LegacyClient) ListTrackedShows(ctx context.Context) ([]ShowRef, error) {
	if !c.authenticated {
		return nil, ErrNotAuthenticated
	}

	body, err := c.get(ctx, "/profile/shows/")
	if err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	var keyed map[string]map[string]any
	if err := json.Unmarshal(body, &keyed); err != nil {
		return nil, fmt.Errorf("decode show list: %w", err)
	}

	refs := make([]ShowRef, 0, len(keyed))
	for _, raw := range keyed {
		refs = append(refs, ShowRef{
			ID:    asInt64(raw["showId"]),
			Title: asString(raw["title"]),
			Raw:   raw,
		})
	}
	// Keyed objects decode in random order; keep runs reproducible.
	slices.SortFunc(refs, func(a, b ShowRef) int { return cmp.Compare(a.ID, b.ID) })
	return refs, nil
}

// FetchShowDetail implements Client.
func (c *LegacyClient) FetchShowDetail(ctx context.Context, id int64) (map[string]any, error) {
	if !c.authenticated {
		return nil, ErrNotAuthenticated
	}

	body, err := c.get(ctx, fmt.Sprintf("/shows/%d", id))
	if err != nil {
		return nil, fmt.Errorf("show %d detail: %w", id, err)
	}
	var detail map[string]any
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("decode show %d detail: %w", id, err)
	}
	return detail, nil
}

// FetchWatchedEpisodes implements Client. The legacy API returns the
// watch records as an object keyed by episode id.
func (c *LegacyClient) FetchWatchedEpisodes(ctx context.Context, id int64) (*RawEpisodes, error) {
	if !c.authenticated {
		return nil, ErrNotAuthenticated
	}

	body, err := c.get(ctx, fmt.Sprintf("/profile/shows/%d/", id))
	if err != nil {
		return nil, fmt.Errorf("show %d watched episodes: %w", id, err)
	}
	var keyed map[string]map[string]any
	if err := json.Unmarshal(body, &keyed); err != nil {
		return nil, fmt.Errorf("decode show %d watched episodes: %w", id, err)
	}
	return &RawEpisodes{Keyed: keyed}, nil
}
