// Package myshows provides clients for the two myshows.me APIs: the
// legacy key-hashed session API (v1) and the OAuth/JSON-RPC API (v2).
// Both implement the same Client interface so the rest of the program
// never needs to know which protocol it is talking to.
package myshows

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
)

// Variant identifies which upstream API a client talks to.
type Variant string

const (
	// VariantLegacy is the original key-hashed session API.
	VariantLegacy Variant = "v1"
	// VariantOAuth is the OAuth2 bearer-token JSON-RPC API.
	VariantOAuth Variant = "v2"
)

// ErrNotAuthenticated is returned when a fetch method is called before
// a successful Authenticate.
var ErrNotAuthenticated = errors.New("not authenticated")

// ShowRef is one entry of the user's tracked-shows list, kept in its
// upstream shape. ID and Title are resolved at listing time so callers
// don't need to know the variant's field layout.
type ShowRef struct {
	ID    int64
	Title string
	Raw   map[string]any
}

// RawEpisodes holds a show's watch records in their upstream container
// shape: v1 returns an object keyed by episode id, v2 an ordered array.
type RawEpisodes struct {
	Keyed   map[string]map[string]any
	Ordered []map[string]any
}

// Client is the capability surface the backup runner needs. Fetch
// methods fail with ErrNotAuthenticated until Authenticate succeeds.
type Client interface {
	Authenticate(ctx context.Context) error
	ListTrackedShows(ctx context.Context) ([]ShowRef, error)
	FetchShowDetail(ctx context.Context, id int64) (map[string]any, error)
	FetchWatchedEpisodes(ctx context.Context, id int64) (*RawEpisodes, error)
	Variant() Variant
	Username() string
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
