package backup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/olegsh/myshows-backup/internal/myshows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMyShows is an in-memory Client for driving the runner.
type fakeMyShows struct {
	refs     []myshows.ShowRef
	details  map[int64]map[string]any
	episodes map[int64]*myshows.RawEpisodes
	failID   int64
	authErr  error

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func (f *fakeMyShows) Authenticate(context.Context) error { return f.authErr }

func (f *fakeMyShows) ListTrackedShows(context.Context) ([]myshows.ShowRef, error) {
	return f.refs, nil
}

func (f *fakeMyShows) FetchShowDetail(_ context.Context, id int64) (map[string]any, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if id == f.failID {
		return nil, fmt.Errorf("http 503 after 5 attempts")
	}
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return map[string]any{}, nil
}

func (f *fakeMyShows) FetchWatchedEpisodes(_ context.Context, id int64) (*myshows.RawEpisodes, error) {
	return f.episodes[id], nil
}

func (f *fakeMyShows) Variant() myshows.Variant { return myshows.VariantOAuth }
func (f *fakeMyShows) Username() string         { return "bob" }

func makeRefs(n int) []myshows.ShowRef {
	refs := make([]myshows.ShowRef, 0, n)
	for i := 1; i <= n; i++ {
		refs = append(refs, myshows.ShowRef{
			ID:    int64(i),
			Title: fmt.Sprintf("Show %d", i),
			Raw:   map[string]any{},
		})
	}
	return refs
}

func TestRunnerDropsFailedShowsWithoutAborting(t *testing.T) {
	t.Parallel()

	client := &fakeMyShows{refs: makeRefs(5), failID: 3}
	runner := NewRunner(client, Config{Workers: 2, BatchSize: 2}, nil)

	result, err := runner.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, result.Shows, 4)

	for _, s := range result.Shows {
		assert.NotEqual(t, int64(3), s.ID)
	}
	assert.Equal(t, 4, result.Meta.TotalShows)
	assert.Equal(t, "bob", result.Meta.Username)
	assert.Equal(t, "v2", result.Meta.APIVersion)
	require.NotNil(t, result.Meta.ProcessingTime)
}

func TestRunnerEmptyLibrary(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&fakeMyShows{}, Config{Workers: 5, BatchSize: 25}, nil)

	result, err := runner.Run(t.Context())
	require.NoError(t, err)
	assert.Empty(t, result.Shows)
	assert.Equal(t, 0, result.Meta.TotalShows)
}

func TestRunnerFatalAuthenticationFailure(t *testing.T) {
	t.Parallel()

	client := &fakeMyShows{refs: makeRefs(3), authErr: fmt.Errorf("token exchange: http 401")}
	runner := NewRunner(client, Config{Workers: 2}, nil)

	_, err := runner.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authenticate")
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	t.Parallel()

	client := &fakeMyShows{refs: makeRefs(12)}
	runner := NewRunner(client, Config{Workers: 3, BatchSize: 6}, nil)

	_, err := runner.Run(t.Context())
	require.NoError(t, err)
	assert.LessOrEqual(t, client.maxInFlight, 3)
}

func TestRunnerSortsUnwatchedShowsLast(t *testing.T) {
	t.Parallel()

	client := &fakeMyShows{
		refs: makeRefs(3),
		episodes: map[int64]*myshows.RawEpisodes{
			// show 1 has no watched episodes at all
			2: {Ordered: []map[string]any{{"id": float64(21), "watchDate": "2023-06-01T10:00:00Z"}}},
			3: {Ordered: []map[string]any{{"id": float64(31), "watchDate": "2021-06-01T10:00:00Z"}}},
		},
	}
	runner := NewRunner(client, Config{Workers: 1}, nil)

	result, err := runner.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, result.Shows, 3)

	assert.Equal(t, int64(3), result.Shows[0].ID)
	assert.Equal(t, int64(2), result.Shows[1].ID)
	assert.Equal(t, int64(1), result.Shows[2].ID, "show with no episodes sorts last")
}

func TestRunnerStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	client := &fakeMyShows{refs: makeRefs(10)}
	runner := NewRunner(client, Config{Workers: 2, BatchSize: 5}, nil)

	_, err := runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
