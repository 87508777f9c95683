package myshows

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/olegsh/myshows-backup/internal/mocks"
	"github.com/olegsh/myshows-backup/internal/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestOAuthClient(t *testing.T) (*OAuthClient, *mocks.MockDoer) {
	t.Helper()

	mockctrl := gomock.NewController(t)
	t.Cleanup(mockctrl.Finish)

	doer := mocks.NewMockDoer(mockctrl)
	c := NewOAuthClientWithDoer(OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: secret.New("client-secret"),
		Username:     "bob",
		Password:     secret.New("password"),
	}, doer)
	return c, doer
}

func expectAuth(t *testing.T, doer *mocks.MockDoer) *gomock.Call {
	t.Helper()
	return doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "myshows.me", req.URL.Host)
		assert.Equal(t, "/oauth/token", req.URL.Path)

		require.NoError(t, req.ParseForm())
		assert.Equal(t, "password", req.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", req.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", req.PostForm.Get("client_secret"))
		assert.Equal(t, "bob", req.PostForm.Get("username"))
		assert.Equal(t, "password", req.PostForm.Get("password"))

		return jsonResponse(`{"access_token": "the-token", "token_type": "bearer"}`), nil
	})
}

func decodeRPC(t *testing.T, req *http.Request) rpcRequest {
	t.Helper()
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var rpc rpcRequest
	require.NoError(t, json.Unmarshal(body, &rpc))
	return rpc
}

func TestOAuthAuthenticateStoresTheToken(t *testing.T) {
	t.Parallel()

	c, doer := newTestOAuthClient(t)
	expectAuth(t, doer)

	require.NoError(t, c.Authenticate(t.Context()))
	assert.Equal(t, "the-token", c.token)
}

func TestOAuthCallRequiresAuthentication(t *testing.T) {
	t.Parallel()

	c, _ := newTestOAuthClient(t)

	_, err := c.ListTrackedShows(t.Context())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.FetchShowDetail(t.Context(), 42)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestOAuthRPCEnvelope(t *testing.T) {
	t.Parallel()

	c, doer := newTestOAuthClient(t)
	var ids []int64
	gomock.InOrder(
		expectAuth(t, doer),
		doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer the-token", req.Header.Get("Authorization"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

			rpc := decodeRPC(t, req)
			assert.Equal(t, "2.0", rpc.JSONRPC)
			assert.Equal(t, "shows.GetById", rpc.Method)
			ids = append(ids, rpc.ID)
			return jsonResponse(`{"jsonrpc": "2.0", "result": {"title": "The Wire"}, "id": 1}`), nil
		}),
		doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			rpc := decodeRPC(t, req)
			assert.Equal(t, "shows.GetEpisodes", rpc.Method)
			ids = append(ids, rpc.ID)
			return jsonResponse(`{"jsonrpc": "2.0", "result": [], "id": 2}`), nil
		}),
	)

	require.NoError(t, c.Authenticate(t.Context()))

	detail, err := c.FetchShowDetail(t.Context(), 2156)
	require.NoError(t, err)
	assert.Equal(t, "The Wire", detail["title"])

	episodes, err := c.FetchWatchedEpisodes(t.Context(), 2156)
	require.NoError(t, err)
	assert.Nil(t, episodes.Keyed)

	// request ids grow monotonically
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestOAuthListTrackedShowsSkipsFailedCategories(t *testing.T) {
	t.Parallel()

	c, doer := newTestOAuthClient(t)
	expectAuth(t, doer)
	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		rpc := decodeRPC(t, req)
		assert.Equal(t, "lists.Shows", rpc.Method)

		params, ok := rpc.Params.(map[string]any)
		require.True(t, ok)
		switch params["list"] {
		case "later":
			return jsonResponse(`{"jsonrpc": "2.0", "error": {"code": -32000, "message": "boom"}, "id": 0}`), nil
		case "watching":
			return jsonResponse(`{"jsonrpc": "2.0", "result": [{"show": {"id": 10, "title": "Dexter"}, "rating": 4}], "id": 0}`), nil
		default:
			return jsonResponse(`{"jsonrpc": "2.0", "result": [], "id": 0}`), nil
		}
	}).Times(4)

	require.NoError(t, c.Authenticate(t.Context()))
	refs, err := c.ListTrackedShows(t.Context())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, int64(10), refs[0].ID)
	assert.Equal(t, "Dexter", refs[0].Title)
	assert.Equal(t, "watching", refs[0].Raw["list_status"])
}

func TestOAuthShowRefResolution(t *testing.T) {
	t.Parallel()

	nested := newOAuthShowRef(map[string]any{
		"show": map[string]any{"id": float64(77), "title": "Fargo"},
	})
	assert.Equal(t, int64(77), nested.ID)
	assert.Equal(t, "Fargo", nested.Title)

	topLevel := newOAuthShowRef(map[string]any{
		"id":    float64(88),
		"title": "Luther",
	})
	assert.Equal(t, int64(88), topLevel.ID)
	assert.Equal(t, "Luther", topLevel.Title)
}
