package myshows

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/olegsh/myshows-backup/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeClock records every backoff sleep instead of waiting.
type fakeClock struct {
	delays []time.Duration
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.delays = append(c.delays, d)
	return nil
}

func testPolicy(clock *fakeClock) RetryPolicy {
	p := DefaultRetryPolicy()
	p.sleep = clock.sleep
	return p
}

func response(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}
}

func buildGet(t *testing.T) func() (*http.Request, error) {
	t.Helper()
	return func() (*http.Request, error) {
		return http.NewRequestWithContext(t.Context(), http.MethodGet, "http://api.example.com/x", http.NoBody)
	}
}

func TestRetryRecoversFromServiceUnavailable(t *testing.T) {
	t.Parallel()

	mockctrl := gomock.NewController(t)
	t.Cleanup(mockctrl.Finish)

	doer := mocks.NewMockDoer(mockctrl)
	gomock.InOrder(
		doer.EXPECT().Do(gomock.Any()).Return(response(http.StatusServiceUnavailable), nil),
		doer.EXPECT().Do(gomock.Any()).Return(response(http.StatusServiceUnavailable), nil),
		doer.EXPECT().Do(gomock.Any()).Return(response(http.StatusOK), nil),
	)

	clock := &fakeClock{}
	resp, err := testPolicy(clock).do(t.Context(), doer, buildGet(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	// dedicated 503 budget: backoff doubles from 1s
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.delays)
}

func TestRetryExhaustsServiceUnavailableBudget(t *testing.T) {
	t.Parallel()

	mockctrl := gomock.NewController(t)
	t.Cleanup(mockctrl.Finish)

	doer := mocks.NewMockDoer(mockctrl)
	doer.EXPECT().Do(gomock.Any()).Return(response(http.StatusServiceUnavailable), nil).Times(5)

	clock := &fakeClock{}
	_, err := testPolicy(clock).do(t.Context(), doer, buildGet(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	}, clock.delays)
}

func TestRetryRecoversFromServerError(t *testing.T) {
	t.Parallel()

	mockctrl := gomock.NewController(t)
	t.Cleanup(mockctrl.Finish)

	doer := mocks.NewMockDoer(mockctrl)
	gomock.InOrder(
		doer.EXPECT().Do(gomock.Any()).Return(response(http.StatusBadGateway), nil),
		doer.EXPECT().Do(gomock.Any()).Return(response(http.StatusOK), nil),
	)

	clock := &fakeClock{}
	resp, err := testPolicy(clock).do(t.Context(), doer, buildGet(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	// standard budget: backoff starts at 200ms
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, clock.delays)
}

func TestRetryExhaustsConnectionErrors(t *testing.T) {
	t.Parallel()

	mockctrl := gomock.NewController(t)
	t.Cleanup(mockctrl.Finish)

	connErr := errors.New("connection refused")
	doer := mocks.NewMockDoer(mockctrl)
	doer.EXPECT().Do(gomock.Any()).Return(nil, connErr).Times(3)

	clock := &fakeClock{}
	_, err := testPolicy(clock).do(t.Context(), doer, buildGet(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, connErr)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, clock.delays)
}

func TestRetryPassesThroughClientErrors(t *testing.T) {
	t.Parallel()

	mockctrl := gomock.NewController(t)
	t.Cleanup(mockctrl.Finish)

	doer := mocks.NewMockDoer(mockctrl)
	doer.EXPECT().Do(gomock.Any()).Return(response(http.StatusForbidden), nil)

	clock := &fakeClock{}
	resp, err := testPolicy(clock).do(t.Context(), doer, buildGet(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, clock.delays)
}
