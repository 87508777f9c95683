package myshows

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// RetryPolicy bounds how transport failures are retried before a call
// is allowed to fail. 503 Service Unavailable gets its own, more
// patient budget: it is what the upstream rate limiter hands out, and
// backing off longer usually clears it.
type RetryPolicy struct {
	// MaxAttempts is the attempt ceiling for connection errors and
	// non-503 5xx responses.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff for those failures.
	BaseDelay time.Duration
	// MaxAttempts503 and BaseDelay503 form the dedicated budget for
	// 503 responses.
	MaxAttempts503 int
	BaseDelay503   time.Duration

	// sleep is swapped out in tests for a fake clock.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the budgets both clients use.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      200 * time.Millisecond,
		MaxAttempts503: 5,
		BaseDelay503:   time.Second,
	}
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do sends the request built by build, retrying per the policy. The
// request is rebuilt on every attempt because request bodies are
// single-use. Responses below 500 are returned to the caller as-is.
func (p RetryPolicy) do(ctx context.Context, client Doer, build func() (*http.Request, error)) (*http.Response, error) {
	var attempts, attempts503 int
	for {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := client.Do(req)
		var delay time.Duration
		switch {
		case err != nil:
			attempts++
			if attempts >= p.MaxAttempts {
				return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, err)
			}
			delay = p.BaseDelay << (attempts - 1)
			slog.Warn("request failed, retrying", "url", req.URL.String(), "delay", delay, "error", err)
		case resp.StatusCode == http.StatusServiceUnavailable:
			drainAndClose(resp)
			attempts503++
			if attempts503 >= p.MaxAttempts503 {
				return nil, fmt.Errorf("http 503 after %d attempts", attempts503)
			}
			delay = p.BaseDelay503 << (attempts503 - 1)
			slog.Warn("service unavailable, retrying", "url", req.URL.String(), "delay", delay, "attempt", attempts503)
		case resp.StatusCode >= http.StatusInternalServerError:
			drainAndClose(resp)
			attempts++
			if attempts >= p.MaxAttempts {
				return nil, fmt.Errorf("http %d after %d attempts", resp.StatusCode, attempts)
			}
			delay = p.BaseDelay << (attempts - 1)
			slog.Warn("server error, retrying", "url", req.URL.String(), "status", resp.StatusCode, "delay", delay)
		default:
			return resp, nil
		}

		if werr := p.wait(ctx, delay); werr != nil {
			return nil, werr
		}
	}
}

// drainAndClose empties the body so the connection goes back to the
// pool instead of being torn down.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
