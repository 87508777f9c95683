// Package backup turns the raw per-show payloads of either myshows API
// into one canonical, ordered record set.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/olegsh/myshows-backup/internal/myshows"
	"github.com/olegsh/myshows-backup/internal/o11y"
)

// Config tunes the concurrent fetch pipeline. No correctness property
// depends on the exact values, only on the bounded-concurrency and
// no-abort-on-partial-failure contracts.
type Config struct {
	// Workers caps how many per-show fetch tasks run at once within a
	// batch.
	Workers int `env:"WORKERS,default=5"`
	// BatchSize bounds how many shows are coordinated in flight;
	// batches run strictly one after another. Zero means one batch.
	BatchSize int `env:"BATCH_SIZE,default=25"`
	// RequestDelay paces task submission and completion so the
	// upstream rate limiter is not burst.
	RequestDelay time.Duration `env:"REQUEST_DELAY,default=100ms"`
}

// progressEvery controls how often the runner logs completion counts.
const progressEvery = 10

// Runner drives a full backup: authenticate, list, fetch, normalize,
// assemble.
type Runner struct {
	client   myshows.Client
	cfg      Config
	reporter o11y.Reporter
	now      func() time.Time
}

// NewRunner creates a Runner. reporter may be nil.
func NewRunner(client myshows.Client, cfg Config, reporter o11y.Reporter) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{
		client:   client,
		cfg:      cfg,
		reporter: reporter,
		now:      time.Now,
	}
}

// Run performs the whole backup. Authentication and listing failures
// abort the run; a single show failing to fetch only drops that show.
// An empty library yields an empty result, not an error.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := r.now()

	if err := r.client.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	slog.Info("fetching the show list")
	refs, err := r.client.ListTrackedShows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracked shows: %w", err)
	}

	shows := make([]Show, 0, len(refs))
	if len(refs) == 0 {
		slog.Warn("no shows found for this user")
	} else {
		batches := r.batches(refs)
		slog.Info("starting the fetch", "shows", len(refs), "workers", r.cfg.Workers, "batches", len(batches))
		offset := 0
		for i, batch := range batches {
			slog.Info("processing batch", "batch", i+1, "of", len(batches))
			batchShows, err := r.processBatch(ctx, batch, offset)
			if err != nil {
				return nil, err
			}
			shows = append(shows, batchShows...)
			offset += len(batch)
		}
	}

	SortShows(shows)

	elapsed := math.Round(r.now().Sub(start).Seconds()*100) / 100
	slog.Info("processing completed", "seconds", elapsed, "shows", len(shows))
	if r.reporter != nil {
		r.reporter.SendMessage(ctx, fmt.Sprintf(
			"Backed up %d shows for %s in %.1fs", len(shows), r.client.Username(), elapsed))
	}

	return &Result{
		Meta: Meta{
			Username:       r.client.Username(),
			BackupDate:     start.Format(time.RFC3339),
			TotalShows:     len(shows),
			APIVersion:     string(r.client.Variant()),
			ProcessingTime: &elapsed,
		},
		Shows: shows,
	}, nil
}

// batches splits the reference list into fixed-size chunks.
func (r *Runner) batches(refs []myshows.ShowRef) [][]myshows.ShowRef {
	size := r.cfg.BatchSize
	if size <= 0 || size >= len(refs) {
		return [][]myshows.ShowRef{refs}
	}
	out := make([][]myshows.ShowRef, 0, (len(refs)+size-1)/size)
	for start := 0; start < len(refs); start += size {
		out = append(out, refs[start:min(start+size, len(refs))])
	}
	return out
}

// processBatch runs the batch's per-show fetch tasks under the worker
// cap. Submissions are staggered and each completion is followed by a
// small delay; a task failure drops its show and nothing else.
func (r *Runner) processBatch(ctx context.Context, batch []myshows.ShowRef, offset int) ([]Show, error) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		shows     = make([]Show, 0, len(batch))
		completed int
	)
	sem := make(chan struct{}, r.cfg.Workers)
	stagger := r.cfg.RequestDelay / time.Duration(r.cfg.Workers)

	for i, ref := range batch {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && stagger > 0 {
			if err := sleepCtx(ctx, stagger); err != nil {
				break
			}
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(ref myshows.ShowRef) {
			defer wg.Done()
			defer func() { <-sem }()

			show, err := r.fetchShow(ctx, ref)

			mu.Lock()
			completed++
			n := completed
			if err == nil {
				shows = append(shows, show)
			}
			mu.Unlock()

			switch {
			case err != nil:
				if ctx.Err() == nil {
					slog.Error("failed to process show", "title", ref.Title, "error", err)
				}
			case n%progressEvery == 0:
				slog.Info("progress", "processed", offset+n)
			}

			if r.cfg.RequestDelay > 0 {
				// breathe between completions so the rate limiter
				// stays calm
				_ = sleepCtx(ctx, r.cfg.RequestDelay)
			}
		}(ref)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return shows, nil
}

// fetchShow retrieves one show's detail and watched episodes, in that
// order, and normalizes the triple.
func (r *Runner) fetchShow(ctx context.Context, ref myshows.ShowRef) (Show, error) {
	detail, err := r.client.FetchShowDetail(ctx, ref.ID)
	if err != nil {
		return Show{}, fmt.Errorf("fetch detail: %w", err)
	}
	episodes, err := r.client.FetchWatchedEpisodes(ctx, ref.ID)
	if err != nil {
		return Show{}, fmt.Errorf("fetch watched episodes: %w", err)
	}
	return Normalize(r.client.Variant(), ref, detail, episodes), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
