// Copyright 2025 Certen Protocol
//
// Package backfill drains a ChainSource into the timeline store,
// resuming from the store's persisted cursor.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentchain/replaycore/internal/chainsource"
	"github.com/agentchain/replaycore/internal/events"
	"github.com/agentchain/replaycore/internal/projector"
	"github.com/agentchain/replaycore/internal/timeline"
)

// Config controls one backfill Run.
type Config struct {
	PageSize       int
	ToSlot         *uint64
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Strict         bool
	TraceID        string
	SampleRate     float64
}

// Result summarizes one Run. RunID identifies this invocation for logs
// and alerts; it is never part of a projectionHash and carries no
// replay-determinism meaning.
type Result struct {
	RunID        string         `json:"runId"`
	Processed    int            `json:"processed"`
	Duplicates   int            `json:"duplicates"`
	Cursor       *events.Cursor `json:"cursor"`
	PagesFetched int            `json:"pagesFetched"`
	DurationMs   uint64         `json:"durationMs"`
	Anomalies    []string       `json:"anomalies,omitempty"`
}

// ProjectionObserver receives each page's projector.Telemetry as it is
// produced. metrics.Registry satisfies this via ObserveProjection.
type ProjectionObserver interface {
	ObserveProjection(projector.Telemetry)
}

// Service is the backfill loop bound to one ChainSource and one store.
type Service struct {
	Source  chainsource.ChainSource
	Store   timeline.Store
	Config  Config
	Metrics ProjectionObserver // optional

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Service with production time/sleep wiring.
func New(source chainsource.ChainSource, store timeline.Store, cfg Config) *Service {
	return &Service{
		Source: source,
		Store:  store,
		Config: cfg,
		now:    time.Now,
		sleep:  sleepCtx,
	}
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

// Run drains the source from the store's cursor until done, the target
// slot is reached, ctx is cancelled, or a fatal error occurs. On
// cancellation, the in-flight page is allowed to finish and persist
// before the loop exits: the returned cursor reflects the last
// fully-persisted page.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	start := s.now()
	cursor, err := s.Store.GetCursor()
	if err != nil {
		return nil, fmt.Errorf("backfill: read cursor: %w", err)
	}
	result := &Result{RunID: uuid.New().String(), Cursor: cursor}

	for {
		select {
		case <-ctx.Done():
			result.DurationMs = elapsedMs(s.now(), start)
			return result, nil
		default:
		}

		page, err := s.fetchWithRetry(context.WithoutCancel(ctx), cursor)
		if err != nil {
			result.DurationMs = elapsedMs(s.now(), start)
			return result, err
		}
		result.PagesFetched++

		projRes, err := projector.Project(page.Events, projector.Config{
			Strict:     s.Config.Strict,
			TraceID:    s.Config.TraceID,
			SampleRate: s.Config.SampleRate,
		})
		if err != nil {
			// Strict-mode abort: leave the cursor untouched.
			result.DurationMs = elapsedMs(s.now(), start)
			return result, fmt.Errorf("backfill: projection failed: %w", err)
		}

		if s.Metrics != nil {
			s.Metrics.ObserveProjection(projRes.Telemetry)
		}

		nextCursor := page.NextCursor
		if err := s.Store.SaveBatch(projRes.Events, nextCursor); err != nil {
			result.DurationMs = elapsedMs(s.now(), start)
			return result, fmt.Errorf("backfill: save batch: %w", err)
		}

		result.Processed += len(projRes.Events)
		result.Duplicates += projRes.Telemetry.DuplicatesDropped
		if nextCursor != nil {
			cursor = nextCursor
			result.Cursor = nextCursor
		}

		if page.Done {
			break
		}
		if s.Config.ToSlot != nil && len(page.Events) > 0 && page.Events[0].Slot > *s.Config.ToSlot {
			break
		}
	}

	result.DurationMs = elapsedMs(s.now(), start)
	return result, nil
}

// fetchWithRetry retries FetchPage on chainsource.RetryableError with
// exponential backoff capped at Config.MaxBackoff.
// Non-retryable errors abort immediately.
func (s *Service) fetchWithRetry(ctx context.Context, cursor *events.Cursor) (chainsource.Page, error) {
	backoff := s.Config.InitialBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	maxBackoff := s.Config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= s.Config.MaxRetries; attempt++ {
		page, err := s.Source.FetchPage(ctx, cursor, s.Config.PageSize)
		if err == nil {
			return page, nil
		}
		if !chainsource.IsRetryable(err) {
			return chainsource.Page{}, fmt.Errorf("backfill: fetch page: %w", err)
		}
		lastErr = err
		if attempt == s.Config.MaxRetries {
			break
		}
		if err := s.sleep(ctx, backoff); err != nil {
			return chainsource.Page{}, err
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return chainsource.Page{}, fmt.Errorf("backfill: exhausted retries fetching page: %w", lastErr)
}

func elapsedMs(now, start time.Time) uint64 {
	return uint64(now.Sub(start).Milliseconds())
}
