// Copyright 2025 Certen Protocol
//
// Package chainsource defines the external input contract the backfill
// service drains, and a fake test double that implements it.
package chainsource

import (
	"context"
	"errors"

	"github.com/agentchain/replaycore/internal/events"
)

// Page is one page of raw events returned by fetchPage.
type Page struct {
	Events     []events.RawEvent
	NextCursor *events.Cursor
	Done       bool
}

// ChainSource is the input contract the embedder implements. Events
// within a page must be in (slot, signature) ascending order. Calling
// FetchPage with the same cursor must be idempotent, returning the same
// page back.
type ChainSource interface {
	FetchPage(ctx context.Context, cursor *events.Cursor, pageSize int) (Page, error)
}

// RetryableError wraps a FetchPage error the backfill service should
// retry with backoff (timeout, 5xx, rate-limit). Errors not wrapped
// this way are treated as aborting (4xx-class).
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should be retried with backoff rather
// than aborting the backfill run.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}
