// Copyright 2025 Certen Protocol
//
// Package timeline implements the idempotent, checkpointed projected-event
// store: an in-memory implementation for tests and ephemeral ingest, and a
// durable embedded-KV implementation for production, both behind the same
// Store interface.
package timeline

import (
	"errors"

	"github.com/agentchain/replaycore/internal/events"
)

// ErrCursorMismatch is returned by GetCursor when the persisted cursor
// points at a record retention has already evicted. Resuming from it
// would silently skip events, so callers must treat it as fatal rather
// than reset the cursor.
var ErrCursorMismatch = errors.New("timeline: cursor mismatch: resume point has been evicted by retention")

// Retention bounds how many records a store keeps, enforced at write
// time by dropping the oldest rows by (slot, signature). Retention never
// drops rows newer than the persisted cursor.
type Retention struct {
	TTLMs              *uint64
	MaxEventsTotal      *uint64
	MaxEventsPerEntity  *uint32
}

// Compaction controls read-time summarization of duplicate-payload runs.
// It never changes what is stored, only what Query returns.
type Compaction struct {
	CoalesceDuplicateSpans bool
}

// CoalescedSpan summarizes a run of records sharing (taskPda, type) and
// a byte-identical canonical payload, collapsed for a read-only query
// response.
type CoalescedSpan struct {
	First       events.Record `json:"first"`
	Last        events.Record `json:"last"`
	RepeatCount int           `json:"repeatCount"`
}

// Store is the contract both the in-memory and durable implementations
// satisfy.
type Store interface {
	// Save batch-inserts records. Idempotent on ProjectionHash: an
	// already-present hash is a no-op and does not advance any sequence.
	// Duplicates within the batch itself are also suppressed.
	Save(records []events.Record) error

	// SaveBatch atomically saves records and advances the cursor: either
	// both commit or neither does.
	SaveBatch(records []events.Record, cursor *events.Cursor) error

	// Query returns records matching filter, ordered by (slot, signature, seq).
	Query(filter events.Filter) ([]events.Record, error)

	// QueryCompacted is Query with compaction applied to the result.
	QueryCompacted(filter events.Filter, c Compaction) ([]CoalescedSpan, error)

	// GetByHash looks up a record by its projectionHash.
	GetByHash(hash string) (*events.Record, bool, error)

	// GetCursor returns the persisted cursor, or nil if none has been saved.
	GetCursor() (*events.Cursor, error)

	// SaveCursor persists cursor as the new resume point.
	SaveCursor(cursor events.Cursor) error

	// Clear removes all records and the cursor.
	Clear() error

	// Close releases any held resources, committing pending writes.
	Close() error
}
