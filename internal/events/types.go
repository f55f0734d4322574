// Copyright 2025 Certen Protocol
//
// Package events defines the data model shared by the projector, the
// timeline store, the backfill service, and the comparator: raw inputs,
// projected timeline records, cursors, and trace context.
package events

import "encoding/json"

// RawEvent is an external input from a ChainSource page.
type RawEvent struct {
	EventName           string          `json:"eventName"`
	Payload             json.RawMessage `json:"payload"`
	Slot                uint64          `json:"slot"`
	Signature           string          `json:"signature"`
	TimestampMs         uint64          `json:"timestampMs,omitempty"`
	SourceEventSequence *uint64         `json:"sourceEventSequence,omitempty"`
	TraceContext        *TraceContext   `json:"traceContext,omitempty"`

	// ArrayIndex is this event's position within the batch it arrived in.
	// Used as the SourceEventSequence default when the source omits one.
	ArrayIndex int `json:"-"`
}

// ResolvedSequence returns SourceEventSequence if the source provided
// one, else the event's array index.
func (e RawEvent) ResolvedSequence() uint64 {
	if e.SourceEventSequence != nil {
		return *e.SourceEventSequence
	}
	return uint64(e.ArrayIndex)
}

// TraceContext is propagated tracing identity, either carried verbatim
// from the input or synthesized deterministically by the projector.
type TraceContext struct {
	TraceID       string `json:"traceId"`
	SpanID        string `json:"spanId"`
	ParentSpanID  string `json:"parentSpanId,omitempty"`
	Sampled       bool   `json:"sampled"`
}

// Record is the persistent, idempotent projected timeline unit.
type Record struct {
	Seq                 uint64          `json:"seq"`
	Type                string          `json:"type"`
	TaskPda             string          `json:"taskPda,omitempty"`
	DisputePda          string          `json:"disputePda,omitempty"`
	SpeculationPda      string          `json:"speculationPda,omitempty"`
	TimestampMs         uint64          `json:"timestampMs"`
	Payload             json.RawMessage `json:"payload"`
	Slot                uint64          `json:"slot"`
	Signature           string          `json:"signature"`
	SourceEventName     string          `json:"sourceEventName"`
	SourceEventSequence uint64          `json:"sourceEventSequence"`
	ProjectionHash      string          `json:"projectionHash"` // 32 bytes, hex

	TraceID             string `json:"traceId"`
	TraceSpanID         string `json:"traceSpanId"`
	TraceParentSpanID   string `json:"traceParentSpanId,omitempty"`
	TraceSampled        bool   `json:"traceSampled"`
}

// Cursor is the opaque resume point for backfill.
type Cursor struct {
	Slot      uint64 `json:"slot"`
	Signature string `json:"signature"`
	EventName string `json:"eventName,omitempty"`
	TraceID   string `json:"traceId,omitempty"`
	TraceSpanID string `json:"traceSpanId,omitempty"`
}

// Filter selects a subset of the stored timeline for Store.Query.
type Filter struct {
	TraceID    string
	TaskPda    string
	DisputePda string
	FromSlot   *uint64
	ToSlot     *uint64
	FromSeq    *uint64
	ToSeq      *uint64
	Types      []string
}

// Matches reports whether record r satisfies filter f.
func (f Filter) Matches(r Record) bool {
	if f.TraceID != "" && r.TraceID != f.TraceID {
		return false
	}
	if f.TaskPda != "" && r.TaskPda != f.TaskPda {
		return false
	}
	if f.DisputePda != "" && r.DisputePda != f.DisputePda {
		return false
	}
	if f.FromSlot != nil && r.Slot < *f.FromSlot {
		return false
	}
	if f.ToSlot != nil && r.Slot > *f.ToSlot {
		return false
	}
	if f.FromSeq != nil && r.Seq < *f.FromSeq {
		return false
	}
	if f.ToSeq != nil && r.Seq > *f.ToSeq {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == r.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
