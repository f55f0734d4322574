// Copyright 2025 Certen Protocol
//
// Package anomaly defines the stable anomaly record shared by the
// comparator and any future alerting sinks.
package anomaly

import (
	"github.com/agentchain/replaycore/internal/canon"
)

// Kind classifies what produced the anomaly.
type Kind string

const (
	KindTransitionValidation Kind = "TransitionValidation"
	KindReplayHashMismatch   Kind = "ReplayHashMismatch"
	KindReplayAnomalyRepeat  Kind = "ReplayAnomalyRepeat"
	KindIngestionLag         Kind = "IngestionLag"
)

// Severity is how loudly an anomaly should be surfaced.
type Severity string

const (
	SeverityInfo    Severity = "Info"
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
)

// Record is one anomaly. AnomalyID hashes the structural fields only
// (everything but RepeatCount and EmittedAtMs) so that re-detecting the
// same anomaly across runs coalesces into a repeat count instead of a
// fresh row.
type Record struct {
	AnomalyID           string                 `json:"anomalyId"`
	Code                string                 `json:"code"`
	Kind                Kind                   `json:"kind"`
	Severity            Severity               `json:"severity"`
	Message             string                 `json:"message"`
	TaskPda             string                 `json:"taskPda,omitempty"`
	DisputePda          string                 `json:"disputePda,omitempty"`
	SourceEventName     string                 `json:"sourceEventName,omitempty"`
	Signature           string                 `json:"signature,omitempty"`
	Slot                uint64                 `json:"slot,omitempty"`
	SourceEventSequence uint64                 `json:"sourceEventSequence,omitempty"`
	TraceID             string                 `json:"traceId,omitempty"`
	RepeatCount         uint32                 `json:"repeatCount"`
	EmittedAtMs         uint64                 `json:"emittedAtMs"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

// ComputeID derives the deterministic anomalyId from the structural
// fields of a not-yet-IDed record. Callers set every field except
// AnomalyID, RepeatCount, and EmittedAtMs before calling this.
func ComputeID(r Record) (string, error) {
	metaVal, err := canon.Canonicalize(r.Metadata)
	if err != nil {
		return "", err
	}
	v := canon.ObjectOf(
		canon.Member{Key: "code", Value: canon.String(r.Code)},
		canon.Member{Key: "kind", Value: canon.String(string(r.Kind))},
		canon.Member{Key: "severity", Value: canon.String(string(r.Severity))},
		canon.Member{Key: "message", Value: canon.String(r.Message)},
		canon.Member{Key: "taskPda", Value: canon.String(r.TaskPda)},
		canon.Member{Key: "disputePda", Value: canon.String(r.DisputePda)},
		canon.Member{Key: "sourceEventName", Value: canon.String(r.SourceEventName)},
		canon.Member{Key: "signature", Value: canon.String(r.Signature)},
		canon.Member{Key: "slot", Value: canon.UIntVal(r.Slot)},
		canon.Member{Key: "sourceEventSequence", Value: canon.UIntVal(r.SourceEventSequence)},
		canon.Member{Key: "traceId", Value: canon.String(r.TraceID)},
		canon.Member{Key: "metadata", Value: metaVal},
	)
	return canon.HashHex(v), nil
}

// Tracker coalesces repeated identical anomalies (by AnomalyID) across
// calls to Observe, incrementing RepeatCount instead of re-emitting a
// fresh row each time the same underlying condition is redetected.
type Tracker struct {
	seen map[string]uint32
}

// NewTracker returns an empty repeat-count tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: map[string]uint32{}}
}

// Observe assigns r.AnomalyID (if empty) and sets RepeatCount to the
// number of times this structural anomaly has now been observed,
// including this call.
func (t *Tracker) Observe(r Record, emittedAtMs uint64) (Record, error) {
	if r.AnomalyID == "" {
		id, err := ComputeID(r)
		if err != nil {
			return Record{}, err
		}
		r.AnomalyID = id
	}
	t.seen[r.AnomalyID]++
	r.RepeatCount = t.seen[r.AnomalyID]
	r.EmittedAtMs = emittedAtMs
	return r, nil
}
