// Copyright 2025 Certen Protocol
//
// Package comparator diffs a projected on-chain timeline against a
// locally-replayed trajectory and emits stable anomaly records, in two
// phases: phase one aligns and checks each pair, phase two folds the
// results into one report plus a whole-timeline replay hash.
package comparator

import (
	"sort"

	"github.com/agentchain/replaycore/internal/anomaly"
	"github.com/agentchain/replaycore/internal/canon"
	"github.com/agentchain/replaycore/internal/events"
)

// DefaultTimestampEpsilonMs is the drift tolerance between aligned pairs
// below which strict mode still treats a timestamp mismatch as fine.
const DefaultTimestampEpsilonMs = 250

// Config controls one Compare run.
type Config struct {
	// Strict reports missing events as errors and reports timestamp drift
	// beyond the epsilon on an aligned pair as an error. Lenient reports
	// missing events as warnings and does not compare timestamps at all:
	// drift produces no anomaly in lenient mode.
	Strict bool
	// TimestampEpsilonMs overrides DefaultTimestampEpsilonMs when > 0.
	TimestampEpsilonMs uint64
}

func (c Config) epsilon() uint64 {
	if c.TimestampEpsilonMs > 0 {
		return c.TimestampEpsilonMs
	}
	return DefaultTimestampEpsilonMs
}

// Report is the outcome of one Compare call.
type Report struct {
	Status              string           `json:"status"` // matched|mismatched|invalid_input
	MismatchCount       int              `json:"mismatchCount"`
	FirstMismatch       *anomaly.Record  `json:"firstMismatch,omitempty"`
	Anomalies           []anomaly.Record `json:"anomalies"`
	LocalReplayHash     string           `json:"localReplayHash"`
	ProjectedReplayHash string           `json:"projectedReplayHash"`
}

const (
	StatusMatched     = "matched"
	StatusMismatched  = "mismatched"
	StatusInvalidInput = "invalid_input"
)

// Comparator runs repeated Compare calls against the same window,
// coalescing repeated anomalies via an anomaly.Tracker that persists
// across calls.
type Comparator struct {
	tracker *anomaly.Tracker
	now     func() uint64
}

// New returns a Comparator with its own repeat-count tracker.
func New(nowMs func() uint64) *Comparator {
	if nowMs == nil {
		nowMs = func() uint64 { return 0 }
	}
	return &Comparator{tracker: anomaly.NewTracker(), now: nowMs}
}

// Compare aligns projected against local and produces a Report. local
// nil (as opposed to an empty, non-nil slice) means the caller never
// supplied a trajectory to diff against, which is an invalid_input
// rather than a comparison with zero matches.
func (c *Comparator) Compare(projected []events.Record, local []events.Record, cfg Config) (*Report, error) {
	if local == nil {
		return &Report{Status: StatusInvalidInput}, nil
	}

	localHash, err := replayHash(local)
	if err != nil {
		return nil, err
	}
	projectedHash, err := replayHash(projected)
	if err != nil {
		return nil, err
	}

	var anomalies []anomaly.Record
	matchedProjected := make([]bool, len(projected))
	matchedLocal := make([]bool, len(local))

	// Pass 1: align by (taskPda, sourceEventSequence).
	type seqKey struct {
		taskPda string
		seq     uint64
	}
	localBySeq := map[seqKey]int{}
	for i, r := range local {
		if r.TaskPda == "" {
			continue
		}
		localBySeq[seqKey{r.TaskPda, r.SourceEventSequence}] = i
	}
	for pi, pr := range projected {
		if pr.TaskPda == "" {
			continue
		}
		li, ok := localBySeq[seqKey{pr.TaskPda, pr.SourceEventSequence}]
		if !ok || matchedLocal[li] {
			continue
		}
		matchedProjected[pi] = true
		matchedLocal[li] = true
		if a := comparePair(pr, local[li], cfg); a != nil {
			tracked, err := c.tracker.Observe(*a, c.now())
			if err != nil {
				return nil, err
			}
			anomalies = append(anomalies, tracked)
		}
	}

	// Pass 2: align whatever is left by (taskPda, type, timestampMs).
	type fallbackKey struct {
		taskPda     string
		typ         string
		timestampMs uint64
	}
	localByFallback := map[fallbackKey]int{}
	for i, r := range local {
		if matchedLocal[i] {
			continue
		}
		localByFallback[fallbackKey{r.TaskPda, r.Type, r.TimestampMs}] = i
	}
	for pi, pr := range projected {
		if matchedProjected[pi] {
			continue
		}
		li, ok := localByFallback[fallbackKey{pr.TaskPda, pr.Type, pr.TimestampMs}]
		if !ok || matchedLocal[li] {
			continue
		}
		matchedProjected[pi] = true
		matchedLocal[li] = true
		if a := comparePair(pr, local[li], cfg); a != nil {
			tracked, err := c.tracker.Observe(*a, c.now())
			if err != nil {
				return nil, err
			}
			anomalies = append(anomalies, tracked)
		}
	}

	// Whatever remains unmatched on either side is missing on the other.
	for pi, pr := range projected {
		if matchedProjected[pi] {
			continue
		}
		a := missingAnomaly(pr, "missing_on_local", cfg)
		tracked, err := c.tracker.Observe(a, c.now())
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, tracked)
	}
	for li, lr := range local {
		if matchedLocal[li] {
			continue
		}
		a := missingAnomaly(lr, "missing_on_projected", cfg)
		tracked, err := c.tracker.Observe(a, c.now())
		if err != nil {
			return nil, err
		}
		anomalies = append(anomalies, tracked)
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		if anomalies[i].Slot != anomalies[j].Slot {
			return anomalies[i].Slot < anomalies[j].Slot
		}
		return anomalies[i].AnomalyID < anomalies[j].AnomalyID
	})

	mismatchCount := 0
	var firstMismatch *anomaly.Record
	for i := range anomalies {
		if anomalies[i].Kind == anomaly.KindReplayHashMismatch || anomalies[i].Kind == anomaly.KindReplayAnomalyRepeat {
			mismatchCount++
			if firstMismatch == nil {
				a := anomalies[i]
				firstMismatch = &a
			}
		}
	}

	status := StatusMatched
	if mismatchCount > 0 {
		status = StatusMismatched
	}

	return &Report{
		Status:              status,
		MismatchCount:        mismatchCount,
		FirstMismatch:        firstMismatch,
		Anomalies:            anomalies,
		LocalReplayHash:      localHash,
		ProjectedReplayHash:  projectedHash,
	}, nil
}

// comparePair returns a ReplayHashMismatch anomaly when two aligned
// records disagree on projectionHash, or (in strict mode) when their
// timestamps drift beyond the configured epsilon. nil means the pair
// matches cleanly.
func comparePair(projected, local events.Record, cfg Config) *anomaly.Record {
	if projected.ProjectionHash != local.ProjectionHash {
		return &anomaly.Record{
			Code:                "replay_hash_mismatch",
			Kind:                anomaly.KindReplayHashMismatch,
			Severity:            anomaly.SeverityError,
			Message:             "projected and local projection hashes disagree for aligned event",
			TaskPda:             projected.TaskPda,
			DisputePda:          projected.DisputePda,
			SourceEventName:     projected.SourceEventName,
			Signature:           projected.Signature,
			Slot:                projected.Slot,
			SourceEventSequence: projected.SourceEventSequence,
			TraceID:             projected.TraceID,
			Metadata: map[string]interface{}{
				"projectedHash": projected.ProjectionHash,
				"localHash":     local.ProjectionHash,
			},
		}
	}
	drift := timestampDrift(projected.TimestampMs, local.TimestampMs)
	if cfg.Strict && drift > cfg.epsilon() {
		return &anomaly.Record{
			Code:                "replay_timestamp_drift",
			Kind:                anomaly.KindReplayHashMismatch,
			Severity:            anomaly.SeverityError,
			Message:             "aligned event timestamps drift beyond epsilon in strict mode",
			TaskPda:             projected.TaskPda,
			DisputePda:          projected.DisputePda,
			SourceEventName:     projected.SourceEventName,
			Signature:           projected.Signature,
			Slot:                projected.Slot,
			SourceEventSequence: projected.SourceEventSequence,
			TraceID:             projected.TraceID,
			Metadata: map[string]interface{}{
				"projectedTimestampMs": projected.TimestampMs,
				"localTimestampMs":     local.TimestampMs,
				"driftMs":              drift,
				"epsilonMs":            cfg.epsilon(),
			},
		}
	}
	return nil
}

// missingAnomaly builds a ReplayAnomalyRepeat for a record present on
// one side and absent on the other. Severity follows the strict dial.
func missingAnomaly(r events.Record, side string, cfg Config) anomaly.Record {
	sev := anomaly.SeverityWarning
	if cfg.Strict {
		sev = anomaly.SeverityError
	}
	return anomaly.Record{
		Code:                "replay_event_" + side,
		Kind:                anomaly.KindReplayAnomalyRepeat,
		Severity:            sev,
		Message:             "event present on one side of the comparison is absent on the other",
		TaskPda:             r.TaskPda,
		DisputePda:          r.DisputePda,
		SourceEventName:     r.SourceEventName,
		Signature:           r.Signature,
		Slot:                r.Slot,
		SourceEventSequence: r.SourceEventSequence,
		TraceID:             r.TraceID,
		Metadata: map[string]interface{}{
			"side": side,
			"type": r.Type,
		},
	}
}

func timestampDrift(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// replayHash folds a timeline's projectionHash values, in the order
// given, into one whole-timeline hash.
func replayHash(records []events.Record) (string, error) {
	hashes := make([]string, len(records))
	for i, r := range records {
		hashes[i] = r.ProjectionHash
	}
	h, err := canon.HashConcatHex(hashes...)
	if err != nil {
		return "", err
	}
	return h, nil
}
