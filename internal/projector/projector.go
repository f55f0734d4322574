// Copyright 2025 Certen Protocol
//
// Package projector implements ordering, deduplication, canonicalization,
// and lifecycle-state-machine validation of raw events into an
// idempotent timeline.
package projector

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/agentchain/replaycore/internal/canon"
	"github.com/agentchain/replaycore/internal/events"
	"github.com/agentchain/replaycore/internal/lifecycle"
)

// Config controls one Project call.
type Config struct {
	// Strict, when true, turns any lifecycle transition violation, unknown
	// event, or malformed input into a fatal StrictError instead of a
	// telemetry entry.
	Strict bool

	// TraceID is the configured trace identifier used when an input
	// carries no trace context of its own.
	TraceID string

	// SampleRate is the deterministic sampler's rate in [0,1].
	SampleRate float64
}

// Result is the output of one Project call.
type Result struct {
	Events              []events.Record
	Telemetry           Telemetry
	DisputeReplayStates map[string]*DisputeReplayState
}

// entry is the per-input working state threaded from the pre-sort view
// through the main iteration pass.
type entry struct {
	raw              events.RawEvent
	seq              uint64
	payload          map[string]interface{}
	canonicalPayload canon.Value
	fingerprint      string
	canonicalType    string
	knownType        bool
	sortKey          int
}

// Project reduces a batch of raw events to a deterministic, deduplicated,
// lifecycle-validated timeline.
func Project(inputs []events.RawEvent, cfg Config) (*Result, error) {
	telemetry := Telemetry{TotalInputs: len(inputs)}

	entries := make([]*entry, 0, len(inputs))
	for i, raw := range inputs {
		raw.ArrayIndex = i
		seq := raw.ResolvedSequence()

		if raw.EventName == "" {
			telemetry.MalformedInputs = append(telemetry.MalformedInputs, MalformedInput{
				Signature: raw.Signature, EventName: raw.EventName, Reason: "empty event name",
			})
			continue
		}

		payload, err := decodePayload(raw.Payload)
		if err != nil {
			telemetry.MalformedInputs = append(telemetry.MalformedInputs, MalformedInput{
				Signature: raw.Signature, EventName: raw.EventName, Reason: "invalid payload: " + err.Error(),
			})
			continue
		}

		canonicalPayload, err := canon.Canonicalize(payload)
		if err != nil {
			telemetry.MalformedInputs = append(telemetry.MalformedInputs, MalformedInput{
				Signature: raw.Signature, EventName: raw.EventName, Reason: "canonicalization failed: " + err.Error(),
			})
			continue
		}

		fingerprint := canon.Stringify(canon.ObjectOf(
			canon.Member{Key: "eventPayload", Value: canonicalPayload},
			canon.Member{Key: "signature", Value: canon.String(raw.Signature)},
			canon.Member{Key: "slot", Value: canon.UIntVal(raw.Slot)},
			canon.Member{Key: "sourceEventName", Value: canon.String(raw.EventName)},
		))

		canonicalType, known := events.CanonicalType(raw.EventName)
		sortKey := events.TrajectorySortKey(canonicalType)

		entries = append(entries, &entry{
			raw:              raw,
			seq:              seq,
			payload:          payload,
			canonicalPayload: canonicalPayload,
			fingerprint:      fingerprint,
			canonicalType:    canonicalType,
			knownType:        known,
			sortKey:          sortKey,
		})
	}

	// Step 3: total deterministic sort.
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.raw.Slot != b.raw.Slot {
			return a.raw.Slot < b.raw.Slot
		}
		if a.raw.Signature != b.raw.Signature {
			return a.raw.Signature < b.raw.Signature
		}
		if a.sortKey != b.sortKey {
			return a.sortKey < b.sortKey
		}
		if a.raw.EventName != b.raw.EventName {
			return a.raw.EventName < b.raw.EventName
		}
		if a.fingerprint != b.fingerprint {
			return a.fingerprint < b.fingerprint
		}
		return a.seq < b.seq
	})

	taskStates := map[string]string{}
	disputeStates := map[string]string{}
	speculationStates := map[string]string{}
	seenFingerprints := map[string]bool{}
	disputeReplay := map[string]*DisputeReplayState{}

	var out []events.Record

	for _, e := range entries {
		if !e.knownType {
			telemetry.UnknownEvents++
			continue
		}
		if seenFingerprints[e.fingerprint] {
			telemetry.DuplicatesDropped++
			continue
		}
		seenFingerprints[e.fingerprint] = true

		taskPda, _ := stringField(e.payload, "taskPda")
		disputePda, _ := stringField(e.payload, "disputePda")
		speculationPda, _ := stringField(e.payload, "speculationPda")

		// Agent registry events carry no taskPda of their own; agentPda
		// is stored into the same TaskPda column so the scheduler can
		// query the latest reputation the same way it queries any other
		// entity's timeline (query({taskPda: agentPda}).
		if isAgentRegistryType(e.canonicalType) {
			taskPda, _ = stringField(e.payload, "agentPda")
		}

		fsm := events.FSMFor(e.canonicalType)
		if fsm != events.FSMNone {
			entityID := entityIDFor(fsm, taskPda, disputePda, speculationPda)
			stateMap := stateMapFor(fsm, taskStates, disputeStates, speculationStates)
			if entityID == "" {
				telemetry.MalformedInputs = append(telemetry.MalformedInputs, MalformedInput{
					Signature: e.raw.Signature, EventName: e.raw.EventName,
					Reason: "missing entity id for " + scopeName(fsm) + " event",
				})
				continue
			}
			current := stateMap[entityID]
			machine := machineFor(fsm)
			next, ok := machine.Apply(current, e.canonicalType)
			if !ok {
				v := TransitionViolation{
					Scope: scopeName(fsm), EntityPda: entityID,
					FromState: current, ToState: e.canonicalType,
					EventType: e.canonicalType, Reason: "invalid_transition",
					Signature: e.raw.Signature, Slot: e.raw.Slot,
				}
				telemetry.TransitionViolations = append(telemetry.TransitionViolations, v)
				telemetry.TransitionConflicts++
			} else {
				stateMap[entityID] = next
			}
		}

		trace := resolveTrace(e.raw, cfg.TraceID, cfg.SampleRate, e.seq)
		rec := buildRecord(e, taskPda, disputePda, speculationPda, trace)
		out = append(out, rec)

		trackDisputeReplay(disputeReplay, e, disputePda)

		// Secondary projection: dispute:initiated -> task disputed, only
		// when the task is currently claimed. Tasks still in "discovered"
		// never receive a derived "disputed" record.
		if e.canonicalType == events.TypeDisputeInitiated && taskPda != "" {
			if taskStates[taskPda] == lifecycle.TaskClaimed {
				taskStates[taskPda] = lifecycle.TaskDisputed
				secondary := e
				secondary.canonicalType = events.TypeDisputed
				secondaryTrace := resolveTrace(e.raw, cfg.TraceID, cfg.SampleRate, e.seq)
				secRec := buildRecord(secondary, taskPda, "", "", secondaryTrace)
				out = append(out, secRec)
			}
		}
	}

	// Step 5: re-sequence seq to be 1-based dense over insertion order.
	for i := range out {
		out[i].Seq = uint64(i + 1)
	}
	telemetry.ProjectedEvents = len(out)

	// Strict mode turns transition violations, unknown events, and
	// malformed inputs from telemetry into a fatal batch error instead
	// of projecting anyway.
	if cfg.Strict && (len(telemetry.TransitionViolations) > 0 || telemetry.UnknownEvents > 0 || len(telemetry.MalformedInputs) > 0) {
		return nil, &StrictError{
			Violations:      telemetry.TransitionViolations,
			UnknownEvents:   telemetry.UnknownEvents,
			MalformedInputs: telemetry.MalformedInputs,
		}
	}

	return &Result{Events: out, Telemetry: telemetry, DisputeReplayStates: disputeReplay}, nil
}

func decodePayload(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func stringField(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func entityIDFor(fsm events.FSM, taskPda, disputePda, speculationPda string) string {
	switch fsm {
	case events.FSMTask:
		return taskPda
	case events.FSMDispute:
		return disputePda
	case events.FSMSpeculation:
		return speculationPda
	}
	return ""
}

func stateMapFor(fsm events.FSM, task, dispute, speculation map[string]string) map[string]string {
	switch fsm {
	case events.FSMTask:
		return task
	case events.FSMDispute:
		return dispute
	case events.FSMSpeculation:
		return speculation
	}
	return nil
}

func isAgentRegistryType(canonicalType string) bool {
	switch canonicalType {
	case events.TypeAgentRegistered, events.TypeAgentReputationUpdated, events.TypeAgentDeregistered:
		return true
	}
	return false
}

func scopeName(fsm events.FSM) string {
	switch fsm {
	case events.FSMTask:
		return "task"
	case events.FSMDispute:
		return "dispute"
	case events.FSMSpeculation:
		return "speculation"
	}
	return ""
}

func machineFor(fsm events.FSM) lifecycle.Machine {
	switch fsm {
	case events.FSMTask:
		return lifecycle.Task()
	case events.FSMDispute:
		return lifecycle.Dispute()
	case events.FSMSpeculation:
		return lifecycle.Speculation()
	}
	return lifecycle.Machine{}
}

func trackDisputeReplay(replay map[string]*DisputeReplayState, e *entry, disputePda string) {
	if disputePda == "" {
		return
	}
	st, ok := replay[disputePda]
	if !ok {
		st = &DisputeReplayState{DisputePda: disputePda}
		replay[disputePda] = st
	}
	switch e.canonicalType {
	case events.TypeDisputeVoteCast:
		st.VoteCount++
		st.VoterSignatures = append(st.VoterSignatures, e.raw.Signature)
	case events.TypeDisputeResolved:
		if outcome, ok := stringField(e.payload, "outcome"); ok {
			st.ResolutionOutcome = outcome
		}
	}
}

// buildRecord canonicalizes the augmented payload (original fields plus
// an "onchain" provenance+trace envelope) and computes the record's
// projectionHash over that final content.
func buildRecord(e *entry, taskPda, disputePda, speculationPda string, trace events.TraceContext) events.Record {
	augmented := make(map[string]interface{}, len(e.payload)+1)
	for k, v := range e.payload {
		augmented[k] = v
	}
	onchain := map[string]interface{}{
		"slot":                e.raw.Slot,
		"signature":           e.raw.Signature,
		"sourceEventName":     e.raw.EventName,
		"sourceEventSequence": e.seq,
		"trace": map[string]interface{}{
			"traceId":      trace.TraceID,
			"spanId":       trace.SpanID,
			"parentSpanId": trace.ParentSpanID,
			"sampled":      trace.Sampled,
		},
	}
	augmented["onchain"] = onchain

	canonicalAugmented, err := canon.Canonicalize(augmented)
	if err != nil {
		// augmented is built from already-canonicalizable payload plus
		// plain scalars, so this can only happen on pathological depth.
		canonicalAugmented = e.canonicalPayload
	}

	hashMembers := []canon.Member{
		{Key: "type", Value: canon.String(e.canonicalType)},
		{Key: "timestampMs", Value: canon.UIntVal(e.raw.TimestampMs)},
		{Key: "payload", Value: canonicalAugmented},
		{Key: "slot", Value: canon.UIntVal(e.raw.Slot)},
		{Key: "signature", Value: canon.String(e.raw.Signature)},
		{Key: "sourceEventName", Value: canon.String(e.raw.EventName)},
		{Key: "sourceEventSequence", Value: canon.UIntVal(e.seq)},
	}
	if taskPda != "" {
		hashMembers = append(hashMembers, canon.Member{Key: "taskPda", Value: canon.String(taskPda)})
	}
	hash := canon.HashHex(canon.ObjectOf(hashMembers...))

	return events.Record{
		Type:                e.canonicalType,
		TaskPda:             taskPda,
		DisputePda:          disputePda,
		SpeculationPda:      speculationPda,
		TimestampMs:         e.raw.TimestampMs,
		Payload:             json.RawMessage(canon.Stringify(canonicalAugmented)),
		Slot:                e.raw.Slot,
		Signature:           e.raw.Signature,
		SourceEventName:     e.raw.EventName,
		SourceEventSequence: e.seq,
		ProjectionHash:      hash,
		TraceID:             trace.TraceID,
		TraceSpanID:         trace.SpanID,
		TraceParentSpanID:   trace.ParentSpanID,
		TraceSampled:        trace.Sampled,
	}
}
