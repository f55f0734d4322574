package projector

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/agentchain/replaycore/internal/events"
)

// resolveTrace returns the input's carried trace context verbatim, or
// synthesizes a deterministic one:
//
//	spanId  = hash(traceId || slot || signature || eventName || sourceEventSequence)
//	sampled = sampler(sampleRate, spanId)
func resolveTrace(in events.RawEvent, configuredTraceID string, sampleRate float64, seq uint64) events.TraceContext {
	if in.TraceContext != nil {
		return *in.TraceContext
	}
	spanID := syntheticSpanID(configuredTraceID, in.Slot, in.Signature, in.EventName, seq)
	return events.TraceContext{
		TraceID: configuredTraceID,
		SpanID:  spanID,
		Sampled: sample(sampleRate, spanID),
	}
}

func syntheticSpanID(traceID string, slot uint64, signature, eventName string, seq uint64) string {
	h := sha256.New()
	h.Write([]byte(traceID))
	h.Write([]byte(fmt.Sprintf("%d", slot)))
	h.Write([]byte(signature))
	h.Write([]byte(eventName))
	h.Write([]byte(fmt.Sprintf("%d", seq)))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8]) // 8-byte span id, OpenTelemetry-shaped
}

// sample deterministically maps a hex span id to a boolean decision at
// the given sample rate (0..1) by comparing the span id's numeric value
// against the rate's share of the id space, so the same span id always
// yields the same sampling decision for a given rate.
func sample(sampleRate float64, spanIDHex string) bool {
	if sampleRate <= 0 {
		return false
	}
	if sampleRate >= 1 {
		return true
	}
	raw, err := hex.DecodeString(spanIDHex)
	if err != nil || len(raw) < 8 {
		return false
	}
	v := binary.BigEndian.Uint64(raw[:8])
	threshold := uint64(sampleRate * float64(^uint64(0)))
	return v < threshold
}
