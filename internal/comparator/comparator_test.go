package comparator

import (
	"encoding/json"
	"testing"

	"github.com/agentchain/replaycore/internal/anomaly"
	"github.com/agentchain/replaycore/internal/events"
	"github.com/agentchain/replaycore/internal/projector"
)

func mkEvent(name string, slot uint64, sig string, payload map[string]interface{}) events.RawEvent {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return events.RawEvent{EventName: name, Payload: raw, Slot: slot, Signature: sig}
}

func project(t *testing.T, inputs []events.RawEvent) []events.Record {
	t.Helper()
	res, err := projector.Project(inputs, projector.Config{})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	return res.Events
}

func sameWindow() []events.RawEvent {
	return []events.RawEvent{
		mkEvent("taskCreated", 10, "A", map[string]interface{}{"taskPda": "0x01"}),
		mkEvent("taskClaimed", 20, "B", map[string]interface{}{"taskPda": "0x01"}),
		mkEvent("taskCompleted", 30, "C", map[string]interface{}{"taskPda": "0x01"}),
	}
}

func TestComparator_Matched(t *testing.T) {
	projected := project(t, sameWindow())
	local := project(t, sameWindow())

	c := New(nil)
	report, err := c.Compare(projected, local, Config{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if report.Status != StatusMatched {
		t.Fatalf("expected matched, got %s (anomalies=%+v)", report.Status, report.Anomalies)
	}
	if report.MismatchCount != 0 {
		t.Errorf("expected 0 mismatches, got %d", report.MismatchCount)
	}
	if report.LocalReplayHash == "" || report.ProjectedReplayHash == "" {
		t.Errorf("expected non-empty replay hashes")
	}
	if report.LocalReplayHash != report.ProjectedReplayHash {
		t.Errorf("expected identical replay hashes for identical windows")
	}
}

func TestComparator_HashMismatch(t *testing.T) {
	projected := project(t, sameWindow())

	diverged := sameWindow()
	diverged[2] = mkEvent("taskCompleted", 30, "C", map[string]interface{}{"taskPda": "0x01", "resultHash": "0xdeadbeef"})
	local := project(t, diverged)

	c := New(nil)
	report, err := c.Compare(projected, local, Config{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if report.Status != StatusMismatched {
		t.Fatalf("expected mismatched, got %s", report.Status)
	}
	if report.MismatchCount != 1 {
		t.Fatalf("expected 1 mismatch, got %d", report.MismatchCount)
	}
	if report.FirstMismatch == nil || report.FirstMismatch.Kind != anomaly.KindReplayHashMismatch {
		t.Fatalf("expected firstMismatch to be a ReplayHashMismatch, got %+v", report.FirstMismatch)
	}
}

func TestComparator_MissingEventBothDirections(t *testing.T) {
	projected := project(t, sameWindow())

	truncated := sameWindow()[:2]
	local := project(t, truncated)

	c := New(nil)
	report, err := c.Compare(projected, local, Config{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if report.Status != StatusMismatched {
		t.Fatalf("expected mismatched, got %s", report.Status)
	}
	found := false
	for _, a := range report.Anomalies {
		if a.Kind == anomaly.KindReplayAnomalyRepeat {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a ReplayAnomalyRepeat anomaly, got %+v", report.Anomalies)
	}

	rev, err := New(nil).Compare(local, projected, Config{})
	if err != nil {
		t.Fatalf("reverse Compare: %v", err)
	}
	foundRev := false
	for _, a := range rev.Anomalies {
		if a.Code == "replay_event_missing_on_projected" {
			foundRev = true
		}
	}
	if !foundRev {
		t.Fatalf("expected a missing_on_projected anomaly in reverse direction, got %+v", rev.Anomalies)
	}
}

func TestComparator_InvalidInputWhenLocalNil(t *testing.T) {
	projected := project(t, sameWindow())

	c := New(nil)
	report, err := c.Compare(projected, nil, Config{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if report.Status != StatusInvalidInput {
		t.Fatalf("expected invalid_input, got %s", report.Status)
	}
}

// Repeat-count coalescing: re-detecting the same anomaly across two
// Compare calls on the same Comparator increments RepeatCount rather
// than appending a fresh row with count 1 again.
func TestComparator_RepeatCountCoalescesAcrossRuns(t *testing.T) {
	projected := project(t, sameWindow())
	truncated := sameWindow()[:2]
	local := project(t, truncated)

	c := New(nil)
	first, err := c.Compare(projected, local, Config{})
	if err != nil {
		t.Fatalf("first Compare: %v", err)
	}
	second, err := c.Compare(projected, local, Config{})
	if err != nil {
		t.Fatalf("second Compare: %v", err)
	}

	var firstCount, secondCount uint32
	for _, a := range first.Anomalies {
		if a.Kind == anomaly.KindReplayAnomalyRepeat {
			firstCount = a.RepeatCount
			break
		}
	}
	for _, a := range second.Anomalies {
		if a.Kind == anomaly.KindReplayAnomalyRepeat {
			secondCount = a.RepeatCount
			break
		}
	}
	if firstCount == 0 || secondCount != firstCount+1 {
		t.Fatalf("expected repeat count to increment across runs, got %d then %d", firstCount, secondCount)
	}
}

func TestComparator_StrictTimestampDrift(t *testing.T) {
	projected := project(t, sameWindow())
	local := project(t, sameWindow())
	// Simulate local-side clock drift beyond the default epsilon.
	for i := range local {
		local[i].TimestampMs += 10_000
	}

	c := New(nil)
	lenientReport, err := c.Compare(projected, local, Config{})
	if err != nil {
		t.Fatalf("lenient Compare: %v", err)
	}
	if lenientReport.Status != StatusMatched {
		t.Fatalf("lenient mode should still match on hash-only comparison, got %s", lenientReport.Status)
	}

	strictC := New(nil)
	strictReport, err := strictC.Compare(projected, local, Config{Strict: true})
	if err != nil {
		t.Fatalf("strict Compare: %v", err)
	}
	if strictReport.Status != StatusMismatched {
		t.Fatalf("strict mode should flag timestamp drift beyond epsilon, got %s", strictReport.Status)
	}
}
