package backfill

import (
	"context"
	"testing"
	"time"

	"github.com/agentchain/replaycore/internal/chainsource"
	"github.com/agentchain/replaycore/internal/events"
	"github.com/agentchain/replaycore/internal/timeline"
)

func noopSleep(ctx context.Context, d time.Duration) error { return nil }

func mkPage(slot uint64, sig string, next *events.Cursor, done bool) chainsource.Page {
	return chainsource.Page{
		Events: []events.RawEvent{{
			EventName: "taskCreated",
			Payload:   []byte(`{"taskPda":"0x01"}`),
			Slot:      slot,
			Signature: sig,
		}},
		NextCursor: next,
		Done:       done,
	}
}

func fivePages() []chainsource.Page {
	var pages []chainsource.Page
	for i := 0; i < 5; i++ {
		slot := uint64((i + 1) * 10)
		sig := string(rune('A' + i))
		next := events.Cursor{Slot: slot, Signature: sig}
		done := i == 4
		pages = append(pages, mkPage(slot, sig, &next, done))
	}
	return pages
}

func TestBackfill_DrainsAllPages(t *testing.T) {
	source := chainsource.NewFakeChainSource(fivePages())
	store := timeline.NewMemoryStore(timeline.Retention{})
	svc := New(source, store, Config{PageSize: 1, MaxRetries: 3})
	svc.sleep = noopSleep

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.PagesFetched != 5 {
		t.Errorf("expected 5 pages fetched, got %d", result.PagesFetched)
	}
	if result.Processed != 5 {
		t.Errorf("expected 5 records processed, got %d", result.Processed)
	}
}

func TestBackfill_RetriesTransientFailures(t *testing.T) {
	source := chainsource.NewFakeChainSource(fivePages())
	source.FailNTimes(2, 2)
	store := timeline.NewMemoryStore(timeline.Retention{})
	svc := New(source, store, Config{PageSize: 1, MaxRetries: 3, InitialBackoff: time.Millisecond})
	svc.sleep = noopSleep

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.PagesFetched != 5 {
		t.Errorf("expected 5 pages fetched despite retries, got %d", result.PagesFetched)
	}
}

// Scenario 6: backfill resume. Kill after page 3, restart; the
// remaining run plus the restart must equal the one-shot run.
func TestBackfill_ResumeFromCursor(t *testing.T) {
	oneShotSource := chainsource.NewFakeChainSource(fivePages())
	oneShotStore := timeline.NewMemoryStore(timeline.Retention{})
	oneShot := New(oneShotSource, oneShotStore, Config{PageSize: 1, MaxRetries: 3})
	oneShot.sleep = noopSleep
	if _, err := oneShot.Run(context.Background()); err != nil {
		t.Fatalf("one-shot Run: %v", err)
	}
	want, err := oneShotStore.Query(events.Filter{})
	if err != nil {
		t.Fatalf("one-shot Query: %v", err)
	}

	resumedStore := timeline.NewMemoryStore(timeline.Retention{})
	pages := fivePages()
	firstThree := chainsource.NewFakeChainSource(pages[:3])
	firstRun := New(firstThree, resumedStore, Config{PageSize: 1, MaxRetries: 3})
	firstRun.sleep = noopSleep
	if _, err := firstRun.Run(context.Background()); err != nil {
		t.Fatalf("first partial Run: %v", err)
	}

	fullSource := chainsource.NewFakeChainSource(pages)
	secondRun := New(fullSource, resumedStore, Config{PageSize: 1, MaxRetries: 3})
	secondRun.sleep = noopSleep
	if _, err := secondRun.Run(context.Background()); err != nil {
		t.Fatalf("resumed Run: %v", err)
	}

	got, err := resumedStore.Query(events.Filter{})
	if err != nil {
		t.Fatalf("resumed Query: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("resumed store has %d records, one-shot has %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ProjectionHash != want[i].ProjectionHash {
			t.Errorf("record %d: hash mismatch between resumed and one-shot stores", i)
		}
	}
}

// Universal property 4: two runs over the same ChainSource yield
// byte-identical stores regardless of pageSize and retry counts.
func TestBackfill_DeterministicAcrossPageSizeAndRetries(t *testing.T) {
	baseline := timeline.NewMemoryStore(timeline.Retention{})
	baseSvc := New(chainsource.NewFakeChainSource(fivePages()), baseline, Config{PageSize: 1, MaxRetries: 1})
	baseSvc.sleep = noopSleep
	if _, err := baseSvc.Run(context.Background()); err != nil {
		t.Fatalf("baseline Run: %v", err)
	}
	want, err := baseline.Query(events.Filter{})
	if err != nil {
		t.Fatalf("baseline Query: %v", err)
	}

	variant := timeline.NewMemoryStore(timeline.Retention{})
	source := chainsource.NewFakeChainSource(fivePages())
	source.FailNTimes(3, 2)
	varSvc := New(source, variant, Config{PageSize: 10, MaxRetries: 5, InitialBackoff: time.Millisecond})
	varSvc.sleep = noopSleep
	if _, err := varSvc.Run(context.Background()); err != nil {
		t.Fatalf("variant Run: %v", err)
	}
	got, err := variant.Query(events.Filter{})
	if err != nil {
		t.Fatalf("variant Query: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("variant store has %d records, baseline has %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ProjectionHash != want[i].ProjectionHash {
			t.Errorf("record %d: hash mismatch between pageSize/retry variant and baseline", i)
		}
	}
}

func TestBackfill_CancellationLeavesLastPersistedPageInCursor(t *testing.T) {
	source := chainsource.NewFakeChainSource(fivePages())
	store := timeline.NewMemoryStore(timeline.Retention{})
	svc := New(source, store, Config{PageSize: 1, MaxRetries: 3})
	svc.sleep = noopSleep

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error on cancellation: %v", err)
	}
	if result.PagesFetched != 0 {
		t.Errorf("expected 0 pages fetched when cancelled before start, got %d", result.PagesFetched)
	}
	if result.Cursor != nil {
		t.Errorf("expected nil cursor when no page was persisted, got %+v", result.Cursor)
	}
}
