package timeline

import (
	"sort"
	"time"

	"github.com/agentchain/replaycore/internal/events"
)

// belowCursor reports whether r is at or before the persisted cursor's
// (slot, signature) position, the only rows retention is allowed to
// evict. Retention never drops rows newer than the cursor.
func belowCursor(r events.Record, cursor *events.Cursor) bool {
	if cursor == nil {
		return false
	}
	if r.Slot != cursor.Slot {
		return r.Slot < cursor.Slot
	}
	return r.Signature <= cursor.Signature
}

// applyRetention returns the subset of records to keep after enforcing
// ttlMs / maxEventsTotal / maxEventsPerEntity, evicting oldest-by-
// (slot, signature) first among rows at or before cursor. now is passed
// in so callers can make retention deterministic in tests.
func applyRetention(records []events.Record, r Retention, cursor *events.Cursor, now time.Time) []events.Record {
	if r.TTLMs == nil && r.MaxEventsTotal == nil && r.MaxEventsPerEntity == nil {
		return records
	}

	ordered := append([]events.Record(nil), records...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		if a.Signature != b.Signature {
			return a.Signature < b.Signature
		}
		return a.Seq < b.Seq
	})

	keep := make([]bool, len(ordered))
	for i := range keep {
		keep[i] = true
	}

	if r.TTLMs != nil {
		cutoff := uint64(now.UnixMilli())
		for i, rec := range ordered {
			if !belowCursor(rec, cursor) {
				continue
			}
			age := cutoff - rec.TimestampMs
			if rec.TimestampMs <= cutoff && age > *r.TTLMs {
				keep[i] = false
			}
		}
	}

	if r.MaxEventsPerEntity != nil {
		perEntity := map[string]int{}
		for i := len(ordered) - 1; i >= 0; i-- {
			if !keep[i] {
				continue
			}
			entity := ordered[i].TaskPda
			if entity == "" {
				entity = ordered[i].DisputePda
			}
			if entity == "" {
				entity = ordered[i].SpeculationPda
			}
			if entity == "" {
				continue
			}
			perEntity[entity]++
			if perEntity[entity] > int(*r.MaxEventsPerEntity) && belowCursor(ordered[i], cursor) {
				keep[i] = false
			}
		}
	}

	if r.MaxEventsTotal != nil {
		total := 0
		for _, k := range keep {
			if k {
				total++
			}
		}
		for i := 0; i < len(ordered) && total > int(*r.MaxEventsTotal); i++ {
			if keep[i] && belowCursor(ordered[i], cursor) {
				keep[i] = false
				total--
			}
		}
	}

	out := make([]events.Record, 0, len(ordered))
	for i, rec := range ordered {
		if keep[i] {
			out = append(out, rec)
		}
	}
	return out
}
