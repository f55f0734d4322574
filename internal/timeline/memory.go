package timeline

import (
	"sort"
	"sync"
	"time"

	"github.com/agentchain/replaycore/internal/events"
)

// MemoryStore is the in-process Store implementation used for tests and
// ephemeral ingest. It is safe for concurrent readers while a single
// writer is active.
type MemoryStore struct {
	mu        sync.RWMutex
	records   []events.Record
	byHash    map[string]int // ProjectionHash -> index into records
	cursor    *events.Cursor
	retention Retention
	now       func() time.Time
}

// NewMemoryStore returns an empty MemoryStore with the given retention
// policy (zero value disables retention).
func NewMemoryStore(retention Retention) *MemoryStore {
	return &MemoryStore{
		byHash:    map[string]int{},
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryStore) Save(records []events.Record) error {
	return s.SaveBatch(records, nil)
}

func (s *MemoryStore) SaveBatch(records []events.Record, cursor *events.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seenInBatch := map[string]bool{}
	for _, r := range records {
		if r.ProjectionHash == "" {
			continue
		}
		if _, exists := s.byHash[r.ProjectionHash]; exists {
			continue
		}
		if seenInBatch[r.ProjectionHash] {
			continue
		}
		seenInBatch[r.ProjectionHash] = true
		s.records = append(s.records, r)
		s.byHash[r.ProjectionHash] = len(s.records) - 1
	}

	sort.SliceStable(s.records, func(i, j int) bool {
		a, b := s.records[i], s.records[j]
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		if a.Signature != b.Signature {
			return a.Signature < b.Signature
		}
		return a.Seq < b.Seq
	})
	s.reindex()

	if cursor != nil {
		s.cursor = cursor
	}

	s.records = applyRetention(s.records, s.retention, s.cursor, s.now())
	s.reindex()
	return nil
}

func (s *MemoryStore) reindex() {
	s.byHash = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.byHash[r.ProjectionHash] = i
	}
}

func (s *MemoryStore) Query(filter events.Filter) ([]events.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Record
	for _, r := range s.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) QueryCompacted(filter events.Filter, c Compaction) ([]CoalescedSpan, error) {
	records, err := s.Query(filter)
	if err != nil {
		return nil, err
	}
	return coalesce(records, c), nil
}

func (s *MemoryStore) GetByHash(hash string) (*events.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byHash[hash]
	if !ok {
		return nil, false, nil
	}
	rec := s.records[idx]
	return &rec, true, nil
}

func (s *MemoryStore) GetCursor() (*events.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cursor == nil {
		return nil, nil
	}
	if s.cursor.Signature != "" {
		found := false
		for _, r := range s.records {
			if r.Slot == s.cursor.Slot && r.Signature == s.cursor.Signature {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrCursorMismatch
		}
	}
	c := *s.cursor
	return &c, nil
}

func (s *MemoryStore) SaveCursor(cursor events.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = &cursor
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.byHash = map[string]int{}
	s.cursor = nil
	return nil
}

func (s *MemoryStore) Close() error { return nil }
