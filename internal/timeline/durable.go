package timeline

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/agentchain/replaycore/internal/events"
)

// DurableStore is the embedded-KV Store implementation for production.
// It wraps a cometbft-db backend (goleveldb by default) across three
// keyspaces (records/, meta/cursor, by_hash/).
type DurableStore struct {
	mu        sync.Mutex
	db        dbm.DB
	retention Retention
	now       func() time.Time
}

// OpenDurableStore opens (or creates) a goleveldb-backed store at dir/name.
func OpenDurableStore(name, dir string, retention Retention) (*DurableStore, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, fmt.Errorf("timeline: open durable store: %w", err)
	}
	return NewDurableStore(db, retention), nil
}

// NewDurableStore wraps an already-open dbm.DB, letting callers supply
// any cometbft-db backend (goleveldb, memdb, badgerdb, ...).
func NewDurableStore(db dbm.DB, retention Retention) *DurableStore {
	return &DurableStore{db: db, retention: retention, now: time.Now}
}

func (s *DurableStore) Save(records []events.Record) error {
	return s.SaveBatch(records, nil)
}

func (s *DurableStore) SaveBatch(records []events.Record, cursor *events.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	seenInBatch := map[string]bool{}
	for _, r := range records {
		if r.ProjectionHash == "" {
			continue
		}
		if seenInBatch[r.ProjectionHash] {
			continue
		}
		exists, err := s.db.Has(hashKey(r.ProjectionHash))
		if err != nil {
			return fmt.Errorf("timeline: check existing hash: %w", err)
		}
		if exists {
			continue
		}
		seenInBatch[r.ProjectionHash] = true

		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("timeline: marshal record: %w", err)
		}
		key := recordKey(r.Slot, r.Signature, r.Seq)
		if err := batch.Set(key, body); err != nil {
			return fmt.Errorf("timeline: stage record: %w", err)
		}
		if err := batch.Set(hashKey(r.ProjectionHash), key); err != nil {
			return fmt.Errorf("timeline: stage hash index: %w", err)
		}
	}

	if cursor != nil {
		body, err := json.Marshal(cursor)
		if err != nil {
			return fmt.Errorf("timeline: marshal cursor: %w", err)
		}
		if err := batch.Set(cursorKey, body); err != nil {
			return fmt.Errorf("timeline: stage cursor: %w", err)
		}
	}

	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("timeline: commit batch: %w", err)
	}

	return s.enforceRetentionLocked(cursor)
}

// enforceRetentionLocked must be called with s.mu held. It reads the
// full records keyspace, computes evictions, and deletes them in a
// second atomic batch under the same write lock as save.
func (s *DurableStore) enforceRetentionLocked(justSavedCursor *events.Cursor) error {
	if s.retention.TTLMs == nil && s.retention.MaxEventsTotal == nil && s.retention.MaxEventsPerEntity == nil {
		return nil
	}

	cursor := justSavedCursor
	if cursor == nil {
		c, err := s.getCursorLocked()
		if err != nil {
			return err
		}
		cursor = c
	}

	all, keys, err := s.scanAllLocked()
	if err != nil {
		return err
	}
	kept := applyRetention(all, s.retention, cursor, s.now())
	keptHashes := make(map[string]bool, len(kept))
	for _, r := range kept {
		keptHashes[r.ProjectionHash] = true
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	changed := false
	for i, r := range all {
		if keptHashes[r.ProjectionHash] {
			continue
		}
		changed = true
		if err := batch.Delete(keys[i]); err != nil {
			return fmt.Errorf("timeline: stage retention delete: %w", err)
		}
		if err := batch.Delete(hashKey(r.ProjectionHash)); err != nil {
			return fmt.Errorf("timeline: stage retention hash delete: %w", err)
		}
	}
	if !changed {
		return nil
	}
	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("timeline: commit retention batch: %w", err)
	}
	return nil
}

func (s *DurableStore) scanAllLocked() ([]events.Record, [][]byte, error) {
	iter, err := s.db.Iterator(recordsPrefix, recordsRangeEnd())
	if err != nil {
		return nil, nil, fmt.Errorf("timeline: open iterator: %w", err)
	}
	defer iter.Close()

	var records []events.Record
	var keys [][]byte
	for ; iter.Valid(); iter.Next() {
		var r events.Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, nil, fmt.Errorf("timeline: decode record: %w", err)
		}
		records = append(records, r)
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return nil, nil, fmt.Errorf("timeline: iterator error: %w", err)
	}
	return records, keys, nil
}

func (s *DurableStore) Query(filter events.Filter) ([]events.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, _, err := s.scanAllLocked()
	if err != nil {
		return nil, err
	}
	var out []events.Record
	for _, r := range all {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *DurableStore) QueryCompacted(filter events.Filter, c Compaction) ([]CoalescedSpan, error) {
	records, err := s.Query(filter)
	if err != nil {
		return nil, err
	}
	return coalesce(records, c), nil
}

func (s *DurableStore) GetByHash(hash string) (*events.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := s.db.Get(hashKey(hash))
	if err != nil {
		return nil, false, fmt.Errorf("timeline: get hash index: %w", err)
	}
	if key == nil {
		return nil, false, nil
	}
	body, err := s.db.Get(key)
	if err != nil {
		return nil, false, fmt.Errorf("timeline: get record: %w", err)
	}
	if body == nil {
		return nil, false, nil
	}
	var r events.Record
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, false, fmt.Errorf("timeline: decode record: %w", err)
	}
	return &r, true, nil
}

func (s *DurableStore) GetCursor() (*events.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCursorLocked()
}

func (s *DurableStore) getCursorLocked() (*events.Cursor, error) {
	body, err := s.db.Get(cursorKey)
	if err != nil {
		return nil, fmt.Errorf("timeline: get cursor: %w", err)
	}
	if body == nil {
		return nil, nil
	}
	var c events.Cursor
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("timeline: decode cursor: %w", err)
	}
	if c.Signature != "" {
		iter, err := s.db.Iterator(recordKey(c.Slot, c.Signature, 0), recordKey(c.Slot, c.Signature, 1<<32-1))
		if err != nil {
			return nil, fmt.Errorf("timeline: validate cursor: %w", err)
		}
		found := iter.Valid()
		iter.Close()
		if !found {
			return nil, ErrCursorMismatch
		}
	}
	return &c, nil
}

func (s *DurableStore) SaveCursor(cursor events.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("timeline: marshal cursor: %w", err)
	}
	return s.db.SetSync(cursorKey, body)
}

func (s *DurableStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, keys, err := s.scanAllLocked()
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for i, r := range all {
		if err := batch.Delete(keys[i]); err != nil {
			return err
		}
		if err := batch.Delete(hashKey(r.ProjectionHash)); err != nil {
			return err
		}
	}
	if err := batch.Delete(cursorKey); err != nil {
		return err
	}
	return batch.WriteSync()
}

func (s *DurableStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
