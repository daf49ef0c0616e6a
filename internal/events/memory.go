package events

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory. Tests and short-lived CLI
// invocations use it; the watch daemon uses the postgres driver.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[recordKey]Record
	cursor    uint64
	cursorSet bool
}

type recordKey struct {
	txHash  string
	kind    Kind
	subject string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]Record)}
}

func (s *MemoryStore) Insert(_ context.Context, rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{txHash: rec.TxHash, kind: rec.Kind, subject: rec.Subject}
	if existing, ok := s.records[key]; ok {
		if existing != rec {
			return false, ErrMismatch
		}
		return false, nil
	}
	s.records[key] = rec
	return true, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Subject < out[j].Subject
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Cursor(_ context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, s.cursorSet, nil
}

func (s *MemoryStore) SetCursor(_ context.Context, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = block
	s.cursorSet = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
