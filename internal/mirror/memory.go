package mirror

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Upsert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Owner] = rec
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, owner string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[owner]
	if !ok {
		return Record{}, ErrMiss
	}
	return rec, nil
}

func (s *MemoryStore) Owners(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make([]string, 0, len(s.records))
	for owner := range s.records {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners, nil
}
