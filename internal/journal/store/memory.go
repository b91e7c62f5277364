package store

import (
	"context"
	"sync"

	"platbook/internal/journal"
	id "platbook/pkg/domain"
)

// MemoryStore keeps journal entries in process memory, in append order.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []journal.Entry
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) ListByProperty(_ context.Context, propertyID id.PropertyID) ([]journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []journal.Entry
	for _, e := range s.entries {
		if e.PropertyID == propertyID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns the newest entries, newest first.
func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]journal.Entry, 0, limit)
	for i := len(s.entries) - 1; i >= len(s.entries)-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *MemoryStore) CountByKind(_ context.Context) (map[journal.Kind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[journal.Kind]int)
	for _, e := range s.entries {
		counts[e.Kind]++
	}
	return counts, nil
}
