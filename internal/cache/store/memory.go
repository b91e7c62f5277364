package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"platbook/internal/cache/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
	"platbook/pkg/requestcontext"
)

type entryKey struct {
	property id.PropertyID
	field    id.Field
}

// MemoryStore keeps cache entries, event dedup marks and in-flight refresh
// markers in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[entryKey]*models.Entry
	events   map[id.EventID]time.Time
	inflight map[entryKey]time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[entryKey]*models.Entry),
		events:   make(map[id.EventID]time.Time),
		inflight: make(map[entryKey]time.Time),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, e *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{e.PropertyID, e.Field}
	s.entries[key] = cloneEntry(e)
	// Fresh data ends any in-flight refresh for the field.
	if !e.Stale {
		delete(s.inflight, key)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, propertyID id.PropertyID, field id.Field) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryKey{propertyID, field}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) ListByProperty(_ context.Context, propertyID id.PropertyID) ([]*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Entry
	for key, e := range s.entries {
		if key.property == propertyID {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListProperties(_ context.Context) ([]id.PropertyID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[id.PropertyID]struct{})
	var out []id.PropertyID
	for key := range s.entries {
		if _, ok := seen[key.property]; ok {
			continue
		}
		seen[key.property] = struct{}{}
		out = append(out, key.property)
	}
	slices.SortFunc(out, func(a, b id.PropertyID) int {
		return strings.Compare(a.String(), b.String())
	})
	return out, nil
}

func (s *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Entry
	for _, e := range s.entries {
		if e.Expired(now) {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

// SeenEvent records an event id and reports whether it was already known.
func (s *MemoryStore) SeenEvent(ctx context.Context, eventID id.EventID, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx)
	if expiry, ok := s.events[eventID]; ok && now.Before(expiry) {
		return true, nil
	}
	s.events[eventID] = now.Add(ttl)
	return false, nil
}

// TryBeginRefresh acquires the in-flight marker for a field.
func (s *MemoryStore) TryBeginRefresh(ctx context.Context, propertyID id.PropertyID, field id.Field, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx)
	key := entryKey{propertyID, field}
	if expiry, ok := s.inflight[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.inflight[key] = now.Add(ttl)
	return true, nil
}

// EndRefresh releases the in-flight marker for a field.
func (s *MemoryStore) EndRefresh(_ context.Context, propertyID id.PropertyID, field id.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, entryKey{propertyID, field})
	return nil
}

func (s *MemoryStore) SetAmplified(_ context.Context, propertyID id.PropertyID, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if key.property == propertyID {
			e.AmplifiedConfidence = on
		}
	}
	return nil
}

func cloneEntry(e *models.Entry) *models.Entry {
	clone := *e
	return &clone
}
