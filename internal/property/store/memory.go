package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"platbook/internal/property/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
)

// MemoryStore keeps property entities in process memory. byGroup indexes the
// live (non-superseded) entity per shadow group.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[id.PropertyID]*models.PropertyEntity
	byGroup  map[id.GroupID]id.PropertyID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		entities: make(map[id.PropertyID]*models.PropertyEntity),
		byGroup:  make(map[id.GroupID]id.PropertyID),
	}
}

func (s *MemoryStore) Create(_ context.Context, e *models.PropertyEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[e.ID]; exists {
		return sentinel.ErrConflict
	}
	if !e.IsSuperseded() {
		if _, claimed := s.byGroup[e.GroupID]; claimed {
			return sentinel.ErrConflict
		}
		s.byGroup[e.GroupID] = e.ID
	}
	s.entities[e.ID] = cloneEntity(e)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, propertyID id.PropertyID) (*models.PropertyEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[propertyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEntity(e), nil
}

// FindByGroup returns the live entity consolidated from a shadow group.
func (s *MemoryStore) FindByGroup(_ context.Context, groupID id.GroupID) (*models.PropertyEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	propertyID, ok := s.byGroup[groupID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEntity(s.entities[propertyID]), nil
}

func (s *MemoryStore) Update(_ context.Context, e *models.PropertyEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[e.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.entities[e.ID] = cloneEntity(e)
	if e.IsSuperseded() {
		if s.byGroup[e.GroupID] == e.ID {
			delete(s.byGroup, e.GroupID)
		}
	} else {
		s.byGroup[e.GroupID] = e.ID
	}
	return nil
}

// List returns every entity, superseded ones included, ordered by creation.
func (s *MemoryStore) List(_ context.Context) ([]*models.PropertyEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.PropertyEntity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, cloneEntity(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListPage returns one page of live entities matching the query.
func (s *MemoryStore) ListPage(_ context.Context, q ListQuery) ([]*models.PropertyEntity, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	s.mu.RLock()
	matched := make([]*models.PropertyEntity, 0, len(s.entities))
	for _, e := range s.entities {
		if e.IsSuperseded() || !matchesQuery(e, q) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID.String() < matched[j].ID.String()
	})

	page := make([]*models.PropertyEntity, 0, limit)
	next := ""
	for _, e := range matched {
		if q.Cursor != "" && e.ID.String() <= q.Cursor {
			continue
		}
		if len(page) == limit {
			next = page[limit-1].ID.String()
			break
		}
		page = append(page, cloneEntity(e))
	}
	return page, next, nil
}

func matchesQuery(e *models.PropertyEntity, q ListQuery) bool {
	if q.Verdict != "" && string(e.Classification.Verdict) != q.Verdict {
		return false
	}
	if q.State != "" {
		st, _ := e.State()
		if !strings.EqualFold(st, q.State) {
			return false
		}
	}
	if q.City != "" {
		ct, _ := e.City()
		if !strings.EqualFold(ct, q.City) {
			return false
		}
	}
	if q.PropertyType != "" {
		pt, _ := e.PropertyType()
		if !strings.EqualFold(pt, q.PropertyType) {
			return false
		}
	}
	return true
}

// ListComparables returns live entities sharing state, city and property
// type, the comparable set for price-outlier detection.
func (s *MemoryStore) ListComparables(_ context.Context, state, city, propertyType string) ([]*models.PropertyEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PropertyEntity
	for _, e := range s.entities {
		if e.IsSuperseded() {
			continue
		}
		st, _ := e.State()
		ct, _ := e.City()
		pt, _ := e.PropertyType()
		if strings.EqualFold(st, state) && strings.EqualFold(ct, city) && strings.EqualFold(pt, propertyType) {
			out = append(out, cloneEntity(e))
		}
	}
	return out, nil
}

// CountByVerdict counts live entities per classification verdict.
func (s *MemoryStore) CountByVerdict(_ context.Context) (map[models.Verdict]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.Verdict]int)
	for _, e := range s.entities {
		if e.IsSuperseded() {
			continue
		}
		counts[e.Classification.Verdict]++
	}
	return counts, nil
}

// CountDiscardReasons histograms the classification reasons of live
// discarded entities.
func (s *MemoryStore) CountDiscardReasons(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range s.entities {
		if e.IsSuperseded() || e.Classification.Verdict != models.VerdictDiscarded {
			continue
		}
		for _, reason := range e.Classification.Reasons {
			counts[reason]++
		}
	}
	return counts, nil
}

// CountConflictsBySeverity counts retained conflict records on live entities.
func (s *MemoryStore) CountConflictsBySeverity(_ context.Context) (map[models.Severity]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.Severity]int)
	for _, e := range s.entities {
		if e.IsSuperseded() {
			continue
		}
		for _, c := range e.Conflicts {
			counts[c.Severity]++
		}
	}
	return counts, nil
}

func cloneEntity(e *models.PropertyEntity) *models.PropertyEntity {
	clone := *e
	clone.SourceListings = append([]id.ListingID(nil), e.SourceListings...)
	clone.Fields = make(map[id.Field]models.FieldValue, len(e.Fields))
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}
	clone.Conflicts = make([]models.ConflictRecord, len(e.Conflicts))
	for i, c := range e.Conflicts {
		clone.Conflicts[i] = c
		clone.Conflicts[i].Values = append([]models.ConflictValue(nil), c.Values...)
	}
	clone.Classification.Reasons = append([]string(nil), e.Classification.Reasons...)
	if e.Verification != nil {
		v := *e.Verification
		v.Documents = append([]string(nil), e.Verification.Documents...)
		v.Discrepancies = append([]models.Discrepancy(nil), e.Verification.Discrepancies...)
		clone.Verification = &v
	}
	if e.Enrichment != nil {
		en := *e.Enrichment
		en.Fields = make(map[string]any, len(e.Enrichment.Fields))
		for k, v := range e.Enrichment.Fields {
			en.Fields[k] = v
		}
		if e.Enrichment.Sources != nil {
			en.Sources = make(map[string]string, len(e.Enrichment.Sources))
			for k, v := range e.Enrichment.Sources {
				en.Sources[k] = v
			}
		}
		clone.Enrichment = &en
	}
	return &clone
}
