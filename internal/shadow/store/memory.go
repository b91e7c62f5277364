package store

import (
	"context"
	"sync"

	"platbook/internal/shadow/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
)

// MemoryStore keeps shadow groups in process memory. The liveOf index
// enforces the one-live-group-per-listing invariant.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[id.GroupID]*models.ShadowGroup
	liveOf map[id.ListingID]id.GroupID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		groups: make(map[id.GroupID]*models.ShadowGroup),
		liveOf: make(map[id.ListingID]id.GroupID),
	}
}

func (s *MemoryStore) Create(_ context.Context, g *models.ShadowGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[g.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, m := range g.Members {
		if _, assigned := s.liveOf[m]; assigned {
			return sentinel.ErrAlreadyAssigned
		}
	}
	s.groups[g.ID] = cloneGroup(g)
	for _, m := range g.Members {
		s.liveOf[m] = g.ID
	}
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, groupID id.GroupID) (*models.ShadowGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneGroup(g), nil
}

func (s *MemoryStore) FindByListing(_ context.Context, listingID id.ListingID) (*models.ShadowGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groupID, ok := s.liveOf[listingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneGroup(s.groups[groupID]), nil
}

// Update persists membership changes to a single live group. New members must
// not belong to another live group.
func (s *MemoryStore) Update(_ context.Context, g *models.ShadowGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[g.ID]; !exists {
		return sentinel.ErrNotFound
	}
	for _, m := range g.Members {
		if owner, assigned := s.liveOf[m]; assigned && owner != g.ID {
			return sentinel.ErrAlreadyAssigned
		}
	}
	s.groups[g.ID] = cloneGroup(g)
	for _, m := range g.Members {
		s.liveOf[m] = g.ID
	}
	return nil
}

// Merge persists a winner/loser pair atomically and repoints the loser's
// members at the winner.
func (s *MemoryStore) Merge(_ context.Context, winner, loser *models.ShadowGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[winner.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.groups[loser.ID]; !ok {
		return sentinel.ErrNotFound
	}

	s.groups[winner.ID] = cloneGroup(winner)
	s.groups[loser.ID] = cloneGroup(loser)
	for _, m := range winner.Members {
		s.liveOf[m] = winner.ID
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.ShadowGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ShadowGroup, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, cloneGroup(g))
	}
	return out, nil
}

func cloneGroup(g *models.ShadowGroup) *models.ShadowGroup {
	clone := *g
	clone.Members = append([]id.ListingID(nil), g.Members...)
	clone.Reassignments = append([]models.ReassignmentEntry(nil), g.Reassignments...)
	return &clone
}
