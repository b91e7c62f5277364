package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"platbook/internal/review/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
)

// MemoryStore keeps review items in process memory. The pendingOf index
// enforces at most one pending item per listing.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[id.ReviewID]*models.ReviewItem
	pendingOf map[id.ListingID]id.ReviewID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		items:     make(map[id.ReviewID]*models.ReviewItem),
		pendingOf: make(map[id.ListingID]id.ReviewID),
	}
}

func (s *MemoryStore) Create(_ context.Context, item *models.ReviewItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return sentinel.ErrConflict
	}
	if item.IsPending() {
		if _, open := s.pendingOf[item.ListingID]; open {
			return sentinel.ErrConflict
		}
		s.pendingOf[item.ListingID] = item.ID
	}
	s.items[item.ID] = cloneItem(item)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, reviewID id.ReviewID) (*models.ReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[reviewID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneItem(item), nil
}

func (s *MemoryStore) FindPendingByListing(_ context.Context, listingID id.ListingID) (*models.ReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reviewID, ok := s.pendingOf[listingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneItem(s.items[reviewID]), nil
}

func (s *MemoryStore) Update(_ context.Context, item *models.ReviewItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	// Resolution is terminal: a racing second decision loses here instead of
	// overwriting the first.
	if !existing.IsPending() {
		return fmt.Errorf("review already resolved: %w", sentinel.ErrInvalidState)
	}
	s.items[item.ID] = cloneItem(item)
	if !item.IsPending() {
		delete(s.pendingOf, item.ListingID)
	}
	return nil
}

// ListPending returns open items oldest first, so reviewers drain the queue
// in arrival order.
func (s *MemoryStore) ListPending(_ context.Context) ([]*models.ReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ReviewItem
	for _, item := range s.items {
		if item.IsPending() {
			out = append(out, cloneItem(item))
		}
	}
	slices.SortFunc(out, func(a, b *models.ReviewItem) int {
		if cmp := a.CreatedAt.Compare(b.CreatedAt); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

func (s *MemoryStore) CountPending(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pendingOf), nil
}

func cloneItem(item *models.ReviewItem) *models.ReviewItem {
	clone := *item
	clone.Candidates = append([]models.Candidate(nil), item.Candidates...)
	return &clone
}
