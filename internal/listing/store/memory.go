package store

import (
	"context"
	"sync"
	"time"

	"platbook/internal/listing/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
)

// MemoryStore keeps raw listings in process memory. Used in tests and when no
// Postgres DSN is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[id.ListingID]*models.RawListingRecord
	bySource map[string]id.ListingID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[id.ListingID]*models.RawListingRecord),
		bySource: make(map[string]id.ListingID),
	}
}

// Create persists a new raw record. Returns sentinel.ErrConflict when the
// same (platform, native_id, extracted_at) triple was already ingested.
func (s *MemoryStore) Create(_ context.Context, rec *models.RawListingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.SourceKey()
	if _, exists := s.bySource[key]; exists {
		return sentinel.ErrConflict
	}
	clone := cloneRecord(rec)
	s.byID[rec.ID] = clone
	s.bySource[key] = rec.ID
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, listingID id.ListingID) (*models.RawListingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[listingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) FindBySource(_ context.Context, platform id.Platform, nativeID string, extractedAt time.Time) (*models.RawListingRecord, error) {
	probe := models.RawListingRecord{Platform: platform, NativeID: nativeID, ExtractedAt: extractedAt}

	s.mu.RLock()
	defer s.mu.RUnlock()

	listingID, ok := s.bySource[probe.SourceKey()]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(s.byID[listingID]), nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// cloneRecord guards callers against aliasing the store's copy; Fields maps
// are shared read-only by convention but the record header is copied.
func cloneRecord(rec *models.RawListingRecord) *models.RawListingRecord {
	clone := *rec
	return &clone
}
