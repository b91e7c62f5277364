package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"platbook/internal/listing/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
)

type ListingStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func (s *ListingStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func TestListingStoreSuite(t *testing.T) {
	suite.Run(t, new(ListingStoreSuite))
}

func (s *ListingStoreSuite) newRecord(nativeID string, extractedAt time.Time) *models.RawListingRecord {
	rec, err := models.New(id.PlatformCrexi, nativeID, extractedAt,
		map[string]any{"address": "123 Main Street", "price": 2_500_000},
		models.Metadata{ScraperVersion: "1.4.0", ExtractionStatus: models.ExtractionComplete},
		time.Now(),
	)
	s.Require().NoError(err)
	return rec
}

func (s *ListingStoreSuite) TestCreateAndFind() {
	extractedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := s.newRecord("crexi-991", extractedAt)
	s.Require().NoError(s.store.Create(s.ctx, rec))

	s.Run("finds by id", func() {
		found, err := s.store.FindByID(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(rec.NativeID, found.NativeID)
		s.Equal(rec.Platform, found.Platform)
	})

	s.Run("finds by source triple", func() {
		found, err := s.store.FindBySource(s.ctx, id.PlatformCrexi, "crexi-991", extractedAt)
		s.Require().NoError(err)
		s.Equal(rec.ID, found.ID)
	})

	s.Run("unknown id returns ErrNotFound", func() {
		_, err := s.store.FindByID(s.ctx, id.NewListingID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ListingStoreSuite) TestDedup() {
	extractedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := s.newRecord("crexi-991", extractedAt)
	s.Require().NoError(s.store.Create(s.ctx, first))

	s.Run("same source triple conflicts", func() {
		dup := s.newRecord("crexi-991", extractedAt)
		s.Require().ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)

		count, err := s.store.Count(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, count)
	})

	s.Run("new extraction timestamp is a new record", func() {
		later := s.newRecord("crexi-991", extractedAt.Add(time.Hour))
		s.Require().NoError(s.store.Create(s.ctx, later))

		count, err := s.store.Count(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, count)
	})
}
