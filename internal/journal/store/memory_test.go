package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"platbook/internal/journal"
	id "platbook/pkg/domain"
)

type JournalStoreSuite struct {
	suite.Suite
	store *MemoryStore
}

func TestJournalStoreSuite(t *testing.T) {
	suite.Run(t, new(JournalStoreSuite))
}

func (s *JournalStoreSuite) SetupTest() {
	s.store = NewMemory()
}

func (s *JournalStoreSuite) TestListByProperty() {
	ctx := context.Background()
	base := time.Date(2026, 4, 5, 9, 0, 0, 0, time.UTC)
	propertyID := id.NewPropertyID()
	other := id.NewPropertyID()

	for i, e := range []journal.Entry{
		{Kind: journal.KindEntityConsolidated, PropertyID: propertyID},
		{Kind: journal.KindEntityClassified, PropertyID: propertyID},
		{Kind: journal.KindEntityConsolidated, PropertyID: other},
	} {
		e.At = base.Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.store.Append(ctx, e))
	}

	entries, err := s.store.ListByProperty(ctx, propertyID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(journal.KindEntityConsolidated, entries[0].Kind)
	s.Equal(journal.KindEntityClassified, entries[1].Kind)
}

func (s *JournalStoreSuite) TestListRecentNewestFirst() {
	ctx := context.Background()
	for _, detail := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.Append(ctx, journal.Entry{
			Kind:   journal.KindListingReceived,
			Detail: detail,
		}))
	}

	entries, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal("c", entries[0].Detail)
	s.Equal("b", entries[1].Detail)

	all, err := s.store.ListRecent(ctx, 0)
	s.Require().NoError(err)
	s.Len(all, 3)
}
