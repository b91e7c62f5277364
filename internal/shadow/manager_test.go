package shadow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"platbook/internal/shadow/store"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

type ManagerSuite struct {
	suite.Suite
	store   *store.MemoryStore
	manager *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.store = store.NewMemory()
	s.manager = NewManager(s.store)
}

func (s *ManagerSuite) TestCreateGroup() {
	ctx := context.Background()

	s.Run("creates a group around the listing", func() {
		listingID := id.NewListingID()
		g, err := s.manager.CreateGroup(ctx, listingID)
		s.Require().NoError(err)
		s.True(g.HasMember(listingID))

		found, err := s.manager.GroupForListing(ctx, listingID)
		s.Require().NoError(err)
		s.Equal(g.ID, found.ID)
	})

	s.Run("rejects a listing already grouped", func() {
		listingID := id.NewListingID()
		_, err := s.manager.CreateGroup(ctx, listingID)
		s.Require().NoError(err)

		_, err = s.manager.CreateGroup(ctx, listingID)
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})

	s.Run("rejects a nil listing", func() {
		_, err := s.manager.CreateGroup(ctx, id.ListingID{})
		s.Require().Error(err)
		s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
	})
}

func (s *ManagerSuite) TestAddMember() {
	ctx := context.Background()

	s.Run("attaches a new listing", func() {
		g, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)

		added := id.NewListingID()
		updated, err := s.manager.AddMember(ctx, g.ID, added)
		s.Require().NoError(err)
		s.True(updated.HasMember(added))
		s.Len(updated.Members, 2)
	})

	s.Run("re-adding an existing member is idempotent", func() {
		listingID := id.NewListingID()
		g, err := s.manager.CreateGroup(ctx, listingID)
		s.Require().NoError(err)

		updated, err := s.manager.AddMember(ctx, g.ID, listingID)
		s.Require().NoError(err)
		s.Len(updated.Members, 1)
	})

	s.Run("rejects a listing claimed by another group", func() {
		claimed := id.NewListingID()
		_, err := s.manager.CreateGroup(ctx, claimed)
		s.Require().NoError(err)

		g, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)

		_, err = s.manager.AddMember(ctx, g.ID, claimed)
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})

	s.Run("unknown group returns not found", func() {
		_, err := s.manager.AddMember(ctx, id.NewGroupID(), id.NewListingID())
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})
}

func (s *ManagerSuite) TestMerge() {
	ctx := context.Background()

	s.Run("folds the loser into the winner", func() {
		winnerListing := id.NewListingID()
		loserListing := id.NewListingID()

		winner, err := s.manager.CreateGroup(ctx, winnerListing)
		s.Require().NoError(err)
		loser, err := s.manager.CreateGroup(ctx, loserListing)
		s.Require().NoError(err)

		merged, err := s.manager.Merge(ctx, winner.ID, loser.ID, "review confirmed")
		s.Require().NoError(err)
		s.Equal(winner.ID, merged.ID)
		s.True(merged.HasMember(winnerListing))
		s.True(merged.HasMember(loserListing))

		// Loser's listing now resolves to the winner.
		live, err := s.manager.GroupForListing(ctx, loserListing)
		s.Require().NoError(err)
		s.Equal(winner.ID, live.ID)

		// The tombstone records the reassignment.
		tombstone, err := s.store.FindByID(ctx, loser.ID)
		s.Require().NoError(err)
		s.True(tombstone.IsMerged())
		s.Require().Len(tombstone.Reassignments, 1)
		s.Equal("review confirmed", tombstone.Reassignments[0].Reason)
	})

	s.Run("repeating the same merge is idempotent", func() {
		winner, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)
		loser, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)

		_, err = s.manager.Merge(ctx, winner.ID, loser.ID, "dup")
		s.Require().NoError(err)

		again, err := s.manager.Merge(ctx, winner.ID, loser.ID, "dup")
		s.Require().NoError(err)
		s.Equal(winner.ID, again.ID)
		s.Len(again.Members, 2)
	})

	s.Run("merging a group into itself is a no-op", func() {
		g, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)

		merged, err := s.manager.Merge(ctx, g.ID, g.ID, "noise")
		s.Require().NoError(err)
		s.Equal(g.ID, merged.ID)
		s.False(merged.IsMerged())
	})

	s.Run("loser already merged elsewhere is a conflict", func() {
		a, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)
		b, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)
		c, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)

		_, err = s.manager.Merge(ctx, a.ID, b.ID, "first")
		s.Require().NoError(err)

		_, err = s.manager.Merge(ctx, c.ID, b.ID, "stale")
		s.Require().Error(err)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})
}

func (s *ManagerSuite) TestResolve() {
	ctx := context.Background()

	s.Run("live group resolves to itself", func() {
		g, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)

		resolved, err := s.manager.Resolve(ctx, g.ID)
		s.Require().NoError(err)
		s.Equal(g.ID, resolved.ID)
	})

	s.Run("follows a chain of merges", func() {
		a, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)
		b, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)
		c, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)

		_, err = s.manager.Merge(ctx, b.ID, a.ID, "first")
		s.Require().NoError(err)
		_, err = s.manager.Merge(ctx, c.ID, b.ID, "second")
		s.Require().NoError(err)

		resolved, err := s.manager.Resolve(ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(c.ID, resolved.ID)
	})

	s.Run("operations against a stale id land on the live group", func() {
		winner, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)
		loser, err := s.manager.CreateGroup(ctx, id.NewListingID())
		s.Require().NoError(err)

		_, err = s.manager.Merge(ctx, winner.ID, loser.ID, "dup")
		s.Require().NoError(err)

		added := id.NewListingID()
		updated, err := s.manager.AddMember(ctx, loser.ID, added)
		s.Require().NoError(err)
		s.Equal(winner.ID, updated.ID)
		s.True(updated.HasMember(added))
	})
}
