package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "platbook/pkg/domain"
)

func TestNewGroup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid listing seeds the group", func(t *testing.T) {
		listingID := id.NewListingID()
		g, err := NewGroup(listingID, now)
		require.NoError(t, err)

		assert.False(t, g.ID.IsNil())
		assert.Equal(t, []id.ListingID{listingID}, g.Members)
		assert.False(t, g.IsMerged())
		assert.Equal(t, now, g.CreatedAt)
		assert.Equal(t, now, g.UpdatedAt)
	})

	t.Run("nil listing is rejected", func(t *testing.T) {
		_, err := NewGroup(id.ListingID{}, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listing id is required")
	})
}

func TestShadowGroup_ApplyMember(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	first := id.NewListingID()
	g, err := NewGroup(first, now)
	require.NoError(t, err)

	second := id.NewListingID()
	g.ApplyMember(second, later)
	assert.Equal(t, []id.ListingID{first, second}, g.Members)
	assert.Equal(t, later, g.UpdatedAt)

	// Re-adding is a no-op, including the timestamp.
	g.ApplyMember(second, later.Add(time.Hour))
	assert.Len(t, g.Members, 2)
	assert.Equal(t, later, g.UpdatedAt)
}

func TestShadowGroup_ApplyMerge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	g, err := NewGroup(id.NewListingID(), now)
	require.NoError(t, err)
	g.ApplyMember(id.NewListingID(), now)

	winner := id.NewGroupID()
	g.ApplyMerge(winner, "manual review confirmed duplicate", now.Add(time.Minute))

	assert.True(t, g.IsMerged())
	assert.Equal(t, winner, g.MergedInto)
	require.Len(t, g.Reassignments, 2)
	for i, entry := range g.Reassignments {
		assert.Equal(t, g.Members[i], entry.ListingID)
		assert.Equal(t, g.ID, entry.FromGroup)
		assert.Equal(t, winner, entry.ToGroup)
		assert.Equal(t, "manual review confirmed duplicate", entry.Reason)
	}

	err = g.CanAccept()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}

func TestShadowGroup_AbsorbMembers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	shared := id.NewListingID()
	winner, err := NewGroup(shared, now)
	require.NoError(t, err)

	loser, err := NewGroup(id.NewListingID(), now)
	require.NoError(t, err)
	loser.ApplyMember(shared, now) // overlap must not duplicate

	winner.AbsorbMembers(loser, now.Add(time.Minute))
	assert.Len(t, winner.Members, 2)
	assert.True(t, winner.HasMember(shared))
	assert.True(t, winner.HasMember(loser.Members[0]))
}
