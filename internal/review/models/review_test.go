package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "platbook/pkg/domain"
)

func TestNewReviewItem(t *testing.T) {
	now := time.Date(2026, 4, 10, 11, 0, 0, 0, time.UTC)

	t.Run("candidates are ordered best first", func(t *testing.T) {
		low := id.NewGroupID()
		high := id.NewGroupID()
		mid := id.NewGroupID()
		item, err := New(id.NewListingID(), id.PlatformCrexi, []Candidate{
			{GroupID: low, Score: 0.71},
			{GroupID: high, Score: 0.84},
			{GroupID: mid, Score: 0.78},
		}, now)
		require.NoError(t, err)

		assert.False(t, item.ID.IsNil())
		assert.Equal(t, StatusPending, item.Status)
		require.Len(t, item.Candidates, 3)
		assert.Equal(t, high, item.Candidates[0].GroupID)
		assert.Equal(t, mid, item.Candidates[1].GroupID)
		assert.Equal(t, low, item.Candidates[2].GroupID)
	})

	t.Run("nil listing is rejected", func(t *testing.T) {
		_, err := New(id.ListingID{}, id.PlatformCrexi, []Candidate{{GroupID: id.NewGroupID(), Score: 0.8}}, now)
		require.Error(t, err)
	})

	t.Run("at least one candidate", func(t *testing.T) {
		_, err := New(id.NewListingID(), id.PlatformCrexi, nil, now)
		require.Error(t, err)
	})

	t.Run("score outside the unit interval", func(t *testing.T) {
		_, err := New(id.NewListingID(), id.PlatformCrexi, []Candidate{{GroupID: id.NewGroupID(), Score: 1.2}}, now)
		require.Error(t, err)
	})
}

func TestReviewItem_Resolution(t *testing.T) {
	now := time.Date(2026, 4, 10, 11, 0, 0, 0, time.UTC)
	chosen := id.NewGroupID()
	item, err := New(id.NewListingID(), id.PlatformLoopnet, []Candidate{{GroupID: chosen, Score: 0.8}}, now)
	require.NoError(t, err)

	assert.True(t, item.HasCandidate(chosen))
	assert.False(t, item.HasCandidate(id.NewGroupID()))
	require.NoError(t, item.CanResolve())

	item.ApplyConfirm(chosen, "reviewer@platbook", now.Add(time.Hour))
	assert.Equal(t, StatusConfirmed, item.Status)
	assert.Equal(t, chosen, item.ResolvedGroup)
	assert.Equal(t, "reviewer@platbook", item.ResolvedBy)
	assert.False(t, item.IsPending())

	err = item.CanResolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already resolved")
}
