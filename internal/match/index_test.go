package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platbook/internal/listing/models"
	id "platbook/pkg/domain"
)

func profileIn(city, state, addr string) Profile {
	return Profile{Address: addr, City: city, State: state}
}

func TestIndex(t *testing.T) {
	newark := profileIn("Newark", "NJ", "456 BROAD STREET")
	hoboken := profileIn("Hoboken", "NJ", "1 RIVER COURT")

	t.Run("candidates share the city bucket", func(t *testing.T) {
		ix := NewIndex()
		p1, p2, p3 := id.NewPropertyID(), id.NewPropertyID(), id.NewPropertyID()
		ix.Upsert(p1, newark)
		ix.Upsert(p2, newark)
		ix.Upsert(p3, hoboken)

		got := ix.Candidates(profileIn("newark", "nj", "789 MARKET STREET"))
		require.Len(t, got, 2)
		for _, e := range got {
			assert.NotEqual(t, p3, e.PropertyID)
		}
	})

	t.Run("upsert moves a property between buckets", func(t *testing.T) {
		ix := NewIndex()
		p := id.NewPropertyID()
		ix.Upsert(p, newark)
		ix.Upsert(p, hoboken)

		assert.Empty(t, ix.Candidates(newark))
		require.Len(t, ix.Candidates(hoboken), 1)
		assert.Equal(t, 1, ix.Len())
	})

	t.Run("remove drops the property", func(t *testing.T) {
		ix := NewIndex()
		p := id.NewPropertyID()
		ix.Upsert(p, newark)
		ix.Remove(p)

		assert.Empty(t, ix.Candidates(newark))
		assert.Zero(t, ix.Len())
	})

	t.Run("unbucketable profile yields no candidates", func(t *testing.T) {
		ix := NewIndex()
		ix.Upsert(id.NewPropertyID(), newark)

		assert.Nil(t, ix.Candidates(Profile{Address: "456 BROAD STREET"}))
	})

	t.Run("zip fallback buckets profiles without city", func(t *testing.T) {
		ix := NewIndex()
		p := id.NewPropertyID()
		zipOnly := Profile{Address: "456 BROAD STREET", Zip: "07102"}
		ix.Upsert(p, zipOnly)

		got := ix.Candidates(Profile{Zip: "07102"})
		require.Len(t, got, 1)
		assert.Equal(t, p, got[0].PropertyID)
	})

	t.Run("rebuild replaces contents", func(t *testing.T) {
		ix := NewIndex()
		ix.Upsert(id.NewPropertyID(), newark)

		p := id.NewPropertyID()
		ix.Rebuild([]Entry{{PropertyID: p, Profile: hoboken}})

		assert.Empty(t, ix.Candidates(newark))
		require.Len(t, ix.Candidates(hoboken), 1)
		assert.Equal(t, 1, ix.Len())
	})
}

func TestFromListing(t *testing.T) {
	t.Run("explicit components win", func(t *testing.T) {
		rec, err := models.New(id.PlatformCrexi, "n1", time.Now(), map[string]any{
			"address":       "456 Broad St",
			"address_city":  "Newark",
			"address_state": "NJ",
			"address_zip":   "07102",
			"sqft":          "12,000 sqft",
			"price":         "$2,500,000",
		}, models.Metadata{}, time.Now())
		require.NoError(t, err)

		p := FromListing(rec)
		assert.Equal(t, "456 BROAD STREET", p.Address)
		assert.Equal(t, "Newark", p.City)
		assert.Equal(t, "NJ", p.State)
		assert.True(t, p.HasSize)
		assert.InDelta(t, 12_000, p.SizeSqft, 1e-9)
		assert.True(t, p.HasPrice)
		assert.InDelta(t, 2_500_000, p.Price, 1e-9)
		assert.Equal(t, "newark-nj", p.SlugKey())
	})

	t.Run("components fall back to the full address", func(t *testing.T) {
		rec, err := models.New(id.PlatformZillow, "n2", time.Now(), map[string]any{
			"address": "456 Broad St, Newark, NJ 07102",
		}, models.Metadata{}, time.Now())
		require.NoError(t, err)

		p := FromListing(rec)
		assert.Equal(t, "Newark", p.City)
		assert.Equal(t, "NJ", p.State)
		assert.Equal(t, "07102", p.Zip)
	})

	t.Run("no location at all has no slug", func(t *testing.T) {
		rec, err := models.New(id.PlatformZillow, "n3", time.Now(), map[string]any{
			"address": "456 Broad St",
		}, models.Metadata{}, time.Now())
		require.NoError(t, err)

		assert.Empty(t, FromListing(rec).SlugKey())
	})
}
