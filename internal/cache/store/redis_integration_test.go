//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"platbook/internal/cache/models"
	"platbook/internal/cache/store"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/sentinel"
	"platbook/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = store.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.redis.FlushAll(ctx)
	s.Require().NoError(err)
}

func makeEntry(propertyID id.PropertyID, field id.Field, value any, now time.Time) *models.Entry {
	tier := models.TierOf(field)
	e := &models.Entry{
		PropertyID:  propertyID,
		Field:       field,
		Value:       value,
		Tier:        tier,
		LastRefresh: now,
	}
	if tier != models.TierImmutable {
		e.NextRefresh = now.Add(time.Hour)
	}
	return e
}

// TestEntryRoundTrip verifies an entry survives the JSON hop through Redis
// with its freshness bookkeeping intact.
func (s *RedisStoreSuite) TestEntryRoundTrip() {
	ctx := context.Background()
	propertyID := id.NewPropertyID()
	now := time.Now().UTC().Truncate(time.Second)

	e := makeEntry(propertyID, id.FieldPrice, 12_000_000.0, now)
	e.Stale = true
	e.StaleReason = "sale_detected"
	e.FailureCount = 2
	s.Require().NoError(s.store.Upsert(ctx, e))

	got, err := s.store.Get(ctx, propertyID, id.FieldPrice)
	s.Require().NoError(err)
	s.Equal(propertyID, got.PropertyID)
	s.Equal(id.FieldPrice, got.Field)
	s.Equal(models.TierVolatile, got.Tier)
	s.InDelta(12_000_000.0, got.Value.(float64), 0.001)
	s.True(got.Stale)
	s.Equal("sale_detected", got.StaleReason)
	s.Equal(2, got.FailureCount)
	s.Equal(now.UnixNano(), got.LastRefresh.UnixNano())
	s.Equal(now.Add(time.Hour).UnixNano(), got.NextRefresh.UnixNano())
}

// TestGetMissing verifies a miss maps to the store-agnostic sentinel.
func (s *RedisStoreSuite) TestGetMissing() {
	ctx := context.Background()

	_, err := s.store.Get(ctx, id.NewPropertyID(), id.FieldPrice)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestListByPropertyIsolation verifies the per-property hash keeps entries
// of different properties apart while the index set sees both.
func (s *RedisStoreSuite) TestListByPropertyIsolation() {
	ctx := context.Background()
	now := time.Now()
	first := id.NewPropertyID()
	second := id.NewPropertyID()

	s.Require().NoError(s.store.Upsert(ctx, makeEntry(first, id.FieldPrice, 1_500_000.0, now)))
	s.Require().NoError(s.store.Upsert(ctx, makeEntry(first, id.FieldStatus, "active", now)))
	s.Require().NoError(s.store.Upsert(ctx, makeEntry(second, id.FieldPrice, 900_000.0, now)))

	entries, err := s.store.ListByProperty(ctx, first)
	s.Require().NoError(err)
	s.Len(entries, 2)
	for _, e := range entries {
		s.Equal(first, e.PropertyID)
	}

	propertyIDs, err := s.store.ListProperties(ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]id.PropertyID{first, second}, propertyIDs)
}

// TestListExpired verifies only lapsed TTLs surface. Immutable entries carry
// a zero NextRefresh and never count as expired.
func (s *RedisStoreSuite) TestListExpired() {
	ctx := context.Background()
	now := time.Now()
	propertyID := id.NewPropertyID()

	lapsed := makeEntry(propertyID, id.FieldPrice, 2_000_000.0, now.Add(-2*time.Hour))
	fresh := makeEntry(propertyID, id.FieldStatus, "active", now)
	immutable := makeEntry(propertyID, id.FieldAddress, "400 Congress Ave", now.Add(-48*time.Hour))
	s.Require().NoError(s.store.Upsert(ctx, lapsed))
	s.Require().NoError(s.store.Upsert(ctx, fresh))
	s.Require().NoError(s.store.Upsert(ctx, immutable))

	expired, err := s.store.ListExpired(ctx, now)
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal(id.FieldPrice, expired[0].Field)
}

// TestSeenEventExactlyOnce verifies the SETNX dedup admits one observer per
// event id even when instances race.
func (s *RedisStoreSuite) TestSeenEventExactlyOnce() {
	ctx := context.Background()
	eventID := id.NewEventID()

	const goroutines = 30
	var wg sync.WaitGroup
	var firstCount atomic.Int32
	var dupCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			seen, err := s.store.SeenEvent(ctx, eventID, time.Minute)
			if err != nil {
				return
			}
			if seen {
				dupCount.Add(1)
			} else {
				firstCount.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), firstCount.Load(), "exactly one caller should see the event first")
	s.Equal(int32(goroutines-1), dupCount.Load(), "all others should observe the dedup mark")
}

// TestSeenEventMarkExpires verifies the dedup mark honors its TTL so the
// event id space does not grow without bound.
func (s *RedisStoreSuite) TestSeenEventMarkExpires() {
	ctx := context.Background()
	eventID := id.NewEventID()

	seen, err := s.store.SeenEvent(ctx, eventID, 100*time.Millisecond)
	s.Require().NoError(err)
	s.False(seen)

	time.Sleep(200 * time.Millisecond)

	seen, err = s.store.SeenEvent(ctx, eventID, time.Minute)
	s.Require().NoError(err)
	s.False(seen, "mark should have lapsed with its TTL")
}

// TestTryBeginRefreshSingleWinner verifies the in-flight marker admits one
// refresh dispatch per field across racing instances.
func (s *RedisStoreSuite) TestTryBeginRefreshSingleWinner() {
	ctx := context.Background()
	propertyID := id.NewPropertyID()

	const goroutines = 20
	var wg sync.WaitGroup
	var winners atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			acquired, err := s.store.TryBeginRefresh(ctx, propertyID, id.FieldPrice, time.Minute)
			if err == nil && acquired {
				winners.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), winners.Load(), "exactly one dispatch should win the marker")

	// A different field is an independent marker.
	acquired, err := s.store.TryBeginRefresh(ctx, propertyID, id.FieldStatus, time.Minute)
	s.Require().NoError(err)
	s.True(acquired)
}

// TestFreshUpsertReleasesRefreshMarker verifies refreshed data ends the
// in-flight window while a stale write keeps it held.
func (s *RedisStoreSuite) TestFreshUpsertReleasesRefreshMarker() {
	ctx := context.Background()
	now := time.Now()
	propertyID := id.NewPropertyID()

	acquired, err := s.store.TryBeginRefresh(ctx, propertyID, id.FieldPrice, time.Minute)
	s.Require().NoError(err)
	s.Require().True(acquired)

	stale := makeEntry(propertyID, id.FieldPrice, 1_000_000.0, now)
	stale.MarkStale("sale_detected")
	s.Require().NoError(s.store.Upsert(ctx, stale))

	acquired, err = s.store.TryBeginRefresh(ctx, propertyID, id.FieldPrice, time.Minute)
	s.Require().NoError(err)
	s.False(acquired, "stale write must not release the marker")

	s.Require().NoError(s.store.Upsert(ctx, makeEntry(propertyID, id.FieldPrice, 1_100_000.0, now)))

	acquired, err = s.store.TryBeginRefresh(ctx, propertyID, id.FieldPrice, time.Minute)
	s.Require().NoError(err)
	s.True(acquired, "fresh data should end the in-flight window")
}

// TestEndRefreshReleasesMarker verifies an explicit release frees the marker
// before its TTL lapses.
func (s *RedisStoreSuite) TestEndRefreshReleasesMarker() {
	ctx := context.Background()
	propertyID := id.NewPropertyID()

	acquired, err := s.store.TryBeginRefresh(ctx, propertyID, id.FieldPrice, time.Minute)
	s.Require().NoError(err)
	s.Require().True(acquired)

	s.Require().NoError(s.store.EndRefresh(ctx, propertyID, id.FieldPrice))

	acquired, err = s.store.TryBeginRefresh(ctx, propertyID, id.FieldPrice, time.Minute)
	s.Require().NoError(err)
	s.True(acquired)
}

// TestSetAmplified verifies the advisory flag lands on every cached entry of
// the property and nowhere else.
func (s *RedisStoreSuite) TestSetAmplified() {
	ctx := context.Background()
	now := time.Now()
	amplified := id.NewPropertyID()
	other := id.NewPropertyID()

	s.Require().NoError(s.store.Upsert(ctx, makeEntry(amplified, id.FieldPrice, 3_000_000.0, now)))
	s.Require().NoError(s.store.Upsert(ctx, makeEntry(amplified, id.FieldAddress, "500 Main St", now)))
	s.Require().NoError(s.store.Upsert(ctx, makeEntry(other, id.FieldPrice, 750_000.0, now)))

	s.Require().NoError(s.store.SetAmplified(ctx, amplified, true))

	entries, err := s.store.ListByProperty(ctx, amplified)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	for _, e := range entries {
		s.True(e.AmplifiedConfidence)
	}

	got, err := s.store.Get(ctx, other, id.FieldPrice)
	s.Require().NoError(err)
	s.False(got.AmplifiedConfidence)

	// Unknown property is a no-op, not an error.
	s.Require().NoError(s.store.SetAmplified(ctx, id.NewPropertyID(), true))
}

// TestConcurrentUpsertsSameProperty verifies racing field writes for one
// property all land in the hash.
func (s *RedisStoreSuite) TestConcurrentUpsertsSameProperty() {
	ctx := context.Background()
	now := time.Now()
	propertyID := id.NewPropertyID()

	fields := []id.Field{
		id.FieldPrice, id.FieldStatus, id.FieldDaysOnMarket,
		id.FieldBrokerContact, id.FieldPricePerSqft,
	}

	var wg sync.WaitGroup
	var errCount atomic.Int32

	for i, f := range fields {
		wg.Add(1)
		go func(idx int, field id.Field) {
			defer wg.Done()

			if err := s.store.Upsert(ctx, makeEntry(propertyID, field, float64(idx), now)); err != nil {
				errCount.Add(1)
			}
		}(i, f)
	}

	wg.Wait()

	s.Equal(int32(0), errCount.Load())

	entries, err := s.store.ListByProperty(ctx, propertyID)
	s.Require().NoError(err)
	s.Len(entries, len(fields))
}
