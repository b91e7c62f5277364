package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platbook/internal/cache/store"
	"platbook/internal/policy"
	properties "platbook/internal/property/models"
	id "platbook/pkg/domain"
	"platbook/pkg/requestcontext"
)

type schedulerFixture struct {
	manager    *Manager
	dispatcher *recordingDispatcher
	scheduler  *Scheduler
	entity     *properties.PropertyEntity
}

func newSchedulerFixture(t *testing.T, fields map[id.Field]any) *schedulerFixture {
	t.Helper()

	dispatcher := &recordingDispatcher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := NewManager(store.NewMemory(), dispatcher, policy.Default(), WithLogger(logger))

	e, err := properties.NewEntity(id.NewGroupID(), cacheBase)
	require.NoError(t, err)
	for f, v := range fields {
		e.Fields[f] = properties.FieldValue{Value: v, Source: id.PlatformCountyRecords, ObservedAt: cacheBase}
	}
	require.NoError(t, manager.Populate(requestcontext.WithTime(context.Background(), cacheBase), e))

	return &schedulerFixture{
		manager:    manager,
		dispatcher: dispatcher,
		scheduler:  NewScheduler(manager, WithSchedulerLogger(logger)),
		entity:     e,
	}
}

func (f *schedulerFixture) tickAt(t time.Time) {
	f.scheduler.Tick(requestcontext.WithTime(context.Background(), t))
}

func TestSchedulerFiresCalendarRules(t *testing.T) {
	f := newSchedulerFixture(t, map[id.Field]any{
		id.FieldTaxAssessment: 1_800_000.0,
		id.FieldEnvironmental: "phase I clear",
		id.FieldDistances:     map[string]any{"highway_mi": 1.2},
		id.FieldPrice:         2_500_000.0,
	})

	january := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	f.tickAt(january)

	requests := f.dispatcher.all()
	require.Len(t, requests, 3, "annual, quarterly and semi-annual rules all open in January")
	var fields []id.Field
	for _, req := range requests {
		fields = append(fields, req.Fields...)
	}
	assert.ElementsMatch(t, []id.Field{id.FieldTaxAssessment, id.FieldEnvironmental, id.FieldDistances}, fields)

	price, err := f.manager.Get(requestcontext.WithTime(context.Background(), january), f.entity.ID, id.FieldPrice)
	require.NoError(t, err)
	assert.False(t, price.Stale, "calendar rules never touch listing-observed fields")

	tax, err := f.manager.Get(requestcontext.WithTime(context.Background(), january), f.entity.ID, id.FieldTaxAssessment)
	require.NoError(t, err)
	assert.True(t, tax.Stale)
	assert.Equal(t, "scheduled_tick", tax.StaleReason)
}

func TestSchedulerFiresOncePerPeriod(t *testing.T) {
	f := newSchedulerFixture(t, map[id.Field]any{id.FieldTaxAssessment: 1_800_000.0})

	f.tickAt(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	require.Len(t, f.dispatcher.all(), 1)

	f.tickAt(time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC))
	assert.Len(t, f.dispatcher.all(), 1, "same period never fires twice")

	f.tickAt(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.Len(t, f.dispatcher.all(), 1, "no rule opens in February")
}

func TestSchedulerQuarterAndHalfBoundaries(t *testing.T) {
	f := newSchedulerFixture(t, map[id.Field]any{
		id.FieldEnvironmental: "phase I clear",
		id.FieldDistances:     map[string]any{"highway_mi": 1.2},
	})

	f.tickAt(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	requests := f.dispatcher.all()
	require.Len(t, requests, 1, "only the quarterly rule opens in April")
	assert.Equal(t, []id.Field{id.FieldEnvironmental}, requests[0].Fields)

	f.tickAt(time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC))
	requests = f.dispatcher.all()
	require.Len(t, requests, 3, "July opens both the Q3 and H2 periods")
	var julyFields []id.Field
	for _, req := range requests[1:] {
		julyFields = append(julyFields, req.Fields...)
	}
	assert.ElementsMatch(t, []id.Field{id.FieldEnvironmental, id.FieldDistances}, julyFields)

	f.tickAt(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Len(t, f.dispatcher.all(), 5, "a new year reopens the January periods present in the cache")
}

func TestSchedulerWithEmptyCache(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := NewManager(store.NewMemory(), dispatcher, policy.Default(), WithLogger(logger))
	scheduler := NewScheduler(manager, WithSchedulerLogger(logger))

	scheduler.Tick(requestcontext.WithTime(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Empty(t, dispatcher.all())
}
