// Package cache tracks per-field freshness for consolidated properties:
// tiered TTLs, invalidation events, and refresh requests toward the owning
// collaborators. The cache never computes a field value itself.
package cache

import (
	"context"
	"log/slog"
	"time"

	"platbook/internal/cache/models"
	"platbook/internal/journal"
	"platbook/internal/policy"
	properties "platbook/internal/property/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/requestcontext"
)

const (
	// Processed event ids are remembered this long for at-least-once dedup.
	eventDedupTTL = 24 * time.Hour
	// A dispatched refresh suppresses re-dispatch of the same field until
	// fresh data lands or this window lapses.
	refreshInFlightTTL = 15 * time.Minute

	semiMutableFloor = 30 * 24 * time.Hour
	semiMutableCeil  = 90 * 24 * time.Hour
	volatileFloor    = 24 * time.Hour
	volatileCeil     = 7 * 24 * time.Hour
)

// EntryStore is what the manager needs from persistence.
type EntryStore interface {
	Upsert(ctx context.Context, e *models.Entry) error
	Get(ctx context.Context, propertyID id.PropertyID, field id.Field) (*models.Entry, error)
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Entry, error)
	ListProperties(ctx context.Context) ([]id.PropertyID, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.Entry, error)
	SeenEvent(ctx context.Context, eventID id.EventID, ttl time.Duration) (bool, error)
	TryBeginRefresh(ctx context.Context, propertyID id.PropertyID, field id.Field, ttl time.Duration) (bool, error)
	EndRefresh(ctx context.Context, propertyID id.PropertyID, field id.Field) error
	SetAmplified(ctx context.Context, propertyID id.PropertyID, on bool) error
}

// Dispatcher carries refresh requests toward the owning collaborator.
type Dispatcher interface {
	Dispatch(ctx context.Context, req models.RefreshRequest) error
}

// Journal receives the decision journal entries this package emits.
type Journal interface {
	Emit(ctx context.Context, e journal.Entry) error
}

// Manager owns cache entries and their freshness lifecycle.
type Manager struct {
	entries    EntryStore
	dispatcher Dispatcher
	policy     policy.Policy
	logger     *slog.Logger
	journal    Journal
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithJournal(j Journal) Option {
	return func(m *Manager) {
		m.journal = j
	}
}

func NewManager(entries EntryStore, dispatcher Dispatcher, pol policy.Policy, opts ...Option) *Manager {
	m := &Manager{
		entries:    entries,
		dispatcher: dispatcher,
		policy:     pol,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// TTLFor resolves a field's refresh interval: the tier default, overridden
// per field by policy, clamped to the tier's legal band. Zero means the
// field never auto-expires.
func (m *Manager) TTLFor(f id.Field) time.Duration {
	switch models.TierOf(f) {
	case models.TierImmutable:
		return 0
	case models.TierSemiMutable:
		ttl := m.policy.SemiMutableTTL()
		if override, ok := m.policy.FieldTTL(f); ok {
			ttl = clamp(override, semiMutableFloor, semiMutableCeil)
		}
		return ttl
	default:
		ttl := m.policy.VolatileTTL()
		if override, ok := m.policy.FieldTTL(f); ok {
			ttl = clamp(override, volatileFloor, volatileCeil)
		}
		return ttl
	}
}

// Populate writes one entry per consolidated field. Fresh data clears any
// staleness and restarts the TTL clock, so consolidation doubles as refresh
// completion.
func (m *Manager) Populate(ctx context.Context, e *properties.PropertyEntity) error {
	now := requestcontext.Now(ctx)
	for f, fv := range e.Fields {
		entry := &models.Entry{
			PropertyID:          e.ID,
			Field:               f,
			Value:               fv.Value,
			Tier:                models.TierOf(f),
			LastRefresh:         now,
			AmplifiedConfidence: e.AmplifiedConfidence,
		}
		if ttl := m.TTLFor(f); ttl > 0 {
			entry.NextRefresh = now.Add(ttl)
		}
		if err := m.entries.Upsert(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write cache entry")
		}
	}
	return nil
}

// Get returns one cached field. A past-TTL entry is marked stale and a
// refresh is dispatched, but its value is still returned: staleness means
// "being refreshed", never "gone".
func (m *Manager) Get(ctx context.Context, propertyID id.PropertyID, field id.Field) (*models.Entry, error) {
	entry, err := m.entries.Get(ctx, propertyID, field)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "cache entry not found")
	}

	now := requestcontext.Now(ctx)
	if entry.Expired(now) && !entry.Stale {
		entry.MarkStale("ttl_expired")
		if err := m.entries.Upsert(ctx, entry); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark cache entry stale")
		}
		staleMarked.WithLabelValues(string(entry.Tier), "ttl_expired").Inc()
		m.dispatchRefresh(ctx, propertyID, []id.Field{field}, "ttl_expired", now)
	}
	return entry, nil
}

// Snapshot returns every cached field for a property without touching
// freshness state.
func (m *Manager) Snapshot(ctx context.Context, propertyID id.PropertyID) ([]*models.Entry, error) {
	entries, err := m.entries.ListByProperty(ctx, propertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cache entries")
	}
	return entries, nil
}

// HandleEvent applies one invalidation event: dedup by event id, then mark
// every targeted entry whose tier accepts the kind and dispatch a single
// refresh request for the batch. Returns the fields actually marked.
func (m *Manager) HandleEvent(ctx context.Context, ev models.InvalidationEvent) ([]id.Field, error) {
	if ev.EventID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "event id is required")
	}
	if _, err := models.ParseEventKind(string(ev.Kind)); err != nil {
		return nil, err
	}
	if ev.PropertyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "property id is required")
	}

	seen, err := m.entries.SeenEvent(ctx, ev.EventID, eventDedupTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to dedup event")
	}
	if seen {
		eventsDeduped.Inc()
		m.logger.DebugContext(ctx, "dropped duplicate invalidation event",
			"event_id", ev.EventID.String(), "kind", string(ev.Kind))
		return nil, nil
	}

	entries, err := m.entries.ListByProperty(ctx, ev.PropertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cache entries")
	}

	now := requestcontext.Now(ctx)
	var marked []id.Field
	for _, entry := range entries {
		if len(ev.Fields) > 0 && !containsField(ev.Fields, entry.Field) {
			continue
		}
		if !entry.Tier.Accepts(ev.Kind) {
			eventsRejected.WithLabelValues(string(entry.Tier), string(ev.Kind)).Inc()
			continue
		}
		if entry.Stale {
			marked = append(marked, entry.Field)
			continue
		}
		entry.MarkStale(string(ev.Kind))
		if err := m.entries.Upsert(ctx, entry); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark cache entry stale")
		}
		staleMarked.WithLabelValues(string(entry.Tier), string(ev.Kind)).Inc()
		marked = append(marked, entry.Field)
	}

	if len(marked) > 0 {
		m.emitJournal(ctx, journal.Entry{
			Kind:       journal.KindInvalidationHandled,
			PropertyID: ev.PropertyID,
			Detail:     string(ev.Kind),
		})
		m.dispatchRefresh(ctx, ev.PropertyID, marked, string(ev.Kind), now)
	}
	return marked, nil
}

// Sweep marks every past-TTL entry stale and dispatches refreshes, batched
// per property. Run on an interval.
func (m *Manager) Sweep(ctx context.Context) error {
	now := requestcontext.Now(ctx)
	expired, err := m.entries.ListExpired(ctx, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired cache entries")
	}

	byProperty := make(map[id.PropertyID][]id.Field)
	for _, entry := range expired {
		// Already-stale entries stay in the batch: their earlier dispatch
		// may have failed, and the in-flight marker decides whether a
		// retry goes out.
		if !entry.Stale {
			entry.MarkStale("ttl_expired")
			if err := m.entries.Upsert(ctx, entry); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark cache entry stale")
			}
			staleMarked.WithLabelValues(string(entry.Tier), "ttl_expired").Inc()
		}
		byProperty[entry.PropertyID] = append(byProperty[entry.PropertyID], entry.Field)
	}

	for propertyID, fields := range byProperty {
		m.dispatchRefresh(ctx, propertyID, fields, "ttl_expired", now)
	}
	if len(expired) > 0 {
		m.logger.InfoContext(ctx, "cache sweep completed",
			"expired", len(expired), "properties", len(byProperty))
	}
	return nil
}

// ApplyAmplified sets the advisory cross-validation flag on every entry of a
// property.
func (m *Manager) ApplyAmplified(ctx context.Context, propertyID id.PropertyID, on bool) error {
	if err := m.entries.SetAmplified(ctx, propertyID, on); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set amplified confidence")
	}
	return nil
}

// dispatchRefresh emits one refresh request for the fields that are not
// already in flight. Dispatch failures leave entries stale; the next sweep
// retries them.
func (m *Manager) dispatchRefresh(ctx context.Context, propertyID id.PropertyID, fields []id.Field, reason string, now time.Time) {
	var due []id.Field
	for _, f := range fields {
		acquired, err := m.entries.TryBeginRefresh(ctx, propertyID, f, refreshInFlightTTL)
		if err != nil {
			m.logger.WarnContext(ctx, "failed to acquire refresh marker",
				"property_id", propertyID.String(), "field", f.String(), "error", err)
			continue
		}
		if acquired {
			due = append(due, f)
		}
	}
	if len(due) == 0 {
		return
	}

	req := models.RefreshRequest{
		PropertyID:  propertyID,
		Fields:      due,
		Reason:      reason,
		RequestedAt: now,
	}
	if err := m.dispatcher.Dispatch(ctx, req); err != nil {
		refreshFailures.Inc()
		// Release the markers so the next sweep retries right away instead
		// of waiting out the marker TTL.
		for _, f := range due {
			if rerr := m.entries.EndRefresh(ctx, propertyID, f); rerr != nil {
				m.logger.WarnContext(ctx, "failed to release refresh marker",
					"property_id", propertyID.String(), "field", f.String(), "error", rerr)
			}
		}
		m.logger.ErrorContext(ctx, "failed to dispatch refresh request",
			"property_id", propertyID.String(), "fields", len(due), "error", err)
		m.emitJournal(ctx, journal.Entry{
			Kind:       journal.KindRefreshFailed,
			PropertyID: propertyID,
			Detail:     reason,
		})
		return
	}
	refreshDispatched.Add(float64(len(due)))
	m.emitJournal(ctx, journal.Entry{
		Kind:       journal.KindRefreshRequested,
		PropertyID: propertyID,
		Detail:     reason,
	})
}

func (m *Manager) emitJournal(ctx context.Context, e journal.Entry) {
	if m.journal == nil {
		return
	}
	_ = m.journal.Emit(ctx, e)
}

func containsField(fields []id.Field, f id.Field) bool {
	for _, candidate := range fields {
		if candidate == f {
			return true
		}
	}
	return false
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
