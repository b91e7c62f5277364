// Package verify runs the county-records verification loop: usable entities
// are announced to the verification collaborator, and its results fold back
// into the entity as the highest-trust consolidation source.
package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cachemodels "platbook/internal/cache/models"
	"platbook/internal/journal"
	"platbook/internal/policy"
	properties "platbook/internal/property/models"
	"platbook/internal/verify/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/requestcontext"
)

// A request stays pending this long before the same entity may be announced
// again without a result having arrived.
const pendingTTL = 24 * time.Hour

// PropertyStore is what verification needs from entity persistence.
type PropertyStore interface {
	FindByID(ctx context.Context, propertyID id.PropertyID) (*properties.PropertyEntity, error)
	Update(ctx context.Context, e *properties.PropertyEntity) error
}

// Reconsolidator re-runs consolidation and classification for one entity
// after its source set changed.
type Reconsolidator interface {
	Reconsolidate(ctx context.Context, propertyID id.PropertyID) error
}

// CacheControl is the slice of the cache manager verification drives.
type CacheControl interface {
	HandleEvent(ctx context.Context, ev cachemodels.InvalidationEvent) ([]id.Field, error)
	ApplyAmplified(ctx context.Context, propertyID id.PropertyID, on bool) error
}

// RequestPublisher announces an entity to the collaborator.
type RequestPublisher interface {
	Publish(ctx context.Context, req models.VerificationRequest) error
}

// Journal receives the decision journal entries this package emits.
type Journal interface {
	Emit(ctx context.Context, e journal.Entry) error
}

// Service owns both directions of the loop: Request toward the collaborator
// and Apply for its results.
type Service struct {
	store     PropertyStore
	pipeline  Reconsolidator
	cache     CacheControl
	publisher RequestPublisher
	policy    policy.Policy
	logger    *slog.Logger
	journal   Journal

	mu      sync.Mutex
	pending map[id.PropertyID]time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJournal sets the decision journal sink.
func WithJournal(j Journal) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// NewService wires the verification loop.
func NewService(store PropertyStore, pipeline Reconsolidator, cache CacheControl, publisher RequestPublisher, pol policy.Policy, opts ...Option) *Service {
	s := &Service{
		store:     store,
		pipeline:  pipeline,
		cache:     cache,
		publisher: publisher,
		policy:    pol,
		logger:    slog.Default(),
		pending:   make(map[id.PropertyID]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Request announces one entity to the collaborator. No-op when the entity is
// already verified and no material conflict has been recorded since, or when
// a request is still pending. At-least-once: the collaborator dedupes by
// property id, so a duplicate after a restart is harmless.
func (s *Service) Request(ctx context.Context, e *properties.PropertyEntity) error {
	if e.IsSuperseded() {
		return nil
	}
	if e.Verification != nil && !s.needsReverification(e) {
		return nil
	}

	now := requestcontext.Now(ctx)
	if !s.beginPending(e.ID, now) {
		return nil
	}

	req := models.VerificationRequest{
		PropertyID:  e.ID,
		RequestedAt: now,
	}
	req.Address, _ = e.Address()
	req.City, _ = e.City()
	req.State, _ = e.State()
	req.Zip, _ = e.Zip()
	if fv, ok := e.Field(id.FieldParcelID); ok {
		if parcel, ok := fv.Value.(string); ok {
			req.ParcelHint = parcel
		}
	}

	if err := s.publisher.Publish(ctx, req); err != nil {
		s.clearPending(e.ID)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to publish verification request")
	}
	verificationsRequested.Inc()
	s.emitJournal(ctx, journal.Entry{
		Kind:       journal.KindVerificationRequested,
		PropertyID: e.ID,
		Subject:    "system",
	})
	s.logger.InfoContext(ctx, "verification requested",
		slog.String("property_id", e.ID.String()),
		slog.String("address", req.Address))
	return nil
}

// needsReverification reports whether a material conflict was recorded after
// the last verification, which makes the county answer worth refreshing.
func (s *Service) needsReverification(e *properties.PropertyEntity) bool {
	for _, c := range e.Conflicts {
		if c.Severity == properties.SeverityMaterial && c.RecordedAt.After(e.Verification.VerifiedAt) {
			return true
		}
	}
	return false
}

// Apply folds one collaborator result into its entity: attach the block,
// re-consolidate with county records as a source, settle the
// amplified-confidence flag, and raise invalidations for material
// discrepancies.
func (s *Service) Apply(ctx context.Context, rec models.VerificationRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	e, err := s.store.FindByID(ctx, rec.PropertyID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "property not found")
	}
	s.clearPending(e.ID)
	if e.IsSuperseded() {
		s.logger.InfoContext(ctx, "dropping verification result for superseded entity",
			slog.String("property_id", e.ID.String()))
		return nil
	}

	now := requestcontext.Now(ctx)
	amplified := rec.Status != models.StatusNotFound &&
		rec.Confidence >= s.policy.Cache.AmplifiedConfidenceThreshold &&
		!rec.HasMaterialDiscrepancy()

	e.ApplyVerification(rec.Block(), now)
	e.ApplyAmplifiedConfidence(amplified, now)
	if err := s.store.Update(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verification")
	}

	if err := s.pipeline.Reconsolidate(ctx, e.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reconsolidate after verification")
	}

	// Advisory: a cache write failure here must not fail the result.
	if err := s.cache.ApplyAmplified(ctx, e.ID, amplified); err != nil {
		s.logger.WarnContext(ctx, "failed to propagate amplified confidence to cache",
			slog.String("property_id", e.ID.String()), slog.Any("error", err))
	}

	if fields := rec.MaterialFields(); len(fields) > 0 {
		ev := cachemodels.InvalidationEvent{
			EventID:    id.NewEventID(),
			Kind:       cachemodels.EventMaterialDiscrepancy,
			PropertyID: e.ID,
			Fields:     fields,
			At:         now,
		}
		if _, err := s.cache.HandleEvent(ctx, ev); err != nil {
			s.logger.ErrorContext(ctx, "failed to raise discrepancy invalidation",
				slog.String("property_id", e.ID.String()), slog.Any("error", err))
		}
	}

	verificationsApplied.WithLabelValues(rec.Status).Inc()
	if amplified {
		amplifiedSet.Inc()
	}
	s.emitJournal(ctx, journal.Entry{
		Kind:       journal.KindVerificationApplied,
		PropertyID: e.ID,
		Subject:    "county-records",
		Detail:     rec.Status,
	})
	s.logger.InfoContext(ctx, "verification applied",
		slog.String("property_id", e.ID.String()),
		slog.String("status", rec.Status),
		slog.Float64("confidence", rec.Confidence),
		slog.Bool("amplified", amplified),
		slog.Int("discrepancies", len(rec.Discrepancies)))
	return nil
}

func (s *Service) emitJournal(ctx context.Context, e journal.Entry) {
	if s.journal == nil {
		return
	}
	_ = s.journal.Emit(ctx, e)
}

func (s *Service) beginPending(propertyID id.PropertyID, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.pending[propertyID]; ok && now.Before(at.Add(pendingTTL)) {
		return false
	}
	s.pending[propertyID] = now
	return true
}

func (s *Service) clearPending(propertyID id.PropertyID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, propertyID)
}
