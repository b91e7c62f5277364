// Package enrich ingests contextual data (environmental, demographic,
// distance, traffic) from enrichment agents. Enrichment is advisory: it
// attaches to the entity and feeds semi-mutable cache entries, and never
// changes a classification verdict.
package enrich

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	properties "platbook/internal/property/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/requestcontext"
)

var enrichmentsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Name: "platbook_enrichments_applied_total",
	Help: "Enrichment records attached to entities.",
})

// EnrichmentRecord is one enrichment agent delivery. Field keys matching the
// canonical context fields (environmental, demographics, distances) are
// consolidated onto the entity; everything else stays block metadata.
type EnrichmentRecord struct {
	PropertyID  id.PropertyID     `json:"property_id"`
	Fields      map[string]any    `json:"fields"`
	Sources     map[string]string `json:"sources,omitempty"`
	CollectedAt time.Time         `json:"collected_at"`
}

func (r EnrichmentRecord) Validate() error {
	if r.PropertyID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "property id is required")
	}
	if len(r.Fields) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one field is required")
	}
	if r.CollectedAt.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "collected_at is required")
	}
	return nil
}

// PropertyStore is what enrichment needs from entity persistence.
type PropertyStore interface {
	FindByID(ctx context.Context, propertyID id.PropertyID) (*properties.PropertyEntity, error)
	Update(ctx context.Context, e *properties.PropertyEntity) error
}

// Reconsolidator re-runs consolidation for one entity after its source set
// changed.
type Reconsolidator interface {
	Reconsolidate(ctx context.Context, propertyID id.PropertyID) error
}

type Service struct {
	store    PropertyStore
	pipeline Reconsolidator
	logger   *slog.Logger
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

func NewService(store PropertyStore, pipeline Reconsolidator, opts ...Option) *Service {
	s := &Service{
		store:    store,
		pipeline: pipeline,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Apply attaches one enrichment delivery to its entity and re-consolidates
// so the canonical context fields reach the field map and the cache.
func (s *Service) Apply(ctx context.Context, rec EnrichmentRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	e, err := s.store.FindByID(ctx, rec.PropertyID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "property not found")
	}
	if e.IsSuperseded() {
		s.logger.InfoContext(ctx, "dropping enrichment for superseded entity",
			slog.String("property_id", e.ID.String()))
		return nil
	}

	now := requestcontext.Now(ctx)
	e.ApplyEnrichment(&properties.EnrichmentBlock{
		Fields:      rec.Fields,
		Sources:     rec.Sources,
		CollectedAt: rec.CollectedAt,
	}, now)
	if err := s.store.Update(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store enrichment")
	}

	if err := s.pipeline.Reconsolidate(ctx, e.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reconsolidate after enrichment")
	}

	enrichmentsApplied.Inc()
	s.logger.InfoContext(ctx, "enrichment applied",
		slog.String("property_id", e.ID.String()),
		slog.Int("fields", len(rec.Fields)))
	return nil
}
