// Package report assembles operational summary counters on demand. Nothing
// here is precomputed: every call reads the live stores, so the summary is
// consistent with what the API serves at that moment.
package report

import (
	"context"
	"log/slog"
	"time"

	cachemodels "platbook/internal/cache/models"
	"platbook/internal/journal"
	"platbook/internal/property/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/requestcontext"
)

// PropertyCounter is the slice of the property store the summary reads.
type PropertyCounter interface {
	CountByVerdict(ctx context.Context) (map[models.Verdict]int, error)
	CountDiscardReasons(ctx context.Context) (map[string]int, error)
	CountConflictsBySeverity(ctx context.Context) (map[models.Severity]int, error)
}

// ReviewCounter reports how many listings await a human decision.
type ReviewCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// CacheReader walks cached entries for the tier breakdown.
type CacheReader interface {
	ListProperties(ctx context.Context) ([]id.PropertyID, error)
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*cachemodels.Entry, error)
}

// JournalCounter totals journal entries per kind.
type JournalCounter interface {
	CountByKind(ctx context.Context) (map[journal.Kind]int, error)
}

// EntityCounts breaks live entities down by classification verdict.
type EntityCounts struct {
	Total        int `json:"total"`
	Usable       int `json:"usable"`
	Flagged      int `json:"flagged"`
	Discarded    int `json:"discarded"`
	Unclassified int `json:"unclassified,omitempty"`
}

// ConflictCounts totals retained conflict records by severity.
type ConflictCounts struct {
	Material int `json:"material"`
	Minor    int `json:"minor"`
}

// TierCounts describes one cache tier. Stale covers both entries flagged by
// an invalidation and entries past their TTL.
type TierCounts struct {
	Total int `json:"total"`
	Stale int `json:"stale"`
}

// RefreshCounts totals refresh requests the cache has emitted so far.
type RefreshCounts struct {
	Requested int `json:"requested"`
	Failed    int `json:"failed"`
}

// Summary is the operational snapshot served at /v1/reports/summary.
type Summary struct {
	GeneratedAt     time.Time                       `json:"generated_at"`
	Entities        EntityCounts                    `json:"entities"`
	DiscardReasons  map[string]int                  `json:"discard_reasons"`
	PendingReviews  int                             `json:"pending_reviews"`
	Conflicts       ConflictCounts                  `json:"conflicts"`
	Cache           map[cachemodels.Tier]TierCounts `json:"cache"`
	RefreshRequests RefreshCounts                   `json:"refresh_requests"`
}

type Service struct {
	properties PropertyCounter
	reviews    ReviewCounter
	cache      CacheReader
	journal    JournalCounter
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(properties PropertyCounter, reviews ReviewCounter, cache CacheReader, jrnl JournalCounter, opts ...Option) *Service {
	s := &Service{
		properties: properties,
		reviews:    reviews,
		cache:      cache,
		journal:    jrnl,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build assembles the summary from the live stores.
func (s *Service) Build(ctx context.Context) (*Summary, error) {
	now := requestcontext.Now(ctx)
	summary := &Summary{
		GeneratedAt: now,
		Cache: map[cachemodels.Tier]TierCounts{
			cachemodels.TierImmutable:   {},
			cachemodels.TierSemiMutable: {},
			cachemodels.TierVolatile:    {},
		},
	}

	verdicts, err := s.properties.CountByVerdict(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count entities")
	}
	summary.Entities = EntityCounts{
		Usable:       verdicts[models.VerdictUsable],
		Flagged:      verdicts[models.VerdictFlagged],
		Discarded:    verdicts[models.VerdictDiscarded],
		Unclassified: verdicts[models.VerdictUnclassified],
	}
	for _, n := range verdicts {
		summary.Entities.Total += n
	}

	if summary.DiscardReasons, err = s.properties.CountDiscardReasons(ctx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count discard reasons")
	}

	severities, err := s.properties.CountConflictsBySeverity(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count conflicts")
	}
	summary.Conflicts = ConflictCounts{
		Material: severities[models.SeverityMaterial],
		Minor:    severities[models.SeverityMinor],
	}

	if summary.PendingReviews, err = s.reviews.CountPending(ctx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count pending reviews")
	}

	if err := s.countCache(ctx, now, summary); err != nil {
		return nil, err
	}

	kinds, err := s.journal.CountByKind(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count journal entries")
	}
	summary.RefreshRequests = RefreshCounts{
		Requested: kinds[journal.KindRefreshRequested],
		Failed:    kinds[journal.KindRefreshFailed],
	}

	s.logger.DebugContext(ctx, "summary assembled",
		slog.Int("entities", summary.Entities.Total),
		slog.Int("pending_reviews", summary.PendingReviews))
	return summary, nil
}

func (s *Service) countCache(ctx context.Context, now time.Time, summary *Summary) error {
	propertyIDs, err := s.cache.ListProperties(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cached properties")
	}
	for _, propertyID := range propertyIDs {
		entries, err := s.cache.ListByProperty(ctx, propertyID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read cache entries")
		}
		for _, e := range entries {
			counts := summary.Cache[e.Tier]
			counts.Total++
			if e.Stale || e.Expired(now) {
				counts.Stale++
			}
			summary.Cache[e.Tier] = counts
		}
	}
	return nil
}
