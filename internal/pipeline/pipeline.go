// Package pipeline orchestrates the resolution flow: raw listing in, scored
// against the candidate index, grouped, consolidated, classified, cached.
// Work for different properties runs in parallel; everything touching one
// property serializes on a keyed lock.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	cachemodels "platbook/internal/cache/models"
	"platbook/internal/classify"
	"platbook/internal/consolidate"
	"platbook/internal/journal"
	listings "platbook/internal/listing/models"
	"platbook/internal/match"
	"platbook/internal/policy"
	properties "platbook/internal/property/models"
	reviews "platbook/internal/review/models"
	"platbook/internal/shadow"
	shadowmodels "platbook/internal/shadow/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/keylock"
)

var (
	listingsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platbook_pipeline_listings_total",
		Help: "Listings processed by disposition.",
	}, []string{"disposition"})
	groupsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_pipeline_groups_merged_total",
		Help: "Shadow groups absorbed after a listing bridged them.",
	})
	consolidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_pipeline_consolidations_total",
		Help: "Consolidation runs.",
	})

	tracer = otel.Tracer("platbook/pipeline")
)

// ListingStore is the slice of listing persistence the pipeline uses.
type ListingStore interface {
	Create(ctx context.Context, rec *listings.RawListingRecord) error
	FindByID(ctx context.Context, listingID id.ListingID) (*listings.RawListingRecord, error)
	FindBySource(ctx context.Context, platform id.Platform, nativeID string, extractedAt time.Time) (*listings.RawListingRecord, error)
}

// PropertyStore is the slice of entity persistence the pipeline uses.
type PropertyStore interface {
	Create(ctx context.Context, e *properties.PropertyEntity) error
	FindByID(ctx context.Context, propertyID id.PropertyID) (*properties.PropertyEntity, error)
	FindByGroup(ctx context.Context, groupID id.GroupID) (*properties.PropertyEntity, error)
	Update(ctx context.Context, e *properties.PropertyEntity) error
	List(ctx context.Context) ([]*properties.PropertyEntity, error)
	ListComparables(ctx context.Context, state, city, propertyType string) ([]*properties.PropertyEntity, error)
}

// ReviewQueue parks ambiguous listings for a human decision.
type ReviewQueue interface {
	Queue(ctx context.Context, listingID id.ListingID, platform id.Platform, candidates []reviews.Candidate) (*reviews.ReviewItem, error)
}

// Verifier asks the government-records collaborator to verify an entity.
type Verifier interface {
	Request(ctx context.Context, e *properties.PropertyEntity) error
}

// CacheControl is the slice of the cache manager the pipeline drives.
type CacheControl interface {
	Populate(ctx context.Context, e *properties.PropertyEntity) error
	HandleEvent(ctx context.Context, ev cachemodels.InvalidationEvent) ([]id.Field, error)
}

// Journal receives one entry per pipeline decision.
type Journal interface {
	Emit(ctx context.Context, e journal.Entry) error
}

// Pipeline wires the resolution stages together. The zero-value collaborator
// ports (reviews, verifier, cache, journal) are optional so tests and
// degraded deployments can run a partial flow.
type Pipeline struct {
	listings     ListingStore
	properties   PropertyStore
	groups       *shadow.Manager
	index        *match.Index
	scorer       *match.Scorer
	consolidator *consolidate.Consolidator
	classifier   *classify.Classifier

	reviews  ReviewQueue
	verifier Verifier
	cache    CacheControl
	journal  Journal

	locks   *keylock.Registry
	policy  policy.Policy
	workers int
	logger  *slog.Logger
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWorkers bounds batch concurrency.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithReviewQueue(q ReviewQueue) Option {
	return func(p *Pipeline) { p.reviews = q }
}

func WithVerifier(v Verifier) Option {
	return func(p *Pipeline) { p.verifier = v }
}

func WithCache(c CacheControl) Option {
	return func(p *Pipeline) { p.cache = c }
}

func WithJournal(j Journal) Option {
	return func(p *Pipeline) { p.journal = j }
}

// AttachReviewQueue and AttachVerifier close the construction cycle: both
// collaborators take the pipeline as their placement or reconsolidation
// target, so they are built after it and attached before serving starts.
func (p *Pipeline) AttachReviewQueue(q ReviewQueue) { p.reviews = q }

func (p *Pipeline) AttachVerifier(v Verifier) { p.verifier = v }

func New(listingStore ListingStore, propertyStore PropertyStore, groups *shadow.Manager, pol policy.Policy, opts ...Option) *Pipeline {
	p := &Pipeline{
		listings:     listingStore,
		properties:   propertyStore,
		groups:       groups,
		index:        match.NewIndex(),
		scorer:       match.NewScorer(pol),
		consolidator: consolidate.New(pol),
		classifier:   classify.New(pol),
		locks:        keylock.New(),
		policy:       pol,
		workers:      4,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RebuildIndex reloads the candidate index from the property store. Run at
// startup before the first Submit.
func (p *Pipeline) RebuildIndex(ctx context.Context) error {
	all, err := p.properties.List(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load properties for index rebuild")
	}

	entries := make([]match.Entry, 0, len(all))
	for _, e := range all {
		if e.IsSuperseded() {
			continue
		}
		entries = append(entries, match.Entry{PropertyID: e.ID, Profile: match.FromEntity(e)})
	}
	p.index.Rebuild(entries)
	p.logger.InfoContext(ctx, "candidate index rebuilt", slog.Int("properties", p.index.Len()))
	return nil
}

// lockGroups acquires the keyed locks for a set of groups in canonical order
// and returns one unlock for all of them.
func (p *Pipeline) lockGroups(groupIDs ...id.GroupID) func() {
	keys := make([]string, 0, len(groupIDs))
	for _, g := range groupIDs {
		keys = append(keys, g.String())
	}
	sort.Strings(keys)

	unlocks := make([]func(), 0, len(keys))
	for i, key := range keys {
		if i > 0 && key == keys[i-1] {
			continue
		}
		unlocks = append(unlocks, p.locks.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// lockLiveGroup resolves a group to its live descendant and locks it,
// re-resolving after acquisition in case a merge slipped in while waiting.
func (p *Pipeline) lockLiveGroup(ctx context.Context, groupID id.GroupID) (*shadowmodels.ShadowGroup, func(), error) {
	for {
		g, err := p.groups.Resolve(ctx, groupID)
		if err != nil {
			return nil, nil, err
		}
		unlock := p.locks.Lock(g.ID.String())

		cur, err := p.groups.Resolve(ctx, g.ID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if cur.ID == g.ID {
			return cur, unlock, nil
		}
		unlock()
		groupID = cur.ID
	}
}

func (p *Pipeline) emitJournal(ctx context.Context, e journal.Entry) {
	if p.journal == nil {
		return
	}
	_ = p.journal.Emit(ctx, e)
}
