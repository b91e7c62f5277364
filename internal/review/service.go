// Package review is the manual-review queue. A listing scoring in the
// tentative band joins no group automatically: it parks here with its
// candidate groups until a reviewer confirms one or rejects them all.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"platbook/internal/journal"
	"platbook/internal/review/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/sentinel"
	"platbook/pkg/requestcontext"
)

var (
	reviewsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_reviews_queued_total",
		Help: "Listings parked for manual review.",
	})
	reviewsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platbook_reviews_resolved_total",
		Help: "Review decisions by outcome.",
	}, []string{"decision"})
)

// Store persists review items.
type Store interface {
	Create(ctx context.Context, item *models.ReviewItem) error
	FindByID(ctx context.Context, reviewID id.ReviewID) (*models.ReviewItem, error)
	FindPendingByListing(ctx context.Context, listingID id.ListingID) (*models.ReviewItem, error)
	Update(ctx context.Context, item *models.ReviewItem) error
	ListPending(ctx context.Context) ([]*models.ReviewItem, error)
	CountPending(ctx context.Context) (int, error)
}

// GroupPlacer carries a reviewer decision back into the resolution pipeline.
type GroupPlacer interface {
	// PlaceInGroup attaches the listing to the chosen group, following merge
	// tombstones, and returns the group the listing actually landed in.
	PlaceInGroup(ctx context.Context, listingID id.ListingID, groupID id.GroupID) (id.GroupID, error)
	// PlaceInNewGroup starts a fresh group around the listing.
	PlaceInNewGroup(ctx context.Context, listingID id.ListingID) (id.GroupID, error)
}

// Journal receives the decision journal entries this package emits.
type Journal interface {
	Emit(ctx context.Context, e journal.Entry) error
}

type Service struct {
	store   Store
	placer  GroupPlacer
	logger  *slog.Logger
	journal Journal
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

func NewService(store Store, placer GroupPlacer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		placer: placer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Queue parks a listing for review. A redelivered listing reuses its open
// item instead of creating a duplicate.
func (s *Service) Queue(ctx context.Context, listingID id.ListingID, platform id.Platform, candidates []models.Candidate) (*models.ReviewItem, error) {
	existing, err := s.store.FindPendingByListing(ctx, listingID)
	if err == nil {
		s.logger.DebugContext(ctx, "listing already under review",
			slog.String("listing_id", listingID.String()),
			slog.String("review_id", existing.ID.String()))
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check review queue")
	}

	item, err := models.New(listingID, platform, candidates, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, item); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Raced with another delivery of the same listing.
			existing, findErr := s.store.FindPendingByListing(ctx, listingID)
			if findErr != nil {
				return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load concurrent review item")
			}
			return existing, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue review item")
	}

	reviewsQueued.Inc()
	s.emitJournal(ctx, journal.Entry{
		Kind:      journal.KindReviewQueued,
		Subject:   "system",
		ListingID: listingID,
		Platform:  platform,
		Detail:    fmt.Sprintf("%d candidate groups", len(item.Candidates)),
	})
	s.logger.InfoContext(ctx, "listing parked for review",
		slog.String("review_id", item.ID.String()),
		slog.String("listing_id", listingID.String()),
		slog.Int("candidates", len(item.Candidates)))
	return item, nil
}

// ListPending returns the open queue, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]*models.ReviewItem, error) {
	items, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending reviews")
	}
	return items, nil
}

// Get returns one review item, pending or resolved.
func (s *Service) Get(ctx context.Context, reviewID id.ReviewID) (*models.ReviewItem, error) {
	item, err := s.store.FindByID(ctx, reviewID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "review not found")
	}
	return item, nil
}

// Confirm moves the reviewed listing into the chosen candidate group. If
// placing fails the item stays pending, and a retry re-places the listing
// idempotently.
func (s *Service) Confirm(ctx context.Context, reviewID id.ReviewID, groupID id.GroupID, reviewer string) (*models.ReviewItem, error) {
	item, err := s.resolvable(ctx, reviewID, reviewer)
	if err != nil {
		return nil, err
	}
	if !item.HasCandidate(groupID) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "group was not a candidate in this review")
	}

	landed, err := s.placer.PlaceInGroup(ctx, item.ListingID, groupID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to place listing in group")
	}

	item.ApplyConfirm(landed, reviewer, requestcontext.Now(ctx))
	if err := s.store.Update(ctx, item); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "review was already resolved")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store review decision")
	}

	reviewsResolved.WithLabelValues("confirmed").Inc()
	s.emitJournal(ctx, journal.Entry{
		Kind:      journal.KindReviewResolved,
		Subject:   reviewer,
		ListingID: item.ListingID,
		GroupID:   landed,
		Detail:    "confirmed",
	})
	s.logger.InfoContext(ctx, "review confirmed",
		slog.String("review_id", item.ID.String()),
		slog.String("group_id", landed.String()),
		slog.String("reviewer", reviewer))
	return item, nil
}

// Reject declares the listing distinct from every candidate: it gets a fresh
// group of its own.
func (s *Service) Reject(ctx context.Context, reviewID id.ReviewID, reviewer string) (*models.ReviewItem, error) {
	item, err := s.resolvable(ctx, reviewID, reviewer)
	if err != nil {
		return nil, err
	}

	fresh, err := s.placer.PlaceInNewGroup(ctx, item.ListingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start fresh group")
	}

	item.ApplyReject(fresh, reviewer, requestcontext.Now(ctx))
	if err := s.store.Update(ctx, item); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "review was already resolved")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store review decision")
	}

	reviewsResolved.WithLabelValues("rejected").Inc()
	s.emitJournal(ctx, journal.Entry{
		Kind:      journal.KindReviewResolved,
		Subject:   reviewer,
		ListingID: item.ListingID,
		GroupID:   fresh,
		Detail:    "rejected",
	})
	s.logger.InfoContext(ctx, "review rejected",
		slog.String("review_id", item.ID.String()),
		slog.String("group_id", fresh.String()),
		slog.String("reviewer", reviewer))
	return item, nil
}

// CountPending reports the open queue depth.
func (s *Service) CountPending(ctx context.Context) (int, error) {
	n, err := s.store.CountPending(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count pending reviews")
	}
	return n, nil
}

func (s *Service) resolvable(ctx context.Context, reviewID id.ReviewID, reviewer string) (*models.ReviewItem, error) {
	if reviewer == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reviewer subject is required")
	}
	item, err := s.store.FindByID(ctx, reviewID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "review not found")
	}
	if err := item.CanResolve(); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) emitJournal(ctx context.Context, e journal.Entry) {
	if s.journal == nil {
		return
	}
	_ = s.journal.Emit(ctx, e)
}
