package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"platbook/internal/journal"
	listings "platbook/internal/listing/models"
	"platbook/internal/match"
	properties "platbook/internal/property/models"
	reviews "platbook/internal/review/models"
	shadowmodels "platbook/internal/shadow/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/sentinel"
	"platbook/pkg/requestcontext"
)

// Disposition classifies what Submit did with a listing.
type Disposition string

const (
	DispositionAssigned    Disposition = "assigned"
	DispositionNewProperty Disposition = "new_property"
	DispositionReview      Disposition = "queued_for_review"
	DispositionStored      Disposition = "stored_only"
	DispositionDuplicate   Disposition = "duplicate"
)

// Result reports where a submitted listing ended up.
type Result struct {
	ListingID   id.ListingID
	Duplicate   bool
	Disposition Disposition
	GroupID     id.GroupID
	PropertyID  id.PropertyID
	ReviewID    id.ReviewID
}

// BatchItem pairs one batch record with its outcome.
type BatchItem struct {
	Result *Result
	Err    error
}

// Submit runs one raw listing through the full resolution flow. Redelivery
// of an already-resolved record returns its existing placement; a record
// whose extraction failed is stored and journaled but never matched.
func (p *Pipeline) Submit(ctx context.Context, rec *listings.RawListingRecord) (*Result, error) {
	if rec == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "listing record is required")
	}

	ctx, span := tracer.Start(ctx, "pipeline.Submit",
		trace.WithAttributes(
			attribute.String("listing.platform", rec.Platform.String()),
			attribute.String("listing.native_id", rec.NativeID),
		),
	)
	defer span.End()

	res, err := p.submit(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("listing.disposition", string(res.Disposition)))
	return res, nil
}

func (p *Pipeline) submit(ctx context.Context, rec *listings.RawListingRecord) (*Result, error) {
	rec, duplicate, err := p.storeListing(ctx, rec)
	if err != nil {
		return nil, err
	}

	if duplicate {
		g, err := p.groups.GroupForListing(ctx, rec.ID)
		if err == nil {
			listingsProcessed.WithLabelValues(string(DispositionDuplicate)).Inc()
			return &Result{ListingID: rec.ID, Duplicate: true, Disposition: DispositionDuplicate, GroupID: g.ID}, nil
		}
		if dErrors.CodeOf(err) != dErrors.CodeNotFound {
			return nil, err
		}
		// Stored but never grouped: a crash or a pending review
		// interrupted the first delivery. Run the flow again; grouping
		// and review queueing are idempotent.
	} else {
		p.emitJournal(ctx, journal.Entry{
			Kind:      journal.KindListingReceived,
			ListingID: rec.ID,
			Platform:  rec.Platform,
			Detail:    string(rec.Metadata.ExtractionStatus),
		})
	}

	if rec.Metadata.ExtractionStatus == listings.ExtractionFailed {
		listingsProcessed.WithLabelValues(string(DispositionStored)).Inc()
		p.logger.InfoContext(ctx, "stored failed extraction without matching",
			slog.String("listing_id", rec.ID.String()),
			slog.String("platform", rec.Platform.String()))
		return &Result{ListingID: rec.ID, Duplicate: duplicate, Disposition: DispositionStored}, nil
	}

	return p.resolve(ctx, rec, duplicate)
}

// SubmitBatch processes up to the policy-bounded batch concurrently.
// Individual failures never abort the batch; each item carries its own
// outcome.
func (p *Pipeline) SubmitBatch(ctx context.Context, recs []*listings.RawListingRecord) ([]BatchItem, error) {
	if len(recs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "batch is empty")
	}
	if maxSize := p.policy.Ingest.MaxBatchSize; maxSize > 0 && len(recs) > maxSize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("batch exceeds %d records", maxSize))
	}

	items := make([]BatchItem, len(recs))
	eg := errgroup.Group{}
	eg.SetLimit(p.workers)
	for i, rec := range recs {
		eg.Go(func() error {
			res, err := p.Submit(ctx, rec)
			items[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}
	_ = eg.Wait()
	return items, nil
}

func (p *Pipeline) storeListing(ctx context.Context, rec *listings.RawListingRecord) (*listings.RawListingRecord, bool, error) {
	err := p.listings.Create(ctx, rec)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, sentinel.ErrConflict) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store listing")
	}

	existing, err := p.listings.FindBySource(ctx, rec.Platform, rec.NativeID, rec.ExtractedAt)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load deduplicated listing")
	}
	return existing, true, nil
}

// scored is one index candidate with its match result.
type scored struct {
	propertyID id.PropertyID
	result     match.Result
}

// target is a live group a listing may join, after candidate resolution
// collapsed merged groups.
type target struct {
	groupID    id.GroupID
	propertyID id.PropertyID
	score      float64
	members    int
}

func (p *Pipeline) resolve(ctx context.Context, rec *listings.RawListingRecord, duplicate bool) (*Result, error) {
	profile := match.FromListing(rec)

	var auto, tentative []scored
	for _, cand := range p.index.Candidates(profile) {
		r := p.scorer.Score(profile, cand.Profile)
		switch r.Bucket {
		case match.BucketAutoMatch:
			auto = append(auto, scored{propertyID: cand.PropertyID, result: r})
		case match.BucketReview:
			tentative = append(tentative, scored{propertyID: cand.PropertyID, result: r})
		}
	}

	switch {
	case len(auto) > 0:
		return p.assign(ctx, rec, duplicate, auto)
	case len(tentative) > 0:
		return p.queueReview(ctx, rec, duplicate, tentative)
	default:
		return p.startProperty(ctx, rec, duplicate)
	}
}

// assign joins the listing to its best-scoring group. A listing clearing the
// automatic threshold against several groups is evidence those groups
// describe one property: the rest merge into the chosen group.
func (p *Pipeline) assign(ctx context.Context, rec *listings.RawListingRecord, duplicate bool, auto []scored) (*Result, error) {
	// Converges because every interfering merge strictly reduces the
	// number of live groups.
	for {
		targets, err := p.resolveTargets(ctx, auto)
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			return p.startProperty(ctx, rec, duplicate)
		}

		groupIDs := make([]id.GroupID, len(targets))
		for i, t := range targets {
			groupIDs[i] = t.groupID
		}
		unlock := p.lockGroups(groupIDs...)

		live, err := p.targetsLive(ctx, groupIDs)
		if err != nil {
			unlock()
			return nil, err
		}
		if !live {
			unlock()
			continue
		}

		res, err := p.assignLocked(ctx, rec, duplicate, targets)
		unlock()
		return res, err
	}
}

// resolveTargets maps scored candidates to their live groups, collapsing
// candidates whose groups have since merged and keeping the best score per
// surviving group. Order: score, then member count, then group id.
func (p *Pipeline) resolveTargets(ctx context.Context, candidates []scored) ([]target, error) {
	byGroup := make(map[id.GroupID]*target)
	for _, cand := range candidates {
		e, err := p.properties.FindByID(ctx, cand.propertyID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load candidate property")
		}

		g, err := p.groups.Resolve(ctx, e.GroupID)
		if err != nil {
			if dErrors.CodeOf(err) == dErrors.CodeNotFound {
				continue
			}
			return nil, err
		}

		if t, ok := byGroup[g.ID]; ok {
			if cand.result.Total > t.score {
				t.score = cand.result.Total
			}
			continue
		}

		live, err := p.properties.FindByGroup(ctx, g.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load candidate property")
		}
		byGroup[g.ID] = &target{
			groupID:    g.ID,
			propertyID: live.ID,
			score:      cand.result.Total,
			members:    len(g.Members),
		}
	}

	targets := make([]target, 0, len(byGroup))
	for _, t := range byGroup {
		targets = append(targets, *t)
	}
	slices.SortFunc(targets, func(a, b target) int {
		if a.score != b.score {
			if a.score > b.score {
				return -1
			}
			return 1
		}
		if a.members != b.members {
			return b.members - a.members
		}
		return strings.Compare(a.groupID.String(), b.groupID.String())
	})
	return targets, nil
}

func (p *Pipeline) targetsLive(ctx context.Context, groupIDs []id.GroupID) (bool, error) {
	for _, groupID := range groupIDs {
		g, err := p.groups.Resolve(ctx, groupID)
		if err != nil {
			if dErrors.CodeOf(err) == dErrors.CodeNotFound {
				return false, nil
			}
			return false, err
		}
		if g.ID != groupID {
			return false, nil
		}
	}
	return true, nil
}

func (p *Pipeline) assignLocked(ctx context.Context, rec *listings.RawListingRecord, duplicate bool, targets []target) (*Result, error) {
	winner := targets[0]

	g, err := p.groups.AddMember(ctx, winner.groupID, rec.ID)
	if err != nil {
		return nil, err
	}
	p.emitJournal(ctx, journal.Entry{
		Kind:      journal.KindGroupAssigned,
		ListingID: rec.ID,
		GroupID:   g.ID,
		Platform:  rec.Platform,
		Detail:    fmt.Sprintf("score %.2f", winner.score),
	})

	absorbed := p.absorb(ctx, g, targets[1:])

	g, err = p.groups.Resolve(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	e, err := p.consolidateGroup(ctx, g)
	if err != nil {
		return nil, err
	}
	p.retireAbsorbed(ctx, absorbed, e.ID)

	listingsProcessed.WithLabelValues(string(DispositionAssigned)).Inc()
	return &Result{
		ListingID:   rec.ID,
		Duplicate:   duplicate,
		Disposition: DispositionAssigned,
		GroupID:     g.ID,
		PropertyID:  e.ID,
	}, nil
}

// absorb merges every bridged group into the winner and returns the absorbed
// entities awaiting retirement. A merge that fails is skipped, not fatal:
// the listing's assignment stands and the next bridging listing retries.
func (p *Pipeline) absorb(ctx context.Context, winner *shadowmodels.ShadowGroup, losers []target) []*properties.PropertyEntity {
	var absorbed []*properties.PropertyEntity
	for _, loser := range losers {
		loserEntity, err := p.properties.FindByGroup(ctx, loser.groupID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			p.logger.WarnContext(ctx, "failed to load entity of bridged group",
				slog.String("group_id", loser.groupID.String()), slog.Any("error", err))
			continue
		}

		if _, err := p.groups.Merge(ctx, winner.ID, loser.groupID, "listing matched both groups"); err != nil {
			p.logger.WarnContext(ctx, "failed to merge bridged group",
				slog.String("winner", winner.ID.String()),
				slog.String("loser", loser.groupID.String()),
				slog.Any("error", err))
			continue
		}
		groupsMerged.Inc()
		p.emitJournal(ctx, journal.Entry{
			Kind:    journal.KindGroupsMerged,
			GroupID: winner.ID,
			Detail:  "absorbed " + loser.groupID.String(),
		})
		if loserEntity != nil {
			absorbed = append(absorbed, loserEntity)
		}
	}
	return absorbed
}

// retireAbsorbed supersedes the entities of merged-away groups. They stay
// queryable as discarded shadow duplicates.
func (p *Pipeline) retireAbsorbed(ctx context.Context, absorbed []*properties.PropertyEntity, into id.PropertyID) {
	now := requestcontext.Now(ctx)
	for _, e := range absorbed {
		e.ApplyMerge(into, now)
		verdict, reasons := p.classifier.Classify(e, nil)
		e.ApplyClassification(verdict, reasons, now)
		if err := p.properties.Update(ctx, e); err != nil {
			p.logger.WarnContext(ctx, "failed to retire absorbed entity",
				slog.String("property_id", e.ID.String()), slog.Any("error", err))
			continue
		}
		p.index.Remove(e.ID)
	}
}

// queueReview parks the listing with every tentative candidate for a human
// decision. The listing joins no group until the review resolves.
func (p *Pipeline) queueReview(ctx context.Context, rec *listings.RawListingRecord, duplicate bool, tentative []scored) (*Result, error) {
	targets, err := p.resolveTargets(ctx, tentative)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return p.startProperty(ctx, rec, duplicate)
	}
	if p.reviews == nil {
		listingsProcessed.WithLabelValues(string(DispositionStored)).Inc()
		p.logger.WarnContext(ctx, "no review queue wired, storing ambiguous listing",
			slog.String("listing_id", rec.ID.String()))
		return &Result{ListingID: rec.ID, Duplicate: duplicate, Disposition: DispositionStored}, nil
	}

	candidates := make([]reviews.Candidate, len(targets))
	for i, t := range targets {
		candidates[i] = reviews.Candidate{GroupID: t.groupID, Score: t.score}
	}
	item, err := p.reviews.Queue(ctx, rec.ID, rec.Platform, candidates)
	if err != nil {
		return nil, err
	}

	listingsProcessed.WithLabelValues(string(DispositionReview)).Inc()
	return &Result{
		ListingID:   rec.ID,
		Duplicate:   duplicate,
		Disposition: DispositionReview,
		ReviewID:    item.ID,
	}, nil
}

// startProperty opens a fresh group and entity around a listing nothing
// matched.
func (p *Pipeline) startProperty(ctx context.Context, rec *listings.RawListingRecord, duplicate bool) (*Result, error) {
	g, err := p.groups.CreateGroup(ctx, rec.ID)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeConflict {
			if existing, gerr := p.groups.GroupForListing(ctx, rec.ID); gerr == nil {
				listingsProcessed.WithLabelValues(string(DispositionDuplicate)).Inc()
				return &Result{ListingID: rec.ID, Duplicate: true, Disposition: DispositionDuplicate, GroupID: existing.ID}, nil
			}
		}
		return nil, err
	}

	unlock := p.locks.Lock(g.ID.String())
	defer unlock()

	p.emitJournal(ctx, journal.Entry{
		Kind:      journal.KindGroupAssigned,
		ListingID: rec.ID,
		GroupID:   g.ID,
		Platform:  rec.Platform,
		Detail:    "new group",
	})

	e, err := p.consolidateGroup(ctx, g)
	if err != nil {
		return nil, err
	}

	listingsProcessed.WithLabelValues(string(DispositionNewProperty)).Inc()
	return &Result{
		ListingID:   rec.ID,
		Duplicate:   duplicate,
		Disposition: DispositionNewProperty,
		GroupID:     g.ID,
		PropertyID:  e.ID,
	}, nil
}
