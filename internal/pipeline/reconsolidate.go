package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cachemodels "platbook/internal/cache/models"
	"platbook/internal/consolidate"
	"platbook/internal/journal"
	"platbook/internal/match"
	properties "platbook/internal/property/models"
	shadowmodels "platbook/internal/shadow/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/sentinel"
	"platbook/pkg/requestcontext"
)

// Reconsolidate re-runs consolidation and classification for one entity
// after its source set changed (verification applied, enrichment attached,
// review resolved). Superseded entities are left alone; their live
// descendant owns the data.
func (p *Pipeline) Reconsolidate(ctx context.Context, propertyID id.PropertyID) error {
	e, err := p.properties.FindByID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load property")
	}
	if e.IsSuperseded() {
		return nil
	}

	g, unlock, err := p.lockLiveGroup(ctx, e.GroupID)
	if err != nil {
		return err
	}
	defer unlock()

	_, err = p.consolidateGroup(ctx, g)
	return err
}

// PlaceInGroup moves a reviewed listing into a confirmed group, following
// merge tombstones to wherever that group lives now. Returns the group the
// listing actually landed in.
func (p *Pipeline) PlaceInGroup(ctx context.Context, listingID id.ListingID, groupID id.GroupID) (id.GroupID, error) {
	g, unlock, err := p.lockLiveGroup(ctx, groupID)
	if err != nil {
		return id.GroupID{}, err
	}
	defer unlock()

	g, err = p.groups.AddMember(ctx, g.ID, listingID)
	if err != nil {
		return id.GroupID{}, err
	}
	p.emitJournal(ctx, journal.Entry{
		Kind:      journal.KindGroupAssigned,
		ListingID: listingID,
		GroupID:   g.ID,
		Detail:    "review confirmed",
	})

	if _, err := p.consolidateGroup(ctx, g); err != nil {
		return id.GroupID{}, err
	}
	return g.ID, nil
}

// PlaceInNewGroup starts a fresh group for a listing a reviewer rejected
// from every candidate.
func (p *Pipeline) PlaceInNewGroup(ctx context.Context, listingID id.ListingID) (id.GroupID, error) {
	g, err := p.groups.CreateGroup(ctx, listingID)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeConflict {
			// A retried resolution: the listing already got its group.
			if existing, gerr := p.groups.GroupForListing(ctx, listingID); gerr == nil {
				return existing.ID, nil
			}
		}
		return id.GroupID{}, err
	}

	unlock := p.locks.Lock(g.ID.String())
	defer unlock()

	p.emitJournal(ctx, journal.Entry{
		Kind:      journal.KindGroupAssigned,
		ListingID: listingID,
		GroupID:   g.ID,
		Detail:    "review rejected, new group",
	})

	if _, err := p.consolidateGroup(ctx, g); err != nil {
		return id.GroupID{}, err
	}
	return g.ID, nil
}

// consolidateGroup rebuilds the group's entity from its member listings plus
// any verification and enrichment blocks, classifies it, persists it, and
// pushes the result into the index and the cache. Caller holds the group's
// lock.
func (p *Pipeline) consolidateGroup(ctx context.Context, g *shadowmodels.ShadowGroup) (*properties.PropertyEntity, error) {
	ctx, span := tracer.Start(ctx, "pipeline.consolidateGroup",
		trace.WithAttributes(
			attribute.String("group.id", g.ID.String()),
			attribute.Int("group.members", len(g.Members)),
		),
	)
	defer span.End()

	e, err := p.runConsolidation(ctx, g)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("property.id", e.ID.String()),
		attribute.String("property.verdict", string(e.Classification.Verdict)),
	)
	return e, nil
}

func (p *Pipeline) runConsolidation(ctx context.Context, g *shadowmodels.ShadowGroup) (*properties.PropertyEntity, error) {
	now := requestcontext.Now(ctx)

	e, created, err := p.entityFor(ctx, g, now)
	if err != nil {
		return nil, err
	}

	sources, err := p.sourcesFor(ctx, g, e)
	if err != nil {
		return nil, err
	}

	outcome, err := p.consolidator.Consolidate(e, sources, now)
	if err != nil {
		return nil, err
	}
	consolidations.Inc()
	p.emitJournal(ctx, journal.Entry{
		Kind:       journal.KindEntityConsolidated,
		PropertyID: e.ID,
		GroupID:    g.ID,
		Detail:     fmt.Sprintf("%d sources", len(sources)),
	})

	verdict, reasons := p.classifier.Classify(e, p.comparablePrices(ctx, e))
	e.ApplyClassification(verdict, reasons, now)
	p.emitJournal(ctx, journal.Entry{
		Kind:       journal.KindEntityClassified,
		PropertyID: e.ID,
		Detail:     string(verdict),
	})

	if created {
		err = p.properties.Create(ctx, e)
	} else {
		err = p.properties.Update(ctx, e)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store property")
	}

	p.index.Upsert(e.ID, match.FromEntity(e))

	if p.cache != nil {
		if err := p.cache.Populate(ctx, e); err != nil {
			p.logger.WarnContext(ctx, "failed to populate cache",
				slog.String("property_id", e.ID.String()), slog.Any("error", err))
		}
	}
	p.raiseMaterialConflicts(ctx, e, outcome, now)

	if verdict == properties.VerdictUsable && p.verifier != nil {
		if err := p.verifier.Request(ctx, e); err != nil {
			p.logger.WarnContext(ctx, "failed to request verification",
				slog.String("property_id", e.ID.String()), slog.Any("error", err))
		}
	}

	p.logger.InfoContext(ctx, "consolidated property",
		slog.String("property_id", e.ID.String()),
		slog.String("group_id", g.ID.String()),
		slog.Int("sources", len(sources)),
		slog.String("verdict", string(verdict)))
	return e, nil
}

func (p *Pipeline) entityFor(ctx context.Context, g *shadowmodels.ShadowGroup, now time.Time) (*properties.PropertyEntity, bool, error) {
	e, err := p.properties.FindByGroup(ctx, g.ID)
	if err == nil {
		return e, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load group entity")
	}

	e, err = properties.NewEntity(g.ID, now)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (p *Pipeline) sourcesFor(ctx context.Context, g *shadowmodels.ShadowGroup, e *properties.PropertyEntity) ([]consolidate.Source, error) {
	sources := make([]consolidate.Source, 0, len(g.Members)+2)
	for _, listingID := range g.Members {
		rec, err := p.listings.FindByID(ctx, listingID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member listing")
		}
		sources = append(sources, consolidate.FromListing(rec))
	}
	if e.Verification != nil {
		sources = append(sources, consolidate.FromVerification(e.Verification))
	}
	if e.Enrichment != nil {
		sources = append(sources, consolidate.FromEnrichment(e.Enrichment))
	}
	return sources, nil
}

// comparablePrices collects prices of same-market entities for the outlier
// check. Failing to load comparables weakens classification, it never blocks
// it.
func (p *Pipeline) comparablePrices(ctx context.Context, e *properties.PropertyEntity) []float64 {
	state, okState := e.State()
	city, okCity := e.City()
	propertyType, okType := e.PropertyType()
	if !okState || !okCity || !okType {
		return nil
	}

	comparables, err := p.properties.ListComparables(ctx, state, city, propertyType)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to load comparables",
			slog.String("property_id", e.ID.String()), slog.Any("error", err))
		return nil
	}

	var prices []float64
	for _, c := range comparables {
		if c.ID == e.ID {
			continue
		}
		if price, ok := c.Float(id.FieldPrice); ok && price > 0 {
			prices = append(prices, price)
		}
	}
	return prices
}

// raiseMaterialConflicts turns newly recorded material conflicts into a
// material_discrepancy invalidation for the fields concerned.
func (p *Pipeline) raiseMaterialConflicts(ctx context.Context, e *properties.PropertyEntity, outcome consolidate.Outcome, now time.Time) {
	if !outcome.Material || p.cache == nil {
		return
	}

	var fields []id.Field
	for _, c := range outcome.NewConflicts {
		if c.Severity == properties.SeverityMaterial {
			fields = append(fields, c.Field)
		}
	}

	ev := cachemodels.InvalidationEvent{
		EventID:    id.NewEventID(),
		Kind:       cachemodels.EventMaterialDiscrepancy,
		PropertyID: e.ID,
		Fields:     fields,
		At:         now,
	}
	if _, err := p.cache.HandleEvent(ctx, ev); err != nil {
		p.logger.WarnContext(ctx, "failed to raise material discrepancy",
			slog.String("property_id", e.ID.String()), slog.Any("error", err))
	}
}
