package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"platbook/internal/cache"
	"platbook/internal/cache/dispatch"
	cachemodels "platbook/internal/cache/models"
	cachestore "platbook/internal/cache/store"
	"platbook/internal/journal"
	journalstore "platbook/internal/journal/store"
	listings "platbook/internal/listing/models"
	listingstore "platbook/internal/listing/store"
	"platbook/internal/policy"
	properties "platbook/internal/property/models"
	propertystore "platbook/internal/property/store"
	"platbook/internal/review"
	reviewstore "platbook/internal/review/store"
	"platbook/internal/shadow"
	shadowstore "platbook/internal/shadow/store"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/requestcontext"
)

var pipeBase = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type fakeVerifier struct {
	mu        sync.Mutex
	requested []id.PropertyID
}

func (f *fakeVerifier) Request(_ context.Context, e *properties.PropertyEntity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, e.ID)
	return nil
}

func (f *fakeVerifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requested)
}

type PipelineSuite struct {
	suite.Suite

	ctx         context.Context
	listings    *listingstore.MemoryStore
	properties  *propertystore.MemoryStore
	groups      *shadow.Manager
	cacheStore  *cachestore.MemoryStore
	journal     *journalstore.MemoryStore
	reviewStore *reviewstore.MemoryStore
	verifier    *fakeVerifier
	pipeline    *Pipeline
	reviews     *review.Service
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), pipeBase)
	s.listings = listingstore.NewMemory()
	s.properties = propertystore.NewMemory()
	s.groups = shadow.NewManager(shadowstore.NewMemory())
	s.cacheStore = cachestore.NewMemory()
	s.journal = journalstore.NewMemory()
	s.reviewStore = reviewstore.NewMemory()
	s.verifier = &fakeVerifier{}

	pub := journal.NewPublisher(s.journal)
	s.pipeline = New(s.listings, s.properties, s.groups, policy.Default(),
		WithCache(cache.NewManager(s.cacheStore, dispatch.NewLocal(nil), policy.Default())),
		WithVerifier(s.verifier),
		WithJournal(pub),
	)
	s.reviews = review.NewService(s.reviewStore, s.pipeline, review.WithJournal(pub))
	s.pipeline.AttachReviewQueue(s.reviews)
}

func (s *PipelineSuite) record(platform id.Platform, nativeID string, extractedAt time.Time, fields map[string]any) *listings.RawListingRecord {
	rec, err := listings.New(platform, nativeID, extractedAt, fields, listings.Metadata{}, pipeBase)
	s.Require().NoError(err)
	return rec
}

func (s *PipelineSuite) submit(rec *listings.RawListingRecord) *Result {
	res, err := s.pipeline.Submit(s.ctx, rec)
	s.Require().NoError(err)
	return res
}

// congressFields is a clean office listing that classifies usable.
func congressFields() map[string]any {
	return map[string]any{
		"address":       "400 Congress Ave",
		"city":          "Austin",
		"state":         "TX",
		"zip":           "78701",
		"property_type": "office",
		"price":         12_000_000.0,
		"square_feet":   40_000.0,
	}
}

func (s *PipelineSuite) TestSubmitStartsNewProperty() {
	res := s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-time.Hour), congressFields()))

	s.Equal(DispositionNewProperty, res.Disposition)
	s.False(res.Duplicate)
	s.False(res.GroupID.IsNil())
	s.False(res.PropertyID.IsNil())

	e, err := s.properties.FindByGroup(s.ctx, res.GroupID)
	s.Require().NoError(err)
	s.Equal(res.PropertyID, e.ID)
	s.Equal(properties.VerdictUsable, e.Classification.Verdict)
	addr, ok := e.Address()
	s.True(ok)
	s.Equal("400 Congress Ave", addr)
	s.Len(e.SourceListings, 1)

	entries, err := s.cacheStore.ListByProperty(s.ctx, e.ID)
	s.Require().NoError(err)
	s.NotEmpty(entries)

	s.Equal([]id.PropertyID{e.ID}, s.verifier.requested)

	kinds, err := s.journal.CountByKind(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, kinds[journal.KindListingReceived])
	s.Equal(1, kinds[journal.KindGroupAssigned])
	s.Equal(1, kinds[journal.KindEntityConsolidated])
	s.Equal(1, kinds[journal.KindEntityClassified])
}

func (s *PipelineSuite) TestSubmitAssignsMatchingListing() {
	first := s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-2*time.Hour), congressFields()))
	second := s.submit(s.record(id.PlatformLoopnet, "lp-7", pipeBase.Add(-time.Hour), congressFields()))

	s.Equal(DispositionAssigned, second.Disposition)
	s.Equal(first.GroupID, second.GroupID)
	s.Equal(first.PropertyID, second.PropertyID)

	e, err := s.properties.FindByID(s.ctx, first.PropertyID)
	s.Require().NoError(err)
	s.Len(e.SourceListings, 2)
	s.Equal(properties.VerdictUsable, e.Classification.Verdict)
	s.Empty(e.Conflicts)
}

func (s *PipelineSuite) TestMinorPriceDisagreementStaysUsable() {
	mainFields := func(price float64) map[string]any {
		return map[string]any{
			"address":       "123 Main St",
			"city":          "Newark",
			"state":         "NJ",
			"zip":           "07102",
			"property_type": "office",
			"price":         price,
			"square_feet":   18_000.0,
		}
	}
	first := s.submit(s.record(id.PlatformCrexi, "cx-201", pipeBase.Add(-2*time.Hour), mainFields(2_500_000)))
	res := s.submit(s.record(id.PlatformLoopnet, "lp-44", pipeBase.Add(-time.Hour), mainFields(2_450_000)))

	s.Equal(DispositionAssigned, res.Disposition)
	s.Equal(first.PropertyID, res.PropertyID)

	e, err := s.properties.FindByID(s.ctx, res.PropertyID)
	s.Require().NoError(err)
	s.Len(e.SourceListings, 2)
	s.Equal(properties.VerdictUsable, e.Classification.Verdict, "a minor disagreement does not flag")
	s.Require().Len(e.Conflicts, 1)
	s.Equal(id.FieldPrice, e.Conflicts[0].Field)
	s.Equal(properties.SeverityMinor, e.Conflicts[0].Severity)
	s.False(e.HasMaterialConflict(false))
}

func (s *PipelineSuite) TestSubmitRedeliveryReturnsPlacement() {
	extractedAt := pipeBase.Add(-time.Hour)
	first := s.submit(s.record(id.PlatformCrexi, "cx-100", extractedAt, congressFields()))

	res := s.submit(s.record(id.PlatformCrexi, "cx-100", extractedAt, congressFields()))
	s.True(res.Duplicate)
	s.Equal(DispositionDuplicate, res.Disposition)
	s.Equal(first.ListingID, res.ListingID)
	s.Equal(first.GroupID, res.GroupID)

	kinds, err := s.journal.CountByKind(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, kinds[journal.KindListingReceived])
}

func (s *PipelineSuite) TestSubmitStoresFailedExtraction() {
	rec, err := listings.New(id.PlatformZillow, "z-9", pipeBase.Add(-time.Hour),
		map[string]any{"address": "400 Congress Ave"},
		listings.Metadata{ExtractionStatus: listings.ExtractionFailed, ExtractionErrors: []string{"selector timeout"}},
		pipeBase)
	s.Require().NoError(err)

	res := s.submit(rec)
	s.Equal(DispositionStored, res.Disposition)
	s.True(res.GroupID.IsNil())
	s.True(res.PropertyID.IsNil())

	stored, err := s.listings.FindByID(s.ctx, res.ListingID)
	s.Require().NoError(err)
	s.Equal(listings.ExtractionFailed, stored.Metadata.ExtractionStatus)

	_, err = s.groups.GroupForListing(s.ctx, res.ListingID)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))

	recent, err := s.journal.ListRecent(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal(journal.KindListingReceived, recent[0].Kind)
	s.Equal("failed", recent[0].Detail)
}

func (s *PipelineSuite) TestSubmitQueuesTentativeMatch() {
	first := s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-2*time.Hour), congressFields()))

	// Same building identity, wildly different size and price: the score
	// lands between the review and auto thresholds.
	fields := congressFields()
	fields["price"] = 30_000_000.0
	fields["square_feet"] = 15_000.0
	res := s.submit(s.record(id.PlatformLoopnet, "lp-7", pipeBase.Add(-time.Hour), fields))

	s.Equal(DispositionReview, res.Disposition)
	s.False(res.ReviewID.IsNil())
	s.True(res.GroupID.IsNil())
	s.True(res.PropertyID.IsNil())

	item, err := s.reviewStore.FindByID(s.ctx, res.ReviewID)
	s.Require().NoError(err)
	s.Require().Len(item.Candidates, 1)
	s.Equal(first.GroupID, item.Candidates[0].GroupID)
	s.InDelta(0.75, item.Candidates[0].Score, 0.001)
}

func (s *PipelineSuite) TestConfirmedReviewJoinsGroup() {
	first := s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-2*time.Hour), congressFields()))

	fields := congressFields()
	fields["price"] = 30_000_000.0
	fields["square_feet"] = 15_000.0
	res := s.submit(s.record(id.PlatformLoopnet, "lp-7", pipeBase.Add(-time.Hour), fields))
	s.Require().Equal(DispositionReview, res.Disposition)

	resolved, err := s.reviews.Confirm(s.ctx, res.ReviewID, first.GroupID, "analyst@platbook")
	s.Require().NoError(err)
	s.Equal(first.GroupID, resolved.ResolvedGroup)

	e, err := s.properties.FindByID(s.ctx, first.PropertyID)
	s.Require().NoError(err)
	s.Len(e.SourceListings, 2)
	s.Contains(e.SourceListings, res.ListingID)
	s.Equal(properties.VerdictFlagged, e.Classification.Verdict)
	s.NotEmpty(e.Conflicts)
}

func (s *PipelineSuite) TestRejectedReviewStartsProperty() {
	first := s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-2*time.Hour), congressFields()))

	fields := congressFields()
	fields["price"] = 30_000_000.0
	fields["square_feet"] = 15_000.0
	res := s.submit(s.record(id.PlatformLoopnet, "lp-7", pipeBase.Add(-time.Hour), fields))
	s.Require().Equal(DispositionReview, res.Disposition)

	resolved, err := s.reviews.Reject(s.ctx, res.ReviewID, "analyst@platbook")
	s.Require().NoError(err)
	s.NotEqual(first.GroupID, resolved.ResolvedGroup)

	e, err := s.properties.FindByGroup(s.ctx, resolved.ResolvedGroup)
	s.Require().NoError(err)
	s.Equal([]id.ListingID{res.ListingID}, e.SourceListings)

	original, err := s.properties.FindByID(s.ctx, first.PropertyID)
	s.Require().NoError(err)
	s.Len(original.SourceListings, 1)
}

func (s *PipelineSuite) TestSubmitDistinctAddressStartsSecondProperty() {
	first := s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-2*time.Hour), congressFields()))

	fields := congressFields()
	fields["address"] = "9800 Research Blvd"
	fields["zip"] = "78758"
	second := s.submit(s.record(id.PlatformCrexi, "cx-200", pipeBase.Add(-time.Hour), fields))

	s.Equal(DispositionNewProperty, second.Disposition)
	s.NotEqual(first.GroupID, second.GroupID)
	s.NotEqual(first.PropertyID, second.PropertyID)
}

func (s *PipelineSuite) TestBridgingListingMergesGroups() {
	// Two platforms name the same tower differently; neither rendering
	// contains the other, so the groups start distinct.
	towerFields := congressFields()
	towerFields["address"] = "South Tower 400 Congress Ave"
	first := s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-3*time.Hour), towerFields))

	floorFields := congressFields()
	floorFields["address"] = "400 Congress Ave Floor 12"
	second := s.submit(s.record(id.PlatformLoopnet, "lp-7", pipeBase.Add(-2*time.Hour), floorFields))
	s.Require().Equal(DispositionNewProperty, second.Disposition)
	s.Require().NotEqual(first.GroupID, second.GroupID)

	// The full address contains both renderings and auto-matches both
	// groups, which is the evidence they were one property all along.
	bridgeFields := congressFields()
	bridgeFields["address"] = "South Tower 400 Congress Ave Floor 12"
	res := s.submit(s.record(id.PlatformRealtor, "rl-4", pipeBase.Add(-time.Hour), bridgeFields))
	s.Equal(DispositionAssigned, res.Disposition)

	firstResolved, err := s.groups.Resolve(s.ctx, first.GroupID)
	s.Require().NoError(err)
	secondResolved, err := s.groups.Resolve(s.ctx, second.GroupID)
	s.Require().NoError(err)
	s.Equal(res.GroupID, firstResolved.ID)
	s.Equal(res.GroupID, secondResolved.ID)
	s.Len(firstResolved.Members, 3)

	winner, err := s.properties.FindByID(s.ctx, res.PropertyID)
	s.Require().NoError(err)
	s.False(winner.IsSuperseded())
	s.Len(winner.SourceListings, 3)

	loserID := first.PropertyID
	if res.PropertyID == first.PropertyID {
		loserID = second.PropertyID
	}
	loser, err := s.properties.FindByID(s.ctx, loserID)
	s.Require().NoError(err)
	s.True(loser.IsSuperseded())
	s.Equal(res.PropertyID, loser.MergedInto)
	s.Equal(properties.VerdictDiscarded, loser.Classification.Verdict)
	s.Contains(loser.Classification.Reasons, "duplicate of existing property")

	kinds, err := s.journal.CountByKind(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, kinds[journal.KindGroupsMerged])
}

func (s *PipelineSuite) TestMaterialPriceConflictFlagsAndInvalidates() {
	s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-2*time.Hour), congressFields()))
	s.Equal(1, s.verifier.count())

	fields := congressFields()
	fields["price"] = 16_000_000.0
	res := s.submit(s.record(id.PlatformLoopnet, "lp-7", pipeBase.Add(-time.Hour), fields))
	s.Equal(DispositionAssigned, res.Disposition)

	e, err := s.properties.FindByID(s.ctx, res.PropertyID)
	s.Require().NoError(err)
	s.True(e.HasMaterialConflict(false))
	s.Equal(properties.VerdictFlagged, e.Classification.Verdict)
	s.Contains(e.Classification.Reasons, "unresolved conflicts")

	// The more recent observation wins the volatile field.
	price, ok := e.Float(id.FieldPrice)
	s.True(ok)
	s.InDelta(16_000_000, price, 0.1)

	entries, err := s.cacheStore.ListByProperty(s.ctx, e.ID)
	s.Require().NoError(err)
	var priceEntry *cachemodels.Entry
	for _, en := range entries {
		if en.Field == id.FieldPrice {
			priceEntry = en
		}
	}
	s.Require().NotNil(priceEntry)
	s.True(priceEntry.Stale)

	// Flagged entities are not handed to verification.
	s.Equal(1, s.verifier.count())
}

func (s *PipelineSuite) TestReconsolidateFoldsVerification() {
	res := s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-time.Hour), congressFields()))

	e, err := s.properties.FindByID(s.ctx, res.PropertyID)
	s.Require().NoError(err)
	e.ApplyVerification(&properties.VerificationBlock{
		ParcelID:      "0204-0311-0070",
		Ownership:     "Congress Holdings LLC",
		TaxAssessment: 11_400_000,
		Zoning:        "CBD",
		Confidence:    0.97,
		VerifiedAt:    pipeBase,
	}, pipeBase)
	s.Require().NoError(s.properties.Update(s.ctx, e))

	s.Require().NoError(s.pipeline.Reconsolidate(s.ctx, res.PropertyID))

	reloaded, err := s.properties.FindByID(s.ctx, res.PropertyID)
	s.Require().NoError(err)
	owner, ok := reloaded.Fields[id.FieldOwnership]
	s.Require().True(ok)
	s.Equal("Congress Holdings LLC", owner.Value)
	s.Equal(id.PlatformCountyRecords, owner.Source)
	_, ok = reloaded.Fields[id.FieldZoning]
	s.True(ok)
	s.Len(reloaded.SourceListings, 1)
}

func (s *PipelineSuite) TestReconsolidateUnknownProperty() {
	err := s.pipeline.Reconsolidate(s.ctx, id.NewPropertyID())
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *PipelineSuite) TestReconsolidateSkipsSupersededEntity() {
	res := s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-time.Hour), congressFields()))

	e, err := s.properties.FindByID(s.ctx, res.PropertyID)
	s.Require().NoError(err)
	e.ApplyMerge(id.NewPropertyID(), pipeBase)
	s.Require().NoError(s.properties.Update(s.ctx, e))

	s.NoError(s.pipeline.Reconsolidate(s.ctx, res.PropertyID))
}

func (s *PipelineSuite) TestSubmitBatchValidation() {
	_, err := s.pipeline.SubmitBatch(s.ctx, nil)
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))

	pol := policy.Default()
	pol.Ingest.MaxBatchSize = 2
	small := New(s.listings, s.properties, s.groups, pol)
	_, err = small.SubmitBatch(s.ctx, []*listings.RawListingRecord{
		s.record(id.PlatformCrexi, "cx-1", pipeBase.Add(-time.Hour), congressFields()),
		s.record(id.PlatformCrexi, "cx-2", pipeBase.Add(-time.Hour), congressFields()),
		s.record(id.PlatformCrexi, "cx-3", pipeBase.Add(-time.Hour), congressFields()),
	})
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

func (s *PipelineSuite) TestSubmitBatchIsolatesItems() {
	extractedAt := pipeBase.Add(-time.Hour)
	dallasFields := congressFields()
	dallasFields["address"] = "1900 Pearl St"
	dallasFields["city"] = "Dallas"
	dallasFields["zip"] = "75201"

	// The same listing delivered twice in one batch: one submission wins
	// the store, the other resolves as a redelivery. Neither aborts the
	// batch.
	items, err := s.pipeline.SubmitBatch(s.ctx, []*listings.RawListingRecord{
		s.record(id.PlatformCrexi, "cx-100", extractedAt, congressFields()),
		s.record(id.PlatformCrexi, "dl-1", extractedAt, dallasFields),
		s.record(id.PlatformCrexi, "cx-100", extractedAt, congressFields()),
	})
	s.Require().NoError(err)
	s.Require().Len(items, 3)

	for _, item := range items {
		s.Require().NoError(item.Err)
	}
	s.Equal(DispositionNewProperty, items[1].Result.Disposition)
	s.ElementsMatch(
		[]Disposition{DispositionNewProperty, DispositionDuplicate},
		[]Disposition{items[0].Result.Disposition, items[2].Result.Disposition},
	)
	s.Equal(items[0].Result.ListingID, items[2].Result.ListingID)
}

func (s *PipelineSuite) TestRebuildIndexRestoresMatching() {
	first := s.submit(s.record(id.PlatformCrexi, "cx-100", pipeBase.Add(-2*time.Hour), congressFields()))

	// A fresh process over the same stores matches nothing until the index
	// is rebuilt.
	restarted := New(s.listings, s.properties, s.groups, policy.Default())
	s.Require().NoError(restarted.RebuildIndex(s.ctx))

	res, err := restarted.Submit(s.ctx, s.record(id.PlatformLoopnet, "lp-7", pipeBase.Add(-time.Hour), congressFields()))
	s.Require().NoError(err)
	s.Equal(DispositionAssigned, res.Disposition)
	s.Equal(first.GroupID, res.GroupID)
}
