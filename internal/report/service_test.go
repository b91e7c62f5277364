package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	cachemodels "platbook/internal/cache/models"
	cachestore "platbook/internal/cache/store"
	"platbook/internal/journal"
	journalstore "platbook/internal/journal/store"
	"platbook/internal/property/models"
	propertystore "platbook/internal/property/store"
	reviewmodels "platbook/internal/review/models"
	reviewstore "platbook/internal/review/store"
	id "platbook/pkg/domain"
	"platbook/pkg/requestcontext"
)

var reportBase = time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

type ReportSuite struct {
	suite.Suite
	properties *propertystore.MemoryStore
	reviews    *reviewstore.MemoryStore
	cache      *cachestore.MemoryStore
	journal    *journalstore.MemoryStore
	service    *Service
}

func TestReportSuite(t *testing.T) {
	suite.Run(t, new(ReportSuite))
}

func (s *ReportSuite) SetupTest() {
	s.properties = propertystore.NewMemory()
	s.reviews = reviewstore.NewMemory()
	s.cache = cachestore.NewMemory()
	s.journal = journalstore.NewMemory()
	s.service = NewService(s.properties, s.reviews, s.cache, s.journal)
}

func (s *ReportSuite) addEntity(verdict models.Verdict, reasons ...string) *models.PropertyEntity {
	e, err := models.NewEntity(id.NewGroupID(), reportBase)
	s.Require().NoError(err)
	e.SourceListings = []id.ListingID{id.NewListingID()}
	if verdict != models.VerdictUnclassified {
		e.ApplyClassification(verdict, reasons, reportBase)
	}
	s.Require().NoError(s.properties.Create(context.Background(), e))
	return e
}

func (s *ReportSuite) TestEntityCounts() {
	s.addEntity(models.VerdictUsable)
	s.addEntity(models.VerdictUsable)
	s.addEntity(models.VerdictFlagged, "days_on_market_over_180")
	s.addEntity(models.VerdictDiscarded, "outside_mandate:property_type")
	s.addEntity(models.VerdictDiscarded, "outside_mandate:property_type", "missing_address")

	summary, err := s.service.Build(context.Background())
	s.Require().NoError(err)
	s.Equal(5, summary.Entities.Total)
	s.Equal(2, summary.Entities.Usable)
	s.Equal(1, summary.Entities.Flagged)
	s.Equal(2, summary.Entities.Discarded)
	s.Equal(2, summary.DiscardReasons["outside_mandate:property_type"])
	s.Equal(1, summary.DiscardReasons["missing_address"])
	s.Zero(summary.DiscardReasons["days_on_market_over_180"], "flag reasons stay out of the discard histogram")
}

func (s *ReportSuite) TestConflictAndReviewCounts() {
	e := s.addEntity(models.VerdictUsable)
	e.Conflicts = append(e.Conflicts,
		models.ConflictRecord{Field: id.FieldPrice, Severity: models.SeverityMaterial, RecordedAt: reportBase},
		models.ConflictRecord{Field: id.FieldSizeSqft, Severity: models.SeverityMinor, RecordedAt: reportBase},
		models.ConflictRecord{Field: id.FieldStatus, Severity: models.SeverityMinor, RecordedAt: reportBase},
	)
	s.Require().NoError(s.properties.Update(context.Background(), e))

	item, err := reviewmodels.New(id.NewListingID(), id.PlatformLoopnet,
		[]reviewmodels.Candidate{{GroupID: id.NewGroupID(), Score: 0.77}}, reportBase)
	s.Require().NoError(err)
	s.Require().NoError(s.reviews.Create(context.Background(), item))

	summary, err := s.service.Build(context.Background())
	s.Require().NoError(err)
	s.Equal(1, summary.Conflicts.Material)
	s.Equal(2, summary.Conflicts.Minor)
	s.Equal(1, summary.PendingReviews)
}

func (s *ReportSuite) TestCacheTierBreakdown() {
	ctx := requestcontext.WithTime(context.Background(), reportBase)
	propertyID := id.NewPropertyID()

	fresh := &cachemodels.Entry{
		PropertyID: propertyID, Field: id.FieldPrice, Value: 1_200_000.0,
		Tier: cachemodels.TierVolatile, LastRefresh: reportBase,
		NextRefresh: reportBase.Add(24 * time.Hour),
	}
	expired := &cachemodels.Entry{
		PropertyID: propertyID, Field: id.FieldStatus, Value: "active",
		Tier: cachemodels.TierVolatile, LastRefresh: reportBase.Add(-48 * time.Hour),
		NextRefresh: reportBase.Add(-24 * time.Hour),
	}
	flagged := &cachemodels.Entry{
		PropertyID: propertyID, Field: id.FieldZoning, Value: "C-2",
		Tier: cachemodels.TierSemiMutable, LastRefresh: reportBase,
		NextRefresh: reportBase.Add(90 * 24 * time.Hour),
	}
	flagged.MarkStale("zoning_change")
	immutable := &cachemodels.Entry{
		PropertyID: propertyID, Field: id.FieldAddress, Value: "741 Broad St",
		Tier: cachemodels.TierImmutable, LastRefresh: reportBase,
	}
	for _, e := range []*cachemodels.Entry{fresh, expired, flagged, immutable} {
		s.Require().NoError(s.cache.Upsert(ctx, e))
	}

	summary, err := s.service.Build(ctx)
	s.Require().NoError(err)
	s.Equal(TierCounts{Total: 2, Stale: 1}, summary.Cache[cachemodels.TierVolatile])
	s.Equal(TierCounts{Total: 1, Stale: 1}, summary.Cache[cachemodels.TierSemiMutable])
	s.Equal(TierCounts{Total: 1, Stale: 0}, summary.Cache[cachemodels.TierImmutable])
	s.Equal(reportBase, summary.GeneratedAt)
}

func (s *ReportSuite) TestRefreshRequestCounts() {
	ctx := context.Background()
	propertyID := id.NewPropertyID()
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.journal.Append(ctx, journal.Entry{
			Kind: journal.KindRefreshRequested, At: reportBase, PropertyID: propertyID,
		}))
	}
	s.Require().NoError(s.journal.Append(ctx, journal.Entry{
		Kind: journal.KindRefreshFailed, At: reportBase, PropertyID: propertyID, Detail: "rate_limited",
	}))
	s.Require().NoError(s.journal.Append(ctx, journal.Entry{
		Kind: journal.KindListingReceived, At: reportBase, Platform: id.PlatformCrexi,
	}))

	summary, err := s.service.Build(ctx)
	s.Require().NoError(err)
	s.Equal(3, summary.RefreshRequests.Requested)
	s.Equal(1, summary.RefreshRequests.Failed)
}

func (s *ReportSuite) TestSupersededEntitiesExcluded() {
	live := s.addEntity(models.VerdictUsable)
	gone := s.addEntity(models.VerdictUsable)
	gone.ApplyMerge(live.ID, reportBase)
	s.Require().NoError(s.properties.Update(context.Background(), gone))

	summary, err := s.service.Build(context.Background())
	s.Require().NoError(err)
	s.Equal(1, summary.Entities.Total)
}
