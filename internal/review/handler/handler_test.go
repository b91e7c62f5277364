package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"platbook/internal/jwttoken"
	listings "platbook/internal/listing/models"
	listingstore "platbook/internal/listing/store"
	"platbook/internal/pipeline"
	"platbook/internal/platform/middleware"
	"platbook/internal/policy"
	propertystore "platbook/internal/property/store"
	"platbook/internal/review"
	reviewstore "platbook/internal/review/store"
	"platbook/internal/shadow"
	shadowstore "platbook/internal/shadow/store"
	id "platbook/pkg/domain"
	"platbook/pkg/requestcontext"
)

var reviewBase = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type ReviewHandlerSuite struct {
	suite.Suite
	router   http.Handler
	pipeline *pipeline.Pipeline
	tokens   *jwttoken.Service
	ctx      context.Context
}

func TestReviewHandlerSuite(t *testing.T) {
	suite.Run(t, new(ReviewHandlerSuite))
}

func (s *ReviewHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.pipeline = pipeline.New(
		listingstore.NewMemory(),
		propertystore.NewMemory(),
		shadow.NewManager(shadowstore.NewMemory()),
		policy.Default(),
		pipeline.WithLogger(logger),
	)
	svc := review.NewService(reviewstore.NewMemory(), s.pipeline, review.WithLogger(logger))
	s.pipeline.AttachReviewQueue(svc)

	s.tokens = jwttoken.NewService("test-signing-key", "platbook")
	s.ctx = requestcontext.WithTime(context.Background(), reviewBase)

	r := chi.NewRouter()
	r.Group(func(g chi.Router) {
		g.Use(middleware.RequireReviewer(jwttoken.NewServiceAdapter(s.tokens), logger))
		New(svc, logger).Register(g)
	})
	s.router = r
}

func (s *ReviewHandlerSuite) token() string {
	token, err := s.tokens.GenerateReviewerToken("analyst@platbook", time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *ReviewHandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// queueTentative submits a base listing and then a variant whose identity
// matches but whose market figures diverge far enough to land in the review
// band.
func (s *ReviewHandlerSuite) queueTentative() (*pipeline.Result, *pipeline.Result) {
	base, err := listings.New(id.PlatformCrexi, "cx-100", reviewBase.Add(-2*time.Hour), map[string]any{
		"address":       "400 Congress Ave",
		"city":          "Austin",
		"state":         "TX",
		"zip":           "78701",
		"property_type": "office",
		"price":         12_000_000.0,
		"square_feet":   40_000.0,
	}, listings.Metadata{}, reviewBase)
	s.Require().NoError(err)
	first, err := s.pipeline.Submit(s.ctx, base)
	s.Require().NoError(err)
	s.Require().Equal(pipeline.DispositionNewProperty, first.Disposition)

	variant, err := listings.New(id.PlatformLoopnet, "ln-200", reviewBase.Add(-time.Hour), map[string]any{
		"address":       "400 Congress Ave",
		"city":          "Austin",
		"state":         "TX",
		"zip":           "78701",
		"property_type": "office",
		"price":         30_000_000.0,
		"square_feet":   15_000.0,
	}, listings.Metadata{}, reviewBase)
	s.Require().NoError(err)
	second, err := s.pipeline.Submit(s.ctx, variant)
	s.Require().NoError(err)
	s.Require().Equal(pipeline.DispositionReview, second.Disposition)

	return first, second
}

func (s *ReviewHandlerSuite) TestEndpointsRequireReviewerToken() {
	rec := s.do(http.MethodGet, "/reviews", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	forged, err := jwttoken.NewService("other-key", "platbook").GenerateReviewerToken("intruder", time.Hour)
	s.Require().NoError(err)
	rec = s.do(http.MethodGet, "/reviews", forged, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "Invalid token")

	expired, err := s.tokens.GenerateReviewerToken("reviewer@platbook", -time.Minute)
	s.Require().NoError(err)
	rec = s.do(http.MethodGet, "/reviews", expired, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "Token expired")
}

func (s *ReviewHandlerSuite) TestListPending() {
	first, second := s.queueTentative()

	rec := s.do(http.MethodGet, "/reviews", s.token(), nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ReviewListResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Require().Len(resp.Reviews, 1)
	item := resp.Reviews[0]
	s.Equal(second.ReviewID.String(), item.ID)
	s.Equal("pending", item.Status)
	s.Equal("loopnet", item.Platform)
	s.Require().NotEmpty(item.Candidates)
	s.Equal(first.GroupID.String(), item.Candidates[0].GroupID)
	s.InDelta(0.75, item.Candidates[0].Score, 0.001)
	s.Empty(item.ResolvedBy)
	s.Nil(item.ResolvedAt)
}

func (s *ReviewHandlerSuite) TestConfirmJoinsCandidateGroup() {
	first, second := s.queueTentative()

	rec := s.do(http.MethodPost, "/reviews/"+second.ReviewID.String()+"/confirm", s.token(),
		map[string]string{"group_id": first.GroupID.String()})
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ReviewResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("confirmed", resp.Status)
	s.Equal(first.GroupID.String(), resp.ResolvedGroup)
	s.Equal("analyst@platbook", resp.ResolvedBy)
	s.Require().NotNil(resp.ResolvedAt)

	pending := s.do(http.MethodGet, "/reviews", s.token(), nil)
	var rest ReviewListResponse
	s.Require().NoError(json.NewDecoder(pending.Body).Decode(&rest))
	s.Empty(rest.Reviews)
}

func (s *ReviewHandlerSuite) TestRejectStartsOwnGroup() {
	first, second := s.queueTentative()

	rec := s.do(http.MethodPost, "/reviews/"+second.ReviewID.String()+"/reject", s.token(), nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ReviewResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("rejected", resp.Status)
	s.NotEmpty(resp.ResolvedGroup)
	s.NotEqual(first.GroupID.String(), resp.ResolvedGroup)
}

func (s *ReviewHandlerSuite) TestConfirmValidation() {
	_, second := s.queueTentative()

	rec := s.do(http.MethodPost, "/reviews/not-a-uuid/confirm", s.token(),
		map[string]string{"group_id": id.NewGroupID().String()})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/reviews/"+second.ReviewID.String()+"/confirm", s.token(),
		map[string]string{"group_id": ""})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/reviews/"+id.NewReviewID().String()+"/confirm", s.token(),
		map[string]string{"group_id": id.NewGroupID().String()})
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/reviews/"+second.ReviewID.String()+"/confirm", s.token(),
		map[string]string{"group_id": id.NewGroupID().String()})
	s.Equal(http.StatusBadRequest, rec.Code)
}
