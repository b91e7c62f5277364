package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"platbook/internal/review/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/httputil"
	"platbook/pkg/requestcontext"
)

// Service defines the interface for manual review operations.
type Service interface {
	ListPending(ctx context.Context) ([]*models.ReviewItem, error)
	Confirm(ctx context.Context, reviewID id.ReviewID, groupID id.GroupID, reviewer string) (*models.ReviewItem, error)
	Reject(ctx context.Context, reviewID id.ReviewID, reviewer string) (*models.ReviewItem, error)
}

// Handler wires manual review endpoints to the review service. The reviewer
// middleware has already validated the JWT and put the reviewer subject in
// the request context.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a review handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts review endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/reviews", h.HandleListPending)
	r.Post("/reviews/{reviewID}/confirm", h.HandleConfirm)
	r.Post("/reviews/{reviewID}/reject", h.HandleReject)
}

// HandleListPending handles GET /reviews requests.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.service.ListPending(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "pending review listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromItems(items))
}

// HandleConfirm handles POST /reviews/{reviewID}/confirm requests.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	reviewer, err := reviewerFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reviewID, err := id.ParseReviewID(chi.URLParam(r, "reviewID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[ConfirmReviewRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	item, err := h.service.Confirm(ctx, reviewID, req.ParsedGroupID(), reviewer)
	if err != nil {
		h.logger.ErrorContext(ctx, "review confirmation failed",
			"request_id", requestID,
			"review_id", reviewID.String(),
			"reviewer", reviewer,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "review confirmed",
		"request_id", requestID,
		"review_id", reviewID.String(),
		"reviewer", reviewer,
		"group_id", item.ResolvedGroup.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromItem(item))
}

// HandleReject handles POST /reviews/{reviewID}/reject requests.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	reviewer, err := reviewerFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reviewID, err := id.ParseReviewID(chi.URLParam(r, "reviewID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	item, err := h.service.Reject(ctx, reviewID, reviewer)
	if err != nil {
		h.logger.ErrorContext(ctx, "review rejection failed",
			"request_id", requestID,
			"review_id", reviewID.String(),
			"reviewer", reviewer,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "review rejected",
		"request_id", requestID,
		"review_id", reviewID.String(),
		"reviewer", reviewer,
		"group_id", item.ResolvedGroup.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromItem(item))
}

func reviewerFrom(ctx context.Context) (string, error) {
	reviewer := requestcontext.Reviewer(ctx)
	if reviewer == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "reviewer authentication required")
	}
	return reviewer, nil
}
