package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"platbook/internal/report"
	"platbook/pkg/platform/httputil"
	"platbook/pkg/requestcontext"
)

// Service defines the interface for summary reporting.
type Service interface {
	Build(ctx context.Context) (*report.Summary, error)
}

// Handler serves the operational summary to admin callers. The summary is
// built on demand from the live stores, never from a cached snapshot.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a report handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the report endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/reports/summary", h.HandleSummary)
}

// HandleSummary handles GET /reports/summary requests.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	summary, err := h.service.Build(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "summary build failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "summary served",
		"request_id", requestID,
		"entities", summary.Entities.Total,
		"pending_reviews", summary.PendingReviews,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, summary)
}
