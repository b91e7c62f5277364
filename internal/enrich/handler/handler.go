package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"platbook/internal/enrich"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/httputil"
	"platbook/pkg/requestcontext"
)

// Service defines the interface for enrichment delivery.
type Service interface {
	Apply(ctx context.Context, rec enrich.EnrichmentRecord) error
}

// Handler accepts enrichment-agent deliveries. Agents authenticate with the
// same API-key scheme as collectors; the key must resolve to the enrichment
// platform, keeping scraper credentials out of the context-data path.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an enrichment handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the enrichment endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/enrichments", h.HandleApply)
}

// HandleApply handles POST /enrichments requests.
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	platform := requestcontext.Platform(ctx)
	if platform.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "agent authentication required"))
		return
	}
	if platform != id.PlatformEnrichment {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "enrichment credentials required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[EnrichmentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec := req.Record(requestcontext.Now(ctx))
	if err := h.service.Apply(ctx, rec); err != nil {
		h.logger.ErrorContext(ctx, "enrichment application failed",
			"request_id", requestID,
			"property_id", rec.PropertyID.String(),
			"fields", len(rec.Fields),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "enrichment applied",
		"request_id", requestID,
		"property_id", rec.PropertyID.String(),
		"fields", len(rec.Fields),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}
