package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"platbook/internal/cache/models"
	id "platbook/pkg/domain"
	"platbook/pkg/platform/httputil"
	"platbook/pkg/requestcontext"
)

// Invalidator defines what the events endpoint needs from the cache layer.
type Invalidator interface {
	HandleEvent(ctx context.Context, ev models.InvalidationEvent) ([]id.Field, error)
}

// Handler accepts operator-injected invalidation events. The body schema
// matches the Kafka invalidation topic, so ops can replay an event straight
// from a consumer log.
type Handler struct {
	cache  Invalidator
	logger *slog.Logger
}

// New constructs an events handler with its dependencies.
func New(cache Invalidator, logger *slog.Logger) *Handler {
	return &Handler{
		cache:  cache,
		logger: logger,
	}
}

// Register mounts the events endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/events", h.HandleEvent)
}

// HandleEvent handles POST /events requests.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[InvalidationEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ev := req.Event(requestcontext.Now(ctx))
	marked, err := h.cache.HandleEvent(ctx, ev)
	if err != nil {
		h.logger.ErrorContext(ctx, "invalidation event failed",
			"request_id", requestID,
			"event_id", ev.EventID.String(),
			"kind", string(ev.Kind),
			"property_id", ev.PropertyID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "invalidation event handled",
		"request_id", requestID,
		"event_id", ev.EventID.String(),
		"kind", string(ev.Kind),
		"property_id", ev.PropertyID.String(),
		"invalidated", len(marked),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusAccepted, FromEvent(ev, marked))
}
