package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	listings "platbook/internal/listing/models"
	"platbook/internal/pipeline"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/httputil"
	"platbook/pkg/requestcontext"
)

// Service defines the interface for listing ingestion.
type Service interface {
	Submit(ctx context.Context, rec *listings.RawListingRecord) (*pipeline.Result, error)
	SubmitBatch(ctx context.Context, recs []*listings.RawListingRecord) ([]pipeline.BatchItem, error)
}

// Handler wires listing ingestion endpoints to the resolution pipeline. The
// collector middleware has already resolved the API key to a platform by the
// time these handlers run.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a listing handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts listing endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/listings", h.HandleSubmit)
	r.Post("/listings/batch", h.HandleSubmitBatch)
}

// HandleSubmit handles POST /listings requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	platform := requestcontext.Platform(ctx)
	if platform.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "collector authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[SubmitListingRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := req.Record(platform, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Submit(ctx, rec)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing submission failed",
			"request_id", requestID,
			"platform", platform,
			"native_id", req.NativeID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "listing submitted",
		"request_id", requestID,
		"platform", platform,
		"native_id", req.NativeID,
		"disposition", result.Disposition,
		"duplicate", result.Duplicate,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusAccepted, FromResult(result))
}

// HandleSubmitBatch handles POST /listings/batch requests. Items fail
// individually: a malformed record rejects that item, not the batch.
func (h *Handler) HandleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	platform := requestcontext.Platform(ctx)
	if platform.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "collector authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[SubmitBatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	now := requestcontext.Now(ctx)
	recs := make([]*listings.RawListingRecord, len(req.Records))
	buildErrs := make([]error, len(req.Records))
	for i := range req.Records {
		if err := req.Records[i].Validate(); err != nil {
			buildErrs[i] = err
			continue
		}
		recs[i], buildErrs[i] = req.Records[i].Record(platform, now)
	}

	items, err := h.service.SubmitBatch(ctx, recs)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing batch rejected",
			"request_id", requestID,
			"platform", platform,
			"records", len(req.Records),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := FromBatch(items, buildErrs)
	h.logger.InfoContext(ctx, "listing batch submitted",
		"request_id", requestID,
		"platform", platform,
		"records", len(req.Records),
		"accepted", resp.Accepted,
		"rejected", resp.Rejected,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusAccepted, resp)
}
