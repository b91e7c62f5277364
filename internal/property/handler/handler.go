package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	cachemodels "platbook/internal/cache/models"
	listings "platbook/internal/listing/models"
	"platbook/internal/property/models"
	"platbook/internal/property/store"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/httputil"
	"platbook/pkg/requestcontext"
)

// maxPageSize caps the listing page size regardless of what the caller asks
// for.
const maxPageSize = 200

// PropertyStore defines what the read side needs from entity persistence.
type PropertyStore interface {
	FindByID(ctx context.Context, propertyID id.PropertyID) (*models.PropertyEntity, error)
	ListPage(ctx context.Context, q store.ListQuery) ([]*models.PropertyEntity, string, error)
}

// ListingSource resolves source listing ids to their raw records.
type ListingSource interface {
	FindByID(ctx context.Context, listingID id.ListingID) (*listings.RawListingRecord, error)
}

// CacheReader exposes per-field freshness metadata.
type CacheReader interface {
	Snapshot(ctx context.Context, propertyID id.PropertyID) ([]*cachemodels.Entry, error)
}

// Handler serves consolidated property records, the sole artifact exposed to
// downstream consumers.
type Handler struct {
	properties PropertyStore
	listings   ListingSource
	cache      CacheReader
	logger     *slog.Logger
}

// New constructs a property handler with its dependencies.
func New(properties PropertyStore, listings ListingSource, cache CacheReader, logger *slog.Logger) *Handler {
	return &Handler{
		properties: properties,
		listings:   listings,
		cache:      cache,
		logger:     logger,
	}
}

// Register mounts property endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/properties", h.HandleList)
	r.Get("/properties/{propertyID}", h.HandleGet)
	r.Get("/properties/{propertyID}/conflicts", h.HandleConflicts)
	r.Get("/properties/{propertyID}/cache", h.HandleCache)
}

// HandleGet handles GET /properties/{propertyID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	includeStale := true
	if raw := r.URL.Query().Get("include_stale"); raw != "" {
		includeStale, err = strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "include_stale must be a boolean"))
			return
		}
	}

	e, err := h.properties.FindByID(ctx, propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "property served",
		"request_id", requestID,
		"property_id", propertyID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromEntity(e, h.resolveSources(ctx, e), h.snapshot(ctx, e.ID), includeStale))
}

// HandleList handles GET /properties requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q, err := listQueryFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, next, err := h.properties.ListPage(ctx, q)
	if err != nil {
		h.logger.ErrorContext(ctx, "property listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list properties"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromPage(page, next))
}

// HandleConflicts handles GET /properties/{propertyID}/conflicts requests.
// Conflict history stays readable on superseded and discarded entities.
func (h *Handler) HandleConflicts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	e, err := h.properties.FindByID(ctx, propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromConflicts(e))
}

// HandleCache handles GET /properties/{propertyID}/cache requests.
func (h *Handler) HandleCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if _, err := h.properties.FindByID(ctx, propertyID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.cache.Snapshot(ctx, propertyID)
	if err != nil {
		h.logger.ErrorContext(ctx, "cache snapshot failed",
			"request_id", requestcontext.RequestID(ctx),
			"property_id", propertyID.String(),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read cache entries"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromCacheEntries(propertyID, entries))
}

// resolveSources loads the raw records behind an entity's source listings. A
// listing the store cannot find degrades to an id-only row rather than
// failing the read.
func (h *Handler) resolveSources(ctx context.Context, e *models.PropertyEntity) []SourceListingResponse {
	out := make([]SourceListingResponse, 0, len(e.SourceListings))
	for _, listingID := range e.SourceListings {
		row := SourceListingResponse{ListingID: listingID.String()}
		if rec, err := h.listings.FindByID(ctx, listingID); err == nil {
			row.Platform = string(rec.Platform)
			row.NativeID = rec.NativeID
			extractedAt := rec.ExtractedAt
			row.ExtractedAt = &extractedAt
		}
		out = append(out, row)
	}
	return out
}

// snapshot reads cache metadata for a property, degrading to none on error.
func (h *Handler) snapshot(ctx context.Context, propertyID id.PropertyID) []*cachemodels.Entry {
	entries, err := h.cache.Snapshot(ctx, propertyID)
	if err != nil {
		h.logger.WarnContext(ctx, "cache snapshot unavailable for property read",
			"property_id", propertyID.String(),
			"error", err,
		)
		return nil
	}
	return entries
}

func listQueryFrom(r *http.Request) (store.ListQuery, error) {
	params := r.URL.Query()
	q := store.ListQuery{
		Verdict:      params.Get("classification"),
		State:        params.Get("state"),
		City:         params.Get("city"),
		PropertyType: params.Get("property_type"),
		Cursor:       params.Get("cursor"),
	}

	switch models.Verdict(q.Verdict) {
	case models.VerdictUnclassified, models.VerdictUsable, models.VerdictFlagged, models.VerdictDiscarded:
	default:
		return q, dErrors.New(dErrors.CodeBadRequest, "unknown classification: "+q.Verdict)
	}
	if q.Cursor != "" {
		if _, err := id.ParsePropertyID(q.Cursor); err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "cursor is not a valid property id")
		}
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return q, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
		q.Limit = limit
	}
	return q, nil
}
