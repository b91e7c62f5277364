package handler

import (
	"time"

	cachemodels "platbook/internal/cache/models"
	"platbook/internal/property/models"
	id "platbook/pkg/domain"
)

// PropertyResponse is the full consolidated record for GET /properties/{id}.
type PropertyResponse struct {
	ID                  string                    `json:"id"`
	GroupID             string                    `json:"group_id"`
	Fields              map[string]FieldResponse  `json:"fields"`
	SourceListings      []SourceListingResponse   `json:"source_listings"`
	Conflicts           []models.ConflictRecord   `json:"conflicts"`
	Classification      models.Classification     `json:"classification"`
	Verification        *models.VerificationBlock `json:"verification,omitempty"`
	Enrichment          *models.EnrichmentBlock   `json:"enrichment,omitempty"`
	AmplifiedConfidence bool                      `json:"amplified_confidence"`
	MergedInto          string                    `json:"merged_into,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

// FieldResponse is one consolidated field with its provenance and, when the
// cache layer tracks it, its freshness metadata.
type FieldResponse struct {
	Value      any                 `json:"value"`
	Source     string              `json:"source"`
	ObservedAt time.Time           `json:"observed_at"`
	Cache      *CacheEntryResponse `json:"cache,omitempty"`
}

// CacheEntryResponse is the freshness metadata for one field.
type CacheEntryResponse struct {
	Tier        string     `json:"tier"`
	LastRefresh time.Time  `json:"last_refresh"`
	NextRefresh *time.Time `json:"next_refresh,omitempty"`
	Stale       bool       `json:"stale"`
	StaleReason string     `json:"stale_reason,omitempty"`
}

// SourceListingResponse identifies one source listing behind an entity.
type SourceListingResponse struct {
	ListingID   string     `json:"listing_id"`
	Platform    string     `json:"platform,omitempty"`
	NativeID    string     `json:"native_id,omitempty"`
	ExtractedAt *time.Time `json:"extracted_at,omitempty"`
}

// FromEntity converts a property entity to the full HTTP record. When
// includeStale is false, volatile fields whose cache entry went stale are
// omitted so mandate consumers never act on known-suspect market data.
func FromEntity(e *models.PropertyEntity, sources []SourceListingResponse, entries []*cachemodels.Entry, includeStale bool) *PropertyResponse {
	byField := make(map[id.Field]*cachemodels.Entry, len(entries))
	for _, entry := range entries {
		byField[entry.Field] = entry
	}

	fields := make(map[string]FieldResponse, len(e.Fields))
	for f, fv := range e.Fields {
		entry := byField[f]
		if !includeStale && entry != nil && entry.Stale && entry.Tier == cachemodels.TierVolatile {
			continue
		}
		fields[string(f)] = FieldResponse{
			Value:      fv.Value,
			Source:     string(fv.Source),
			ObservedAt: fv.ObservedAt,
			Cache:      fromCacheEntry(entry),
		}
	}

	resp := &PropertyResponse{
		ID:                  e.ID.String(),
		GroupID:             e.GroupID.String(),
		Fields:              fields,
		SourceListings:      sources,
		Conflicts:           e.Conflicts,
		Classification:      e.Classification,
		Verification:        e.Verification,
		Enrichment:          e.Enrichment,
		AmplifiedConfidence: e.AmplifiedConfidence,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
	if e.IsSuperseded() {
		resp.MergedInto = e.MergedInto.String()
	}
	if resp.Conflicts == nil {
		resp.Conflicts = []models.ConflictRecord{}
	}
	return resp
}

func fromCacheEntry(entry *cachemodels.Entry) *CacheEntryResponse {
	if entry == nil {
		return nil
	}
	out := &CacheEntryResponse{
		Tier:        string(entry.Tier),
		LastRefresh: entry.LastRefresh,
		Stale:       entry.Stale,
		StaleReason: entry.StaleReason,
	}
	if !entry.NextRefresh.IsZero() {
		next := entry.NextRefresh
		out.NextRefresh = &next
	}
	return out
}

// PropertyListResponse is one page of GET /properties.
type PropertyListResponse struct {
	Properties []PropertySummaryResponse `json:"properties"`
	NextCursor string                    `json:"next_cursor,omitempty"`
}

// PropertySummaryResponse is the listing-page projection of an entity.
type PropertySummaryResponse struct {
	ID             string    `json:"id"`
	Address        string    `json:"address,omitempty"`
	City           string    `json:"city,omitempty"`
	State          string    `json:"state,omitempty"`
	PropertyType   string    `json:"property_type,omitempty"`
	Price          float64   `json:"price,omitempty"`
	SizeSqft       float64   `json:"size_sqft,omitempty"`
	Classification string    `json:"classification"`
	SourceCount    int       `json:"source_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FromPage converts one store page to the HTTP listing.
func FromPage(page []*models.PropertyEntity, next string) *PropertyListResponse {
	resp := &PropertyListResponse{
		Properties: make([]PropertySummaryResponse, 0, len(page)),
		NextCursor: next,
	}
	for _, e := range page {
		row := PropertySummaryResponse{
			ID:             e.ID.String(),
			Classification: string(e.Classification.Verdict),
			SourceCount:    len(e.SourceListings),
			UpdatedAt:      e.UpdatedAt,
		}
		row.Address, _ = e.Address()
		row.City, _ = e.City()
		row.State, _ = e.State()
		row.PropertyType, _ = e.PropertyType()
		row.Price, _ = e.Float(id.FieldPrice)
		row.SizeSqft, _ = e.Float(id.FieldSizeSqft)
		resp.Properties = append(resp.Properties, row)
	}
	return resp
}

// ConflictsResponse is the HTTP response for GET /properties/{id}/conflicts.
type ConflictsResponse struct {
	PropertyID string                  `json:"property_id"`
	Conflicts  []models.ConflictRecord `json:"conflicts"`
}

// FromConflicts projects an entity's conflict history.
func FromConflicts(e *models.PropertyEntity) *ConflictsResponse {
	conflicts := e.Conflicts
	if conflicts == nil {
		conflicts = []models.ConflictRecord{}
	}
	return &ConflictsResponse{PropertyID: e.ID.String(), Conflicts: conflicts}
}

// CacheEntriesResponse is the HTTP response for GET /properties/{id}/cache.
type CacheEntriesResponse struct {
	PropertyID string              `json:"property_id"`
	Entries    []*cachemodels.Entry `json:"entries"`
}

// FromCacheEntries wraps a property's cache snapshot.
func FromCacheEntries(propertyID id.PropertyID, entries []*cachemodels.Entry) *CacheEntriesResponse {
	if entries == nil {
		entries = []*cachemodels.Entry{}
	}
	return &CacheEntriesResponse{PropertyID: propertyID.String(), Entries: entries}
}
