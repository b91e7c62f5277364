package handler

import (
	"time"

	"platbook/internal/enrich"
)

// EnrichmentResponse is the HTTP response for POST /enrichments.
type EnrichmentResponse struct {
	PropertyID  string    `json:"property_id"`
	Fields      int       `json:"fields"`
	CollectedAt time.Time `json:"collected_at"`
}

// FromRecord acknowledges an applied enrichment delivery.
func FromRecord(rec enrich.EnrichmentRecord) *EnrichmentResponse {
	return &EnrichmentResponse{
		PropertyID:  rec.PropertyID.String(),
		Fields:      len(rec.Fields),
		CollectedAt: rec.CollectedAt,
	}
}
