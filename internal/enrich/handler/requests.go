package handler

import (
	"time"

	"platbook/internal/enrich"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// EnrichmentRequest is the HTTP request body for POST /enrichments.
type EnrichmentRequest struct {
	PropertyID  string            `json:"property_id"`
	Fields      map[string]any    `json:"fields"`
	Sources     map[string]string `json:"sources"`
	CollectedAt time.Time         `json:"collected_at"`

	parsedPropertyID id.PropertyID
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *EnrichmentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.PropertyID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "property_id is required")
	}
	propertyID, err := id.ParsePropertyID(r.PropertyID)
	if err != nil {
		return err
	}
	r.parsedPropertyID = propertyID

	if len(r.Fields) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one field is required")
	}
	return nil
}

// Record builds the domain record, stamping the request time when the agent
// left collected_at unset.
func (r *EnrichmentRequest) Record(now time.Time) enrich.EnrichmentRecord {
	collectedAt := r.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = now
	}
	return enrich.EnrichmentRecord{
		PropertyID:  r.parsedPropertyID,
		Fields:      r.Fields,
		Sources:     r.Sources,
		CollectedAt: collectedAt,
	}
}
