package handler

import (
	"strings"
	"time"

	listings "platbook/internal/listing/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// SubmitListingRequest is the HTTP request body for POST /listings. The
// platform never appears in the body: it comes from the authenticated
// collector key, so one collector cannot submit under another's identity.
type SubmitListingRequest struct {
	NativeID    string          `json:"native_id"`
	ExtractedAt time.Time       `json:"extracted_at"`
	Fields      map[string]any  `json:"fields"`
	Metadata    MetadataRequest `json:"metadata"`
}

// MetadataRequest carries collector-side provenance for one record.
type MetadataRequest struct {
	ScraperVersion   string   `json:"scraper_version"`
	PageURL          string   `json:"page_url"`
	ExtractionStatus string   `json:"extraction_status"`
	ExtractionErrors []string `json:"extraction_errors"`
}

// Validate validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *SubmitListingRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.NativeID = strings.TrimSpace(r.NativeID)
	if r.NativeID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "native_id is required")
	}
	if len(r.NativeID) > 256 {
		return dErrors.New(dErrors.CodeInvalidInput, "native_id must be at most 256 characters")
	}
	if r.ExtractedAt.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "extracted_at is required")
	}
	return nil
}

// Record builds the domain record for the authenticated platform. Full
// validation, including the extraction status vocabulary, lives in the
// model constructor.
func (r *SubmitListingRequest) Record(platform id.Platform, now time.Time) (*listings.RawListingRecord, error) {
	meta := listings.Metadata{
		ScraperVersion:   r.Metadata.ScraperVersion,
		PageURL:          r.Metadata.PageURL,
		ExtractionStatus: listings.ExtractionStatus(r.Metadata.ExtractionStatus),
		ExtractionErrors: r.Metadata.ExtractionErrors,
	}
	return listings.New(platform, r.NativeID, r.ExtractedAt, r.Fields, meta, now)
}

// SubmitBatchRequest is the HTTP request body for POST /listings/batch.
type SubmitBatchRequest struct {
	Records []SubmitListingRequest `json:"records"`
}

// Validate checks batch shape only. Per-record problems surface as per-item
// errors so one bad record cannot sink its neighbors.
func (r *SubmitBatchRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Records) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "records is required")
	}
	return nil
}
