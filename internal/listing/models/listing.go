package models

import (
	"strings"
	"time"

	"platbook/pkg/attrs"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// ExtractionStatus reports how much of a listing the collector managed to
// pull before handing it to the engine.
type ExtractionStatus string

const (
	ExtractionComplete ExtractionStatus = "complete"
	ExtractionPartial  ExtractionStatus = "partial"
	ExtractionFailed   ExtractionStatus = "failed"
)

// Metadata carries collector-side provenance for a raw listing.
type Metadata struct {
	ScraperVersion   string           `json:"scraper_version,omitempty"`
	PageURL          string           `json:"page_url,omitempty"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	ExtractionErrors []string         `json:"extraction_errors,omitempty"`
}

// RawListingRecord is a listing exactly as a collector extracted it.
//
// Invariants:
//   - Platform and NativeID identify the listing on its source platform
//   - (Platform, NativeID, ExtractedAt) is globally unique; re-submitting the
//     same triple is a no-op, not a new record
//   - Fields is never mutated after ingestion; consolidation reads it,
//     conflict records quote it
type RawListingRecord struct {
	ID          id.ListingID   `json:"id"`
	Platform    id.Platform    `json:"platform"`
	NativeID    string         `json:"native_id"`
	ExtractedAt time.Time      `json:"extracted_at"`
	Fields      map[string]any `json:"fields"`
	Metadata    Metadata       `json:"metadata"`
	ReceivedAt  time.Time      `json:"received_at"`
}

// New validates and builds a raw listing record.
func New(platform id.Platform, nativeID string, extractedAt time.Time, fields map[string]any, meta Metadata, receivedAt time.Time) (*RawListingRecord, error) {
	if platform.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "platform is required")
	}
	nativeID = strings.TrimSpace(nativeID)
	if nativeID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "native listing id is required")
	}
	if extractedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "extraction timestamp is required")
	}
	if meta.ExtractionStatus == "" {
		meta.ExtractionStatus = ExtractionComplete
	}
	switch meta.ExtractionStatus {
	case ExtractionComplete, ExtractionPartial, ExtractionFailed:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown extraction status: "+string(meta.ExtractionStatus))
	}
	if fields == nil {
		fields = map[string]any{}
	}

	return &RawListingRecord{
		ID:          id.NewListingID(),
		Platform:    platform,
		NativeID:    nativeID,
		ExtractedAt: extractedAt.UTC(),
		Fields:      fields,
		Metadata:    meta,
		ReceivedAt:  receivedAt.UTC(),
	}, nil
}

// SourceKey is the dedup key for a raw record.
func (r *RawListingRecord) SourceKey() string {
	return string(r.Platform) + "|" + r.NativeID + "|" + r.ExtractedAt.UTC().Format(time.RFC3339Nano)
}

// Typed accessors below fold the per-platform field vocabulary into one
// place. Each returns ok=false when no alias carries a usable value.

func (r *RawListingRecord) Address() (string, bool) {
	return attrs.String(r.Fields, "address_full", "address", "street_address")
}

func (r *RawListingRecord) City() (string, bool) {
	return attrs.String(r.Fields, "address_city", "city")
}

func (r *RawListingRecord) State() (string, bool) {
	s, ok := attrs.String(r.Fields, "address_state", "state")
	return strings.ToUpper(s), ok
}

func (r *RawListingRecord) Zip() (string, bool) {
	return attrs.String(r.Fields, "address_zip", "zip", "zipcode", "postal_code")
}

func (r *RawListingRecord) ParcelID() (string, bool) {
	return attrs.String(r.Fields, "parcel_id", "apn")
}

func (r *RawListingRecord) PropertyType() (id.PropertyType, bool) {
	raw, ok := attrs.String(r.Fields, "property_type", "homeType", "home_type", "asset_class")
	if !ok {
		return "", false
	}
	return id.CanonicalPropertyType(raw), true
}

func (r *RawListingRecord) Price() (float64, bool) {
	return attrs.Float(r.Fields, "unformattedPrice", "price", "asking_price", "list_price")
}

func (r *RawListingRecord) SizeSqft() (float64, bool) {
	return attrs.Float(r.Fields, "area", "square_feet", "sqft", "size_sqft", "building_size")
}

func (r *RawListingRecord) DaysOnMarket() (int, bool) {
	return attrs.Int(r.Fields, "days_on_market", "daysOnZillow", "dom")
}

func (r *RawListingRecord) Status() (string, bool) {
	return attrs.String(r.Fields, "status", "marketingStatus", "homeStatus", "listing_status")
}

func (r *RawListingRecord) BrokerContact() (string, bool) {
	return attrs.String(r.Fields, "broker_contact", "broker", "listing_agent", "agent_name")
}

func (r *RawListingRecord) YearBuilt() (int, bool) {
	return attrs.Int(r.Fields, "year_built", "yearBuilt")
}

func (r *RawListingRecord) Units() (int, bool) {
	return attrs.Int(r.Fields, "units", "unit_count", "number_of_units")
}

// Value returns the raw value backing a canonical field, for consolidation
// and conflict recording.
func (r *RawListingRecord) Value(field id.Field) (any, bool) {
	switch field {
	case id.FieldAddress:
		v, ok := r.Address()
		return v, ok
	case id.FieldCity:
		v, ok := r.City()
		return v, ok
	case id.FieldState:
		v, ok := r.State()
		return v, ok
	case id.FieldZip:
		v, ok := r.Zip()
		return v, ok
	case id.FieldParcelID:
		v, ok := r.ParcelID()
		return v, ok
	case id.FieldPropertyType:
		v, ok := r.PropertyType()
		if !ok {
			return nil, false
		}
		return v.String(), true
	case id.FieldPrice:
		v, ok := r.Price()
		return v, ok
	case id.FieldSizeSqft:
		v, ok := r.SizeSqft()
		return v, ok
	case id.FieldDaysOnMarket:
		v, ok := r.DaysOnMarket()
		return v, ok
	case id.FieldStatus:
		v, ok := r.Status()
		return v, ok
	case id.FieldBrokerContact:
		v, ok := r.BrokerContact()
		return v, ok
	case id.FieldYearBuilt:
		v, ok := r.YearBuilt()
		return v, ok
	case id.FieldUnits:
		v, ok := r.Units()
		return v, ok
	default:
		return nil, false
	}
}
