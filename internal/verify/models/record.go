// Package models defines the wire records exchanged with the county-records
// verification collaborator.
package models

import (
	"time"

	properties "platbook/internal/property/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// VerificationRequest asks the collaborator to pull county records for one
// consolidated property. Published to the verification requests topic.
type VerificationRequest struct {
	PropertyID  id.PropertyID `json:"property_id"`
	Address     string        `json:"address"`
	City        string        `json:"city"`
	State       string        `json:"state"`
	Zip         string        `json:"zip"`
	ParcelHint  string        `json:"parcel_hint,omitempty"`
	RequestedAt time.Time     `json:"requested_at"`
}

// Status values reported by the collaborator.
const (
	StatusVerified = "verified"
	StatusPartial  = "partial"
	StatusNotFound = "not_found"
)

// VerificationRecord is the collaborator's answer on the results topic. A
// not_found status still carries a record so the attempt is on the entity.
type VerificationRecord struct {
	PropertyID    id.PropertyID            `json:"property_id"`
	Status        string                   `json:"status"`
	ParcelID      string                   `json:"parcel_id,omitempty"`
	Ownership     string                   `json:"ownership,omitempty"`
	TaxAssessment float64                  `json:"tax_assessment,omitempty"`
	Zoning        string                   `json:"zoning,omitempty"`
	Documents     []string                 `json:"documents,omitempty"`
	Discrepancies []properties.Discrepancy `json:"discrepancies,omitempty"`
	Confidence    float64                  `json:"confidence"`
	VerifiedAt    time.Time                `json:"verified_at"`
}

func (r VerificationRecord) Validate() error {
	if r.PropertyID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "property id is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "confidence must be in [0,1]")
	}
	if r.VerifiedAt.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "verified_at is required")
	}
	return nil
}

// Block converts the wire record into the entity's verification block.
func (r VerificationRecord) Block() *properties.VerificationBlock {
	return &properties.VerificationBlock{
		ParcelID:      r.ParcelID,
		Ownership:     r.Ownership,
		TaxAssessment: r.TaxAssessment,
		Zoning:        r.Zoning,
		Documents:     append([]string(nil), r.Documents...),
		Discrepancies: append([]properties.Discrepancy(nil), r.Discrepancies...),
		Confidence:    r.Confidence,
		VerifiedAt:    r.VerifiedAt,
	}
}

// MaterialFields lists the fields named in material discrepancies.
func (r VerificationRecord) MaterialFields() []id.Field {
	var out []id.Field
	for _, d := range r.Discrepancies {
		if d.Severity != properties.SeverityMaterial {
			continue
		}
		found := false
		for _, f := range out {
			if f == d.Field {
				found = true
				break
			}
		}
		if !found {
			out = append(out, d.Field)
		}
	}
	return out
}

// HasMaterialDiscrepancy reports whether any discrepancy is material.
func (r VerificationRecord) HasMaterialDiscrepancy() bool {
	for _, d := range r.Discrepancies {
		if d.Severity == properties.SeverityMaterial {
			return true
		}
	}
	return false
}
