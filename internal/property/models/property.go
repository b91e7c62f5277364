package models

import (
	"time"

	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// Severity grades a recorded conflict. Material conflicts must be surfaced
// and fire a material_discrepancy invalidation; minor ones only flag.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMaterial Severity = "material"
)

// ConflictValue is one source's claim inside a disagreement.
type ConflictValue struct {
	Source     id.Platform `json:"source"`
	Value      any         `json:"value"`
	ObservedAt time.Time   `json:"observed_at"`
}

// ConflictRecord captures one field-level disagreement between sources.
// Records are append-only: a later run emits a new record rather than
// editing an old one.
type ConflictRecord struct {
	Field      id.Field        `json:"field"`
	Values     []ConflictValue `json:"values"`
	Variance   float64         `json:"variance"`
	Severity   Severity        `json:"severity"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// FieldValue is the winning value for one consolidated field, with the
// source that supplied it.
type FieldValue struct {
	Value      any         `json:"value"`
	Source     id.Platform `json:"source"`
	ObservedAt time.Time   `json:"observed_at"`
}

// Verdict is the classifier's decision for one entity snapshot.
type Verdict string

const (
	VerdictUnclassified Verdict = ""
	VerdictUsable       Verdict = "usable"
	VerdictFlagged      Verdict = "flagged"
	VerdictDiscarded    Verdict = "discarded"
)

// Classification pairs a verdict with the reasons that produced it.
type Classification struct {
	Verdict Verdict   `json:"verdict"`
	Reasons []string  `json:"reasons,omitempty"`
	At      time.Time `json:"at"`
}

// Discrepancy is a per-field mismatch between listed data and an official
// record, reported by the verification collaborator.
type Discrepancy struct {
	Field    id.Field `json:"field"`
	Listed   any      `json:"listed"`
	Official any      `json:"official"`
	Severity Severity `json:"severity"`
}

// VerificationBlock holds the county-records verification outcome. Nil on
// the entity until the collaborator responds.
type VerificationBlock struct {
	ParcelID      string        `json:"parcel_id,omitempty"`
	Ownership     string        `json:"ownership,omitempty"`
	TaxAssessment float64       `json:"tax_assessment,omitempty"`
	Zoning        string        `json:"zoning,omitempty"`
	Documents     []string      `json:"documents,omitempty"`
	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
	Confidence    float64       `json:"confidence"`
	VerifiedAt    time.Time     `json:"verified_at"`
}

// EnrichmentBlock holds advisory context data (traffic, environmental,
// demographics, distances). Never feeds classification.
type EnrichmentBlock struct {
	Fields      map[string]any    `json:"fields"`
	Sources     map[string]string `json:"sources,omitempty"`
	CollectedAt time.Time         `json:"collected_at"`
}

// PropertyEntity is one consolidated physical property.
//
// Invariants:
//   - SourceListings is non-empty
//   - every ConflictRecord's Field is present in Fields
//   - discarded entities keep their reasons and source listings; nothing is
//     hard-deleted
//   - a superseded entity (MergedInto set) accepts no further consolidation
type PropertyEntity struct {
	ID                  id.PropertyID           `json:"id"`
	GroupID             id.GroupID              `json:"group_id"`
	SourceListings      []id.ListingID          `json:"source_listings"`
	Fields              map[id.Field]FieldValue `json:"fields"`
	Conflicts           []ConflictRecord        `json:"conflicts,omitempty"`
	Classification      Classification          `json:"classification"`
	Verification        *VerificationBlock      `json:"verification,omitempty"`
	Enrichment          *EnrichmentBlock        `json:"enrichment,omitempty"`
	AmplifiedConfidence bool                    `json:"amplified_confidence"`
	MergedInto          id.PropertyID           `json:"merged_into,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

// NewEntity starts an empty entity for a shadow group. The consolidator
// fills fields and source listings before the first persist.
func NewEntity(groupID id.GroupID, now time.Time) (*PropertyEntity, error) {
	if groupID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "group id is required")
	}
	return &PropertyEntity{
		ID:        id.NewPropertyID(),
		GroupID:   groupID,
		Fields:    make(map[id.Field]FieldValue),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Field returns the consolidated value for a field.
func (e *PropertyEntity) Field(f id.Field) (FieldValue, bool) {
	fv, ok := e.Fields[f]
	return fv, ok
}

// Float coerces a consolidated field to float64. The consolidator stores
// known numeric fields as float64, but values that crossed a JSON boundary
// may carry other numeric types.
func (e *PropertyEntity) Float(f id.Field) (float64, bool) {
	fv, ok := e.Fields[f]
	if !ok {
		return 0, false
	}
	switch v := fv.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func (e *PropertyEntity) str(f id.Field) (string, bool) {
	fv, ok := e.Fields[f]
	if !ok {
		return "", false
	}
	s, ok := fv.Value.(string)
	return s, ok
}

// Typed accessors for the identity fields the classifier and matcher read.

func (e *PropertyEntity) Address() (string, bool)      { return e.str(id.FieldAddress) }
func (e *PropertyEntity) City() (string, bool)         { return e.str(id.FieldCity) }
func (e *PropertyEntity) State() (string, bool)        { return e.str(id.FieldState) }
func (e *PropertyEntity) Zip() (string, bool)          { return e.str(id.FieldZip) }
func (e *PropertyEntity) PropertyType() (string, bool) { return e.str(id.FieldPropertyType) }

// IsSuperseded reports whether this entity was folded into another.
func (e *PropertyEntity) IsSuperseded() bool {
	return !e.MergedInto.IsNil()
}

// IsDiscarded reports whether the latest classification discarded the entity.
func (e *PropertyEntity) IsDiscarded() bool {
	return e.Classification.Verdict == VerdictDiscarded
}

// CanConsolidate rejects writes against superseded entities.
func (e *PropertyEntity) CanConsolidate() error {
	if e.IsSuperseded() {
		return dErrors.New(dErrors.CodeInvariantViolation, "entity was superseded and is read-only")
	}
	return nil
}

// ApplyClassification records the classifier's verdict for this snapshot.
func (e *PropertyEntity) ApplyClassification(verdict Verdict, reasons []string, now time.Time) {
	e.Classification = Classification{Verdict: verdict, Reasons: reasons, At: now}
	e.UpdatedAt = now
}

// ApplyVerification attaches the collaborator's result.
func (e *PropertyEntity) ApplyVerification(block *VerificationBlock, now time.Time) {
	e.Verification = block
	e.UpdatedAt = now
}

// ApplyEnrichment attaches advisory enrichment data.
func (e *PropertyEntity) ApplyEnrichment(block *EnrichmentBlock, now time.Time) {
	e.Enrichment = block
	e.UpdatedAt = now
}

// ApplyAmplifiedConfidence sets the advisory cross-validation flag. Never
// changes classification.
func (e *PropertyEntity) ApplyAmplifiedConfidence(on bool, now time.Time) {
	e.AmplifiedConfidence = on
	e.UpdatedAt = now
}

// ApplyMerge marks this entity superseded by another.
func (e *PropertyEntity) ApplyMerge(into id.PropertyID, now time.Time) {
	e.MergedInto = into
	e.UpdatedAt = now
}

// HasMaterialConflict reports whether any recorded conflict is material,
// optionally restricted to identity-defining fields.
func (e *PropertyEntity) HasMaterialConflict(identityOnly bool) bool {
	for _, c := range e.Conflicts {
		if c.Severity != SeverityMaterial {
			continue
		}
		if identityOnly && !c.Field.IsIdentity() {
			continue
		}
		return true
	}
	return false
}

// MinorConflictCount counts recorded minor conflicts.
func (e *PropertyEntity) MinorConflictCount() int {
	n := 0
	for _, c := range e.Conflicts {
		if c.Severity == SeverityMinor {
			n++
		}
	}
	return n
}
