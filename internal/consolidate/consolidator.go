// Package consolidate folds a shadow group's sources into one property
// entity: per-field precedence, conflict detection, derived metrics.
package consolidate

import (
	"slices"
	"strings"
	"time"

	"platbook/internal/address"
	listings "platbook/internal/listing/models"
	"platbook/internal/policy"
	"platbook/internal/property/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// derivedSource marks field values the engine computed rather than observed.
const derivedSource = id.Platform("derived")

// listingFields is the canonical field set extracted from raw listings, in
// the order fields are evaluated. The order is fixed so repeated runs append
// conflicts identically.
var listingFields = []id.Field{
	id.FieldAddress,
	id.FieldCity,
	id.FieldState,
	id.FieldZip,
	id.FieldParcelID,
	id.FieldPropertyType,
	id.FieldPrice,
	id.FieldStatus,
	id.FieldDaysOnMarket,
	id.FieldBrokerContact,
	id.FieldSizeSqft,
	id.FieldYearBuilt,
	id.FieldUnits,
}

// verificationFields extends the universe when a verification source joins.
var verificationFields = []id.Field{
	id.FieldOwnership,
	id.FieldTaxAssessment,
	id.FieldZoning,
}

// enrichmentFields extend it when an enrichment source joins. Only the
// canonical context fields are consolidated; everything else in an
// enrichment block stays metadata.
var enrichmentFields = []id.Field{
	id.FieldEnvironmental,
	id.FieldDemographics,
	id.FieldDistances,
}

// Source is one contribution to consolidation: a raw listing or a
// verification record flattened to canonical field values.
type Source struct {
	Platform   id.Platform
	ListingID  id.ListingID // zero for non-listing sources
	ObservedAt time.Time
	Values     map[id.Field]any
}

// FromListing flattens a raw listing into a consolidation source. Integer
// fields are widened to float64 so values survive a JSON round trip
// unchanged.
func FromListing(rec *listings.RawListingRecord) Source {
	values := make(map[id.Field]any)
	for _, f := range listingFields {
		v, ok := rec.Value(f)
		if !ok {
			continue
		}
		values[f] = widen(v)
	}
	return Source{
		Platform:   rec.Platform,
		ListingID:  rec.ID,
		ObservedAt: rec.ExtractedAt,
		Values:     values,
	}
}

// FromVerification flattens a verification block into a consolidation
// source. County records carry the highest trust rank, so these values win
// every static-field tie.
func FromVerification(block *models.VerificationBlock) Source {
	values := make(map[id.Field]any)
	if block.ParcelID != "" {
		values[id.FieldParcelID] = block.ParcelID
	}
	if block.Ownership != "" {
		values[id.FieldOwnership] = block.Ownership
	}
	if block.TaxAssessment > 0 {
		values[id.FieldTaxAssessment] = block.TaxAssessment
	}
	if block.Zoning != "" {
		values[id.FieldZoning] = block.Zoning
	}
	return Source{
		Platform:   id.PlatformCountyRecords,
		ObservedAt: block.VerifiedAt,
		Values:     values,
	}
}

// FromEnrichment lifts the canonical context fields out of an enrichment
// block so they survive field rebuilds.
func FromEnrichment(block *models.EnrichmentBlock) Source {
	values := make(map[id.Field]any)
	for _, f := range enrichmentFields {
		if v, ok := block.Fields[f.String()]; ok && !isEmpty(v) {
			values[f] = widen(v)
		}
	}
	return Source{
		Platform:   id.PlatformEnrichment,
		ObservedAt: block.CollectedAt,
		Values:     values,
	}
}

// Outcome reports what one consolidation run changed.
type Outcome struct {
	NewConflicts []models.ConflictRecord
	Material     bool // at least one new conflict is material
}

type Consolidator struct {
	policy policy.Policy
}

func New(pol policy.Policy) *Consolidator {
	return &Consolidator{policy: pol}
}

// Consolidate rebuilds an entity's field values from its sources.
//
// Precedence per field: volatile fields take the most recent source; static
// fields take the most complete value. Ties fall to platform trust rank,
// then recency, then platform name so the result never depends on input
// order. Disagreements between sources append ConflictRecords; an identical
// re-run appends nothing.
func (c *Consolidator) Consolidate(e *models.PropertyEntity, sources []Source, now time.Time) (Outcome, error) {
	var out Outcome

	if err := e.CanConsolidate(); err != nil {
		return out, err
	}
	if len(sources) == 0 {
		return out, dErrors.New(dErrors.CodeInvalidInput, "at least one source is required")
	}

	e.SourceListings = listingIDs(sources)
	if len(e.SourceListings) == 0 {
		return out, dErrors.New(dErrors.CodeInvalidInput, "at least one listing source is required")
	}

	e.Fields = make(map[id.Field]models.FieldValue)
	for _, f := range allFields(sources) {
		candidates := candidatesFor(f, sources)
		if len(candidates) == 0 {
			continue
		}
		winner := c.pickWinner(f, candidates)
		e.Fields[f] = models.FieldValue{
			Value:      winner.Values[f],
			Source:     winner.Platform,
			ObservedAt: winner.ObservedAt,
		}

		if conflict, ok := c.detectConflict(f, candidates, now); ok {
			if !hasConflict(e.Conflicts, conflict) {
				e.Conflicts = append(e.Conflicts, conflict)
				out.NewConflicts = append(out.NewConflicts, conflict)
				if conflict.Severity == models.SeverityMaterial {
					out.Material = true
				}
			}
		}
	}

	c.derivePricePerSqft(e)
	e.UpdatedAt = now
	return out, nil
}

func listingIDs(sources []Source) []id.ListingID {
	var ids []id.ListingID
	for _, s := range sources {
		if s.ListingID.IsNil() {
			continue
		}
		if !slices.Contains(ids, s.ListingID) {
			ids = append(ids, s.ListingID)
		}
	}
	return ids
}

func allFields(sources []Source) []id.Field {
	fields := slices.Clone(listingFields)
	for _, extra := range [][]id.Field{verificationFields, enrichmentFields} {
		for _, f := range extra {
			for _, s := range sources {
				if _, ok := s.Values[f]; ok {
					fields = append(fields, f)
					break
				}
			}
		}
	}
	return fields
}

func candidatesFor(f id.Field, sources []Source) []Source {
	var out []Source
	for _, s := range sources {
		if v, ok := s.Values[f]; ok && !isEmpty(v) {
			out = append(out, s)
		}
	}
	return out
}

// pickWinner orders candidates by the precedence rules for the field and
// returns the first. Sorting is total, so the winner is deterministic.
func (c *Consolidator) pickWinner(f id.Field, candidates []Source) Source {
	ordered := slices.Clone(candidates)
	volatile := f.IsVolatile()
	slices.SortStableFunc(ordered, func(a, b Source) int {
		if volatile {
			if cmp := b.ObservedAt.Compare(a.ObservedAt); cmp != 0 {
				return cmp
			}
			if cmp := c.policy.TrustRank(b.Platform) - c.policy.TrustRank(a.Platform); cmp != 0 {
				return cmp
			}
		} else {
			if cmp := completeness(f, b.Values[f]) - completeness(f, a.Values[f]); cmp != 0 {
				return cmp
			}
			if cmp := c.policy.TrustRank(b.Platform) - c.policy.TrustRank(a.Platform); cmp != 0 {
				return cmp
			}
			if cmp := b.ObservedAt.Compare(a.ObservedAt); cmp != 0 {
				return cmp
			}
		}
		return strings.Compare(a.Platform.String(), b.Platform.String())
	})
	return ordered[0]
}

// completeness counts the usable sub-fields inside one value. Addresses
// grade by how many components parse out of the text; everything else is
// present-or-not.
func completeness(f id.Field, v any) int {
	s, ok := v.(string)
	if !ok {
		return 1
	}
	if f != id.FieldAddress {
		if strings.TrimSpace(s) == "" {
			return 0
		}
		return 1
	}
	comps := address.Extract(s)
	n := 0
	for _, part := range []string{comps.Street, comps.City, comps.State, comps.Zip} {
		if part != "" {
			n++
		}
	}
	return n
}

func (c *Consolidator) detectConflict(f id.Field, candidates []Source, now time.Time) (models.ConflictRecord, bool) {
	if len(candidates) < 2 {
		return models.ConflictRecord{}, false
	}

	values := make([]models.ConflictValue, len(candidates))
	for i, s := range candidates {
		values[i] = models.ConflictValue{
			Source:     s.Platform,
			Value:      s.Values[f],
			ObservedAt: s.ObservedAt,
		}
	}

	if isNumericField(f) {
		lo, hi := numericRange(values)
		if hi == lo {
			return models.ConflictRecord{}, false
		}
		varc := 0.0
		if hi > 0 {
			varc = (hi - lo) / hi
		}
		return models.ConflictRecord{
			Field:      f,
			Values:     values,
			Variance:   varc,
			Severity:   c.numericSeverity(f, varc),
			RecordedAt: now,
		}, true
	}

	if !stringsDisagree(f, values) {
		return models.ConflictRecord{}, false
	}
	return models.ConflictRecord{
		Field:      f,
		Values:     values,
		Severity:   c.stringSeverity(f, values),
		RecordedAt: now,
	}, true
}

func (c *Consolidator) numericSeverity(f id.Field, variance float64) models.Severity {
	switch f {
	case id.FieldPrice, id.FieldTaxAssessment:
		if variance > c.policy.Conflicts.MaterialPriceVariance {
			return models.SeverityMaterial
		}
	case id.FieldSizeSqft:
		if variance > c.policy.Conflicts.MaterialSizeVariance {
			return models.SeverityMaterial
		}
	}
	return models.SeverityMinor
}

// stringSeverity grades a non-numeric disagreement. An identity field where
// the highest-trust sources themselves disagree has no resolvable
// precedence, which makes the conflict material; a clear trust winner keeps
// it minor.
func (c *Consolidator) stringSeverity(f id.Field, values []models.ConflictValue) models.Severity {
	if !f.IsIdentity() {
		return models.SeverityMinor
	}

	top := -1
	for _, v := range values {
		if r := c.policy.TrustRank(v.Source); r > top {
			top = r
		}
	}
	var topKeys []string
	for _, v := range values {
		if c.policy.TrustRank(v.Source) != top {
			continue
		}
		key := canonicalKey(f, v.Value)
		if !slices.Contains(topKeys, key) {
			topKeys = append(topKeys, key)
		}
	}
	if len(topKeys) > 1 {
		return models.SeverityMaterial
	}
	return models.SeverityMinor
}

func stringsDisagree(f id.Field, values []models.ConflictValue) bool {
	var keys []string
	for _, v := range values {
		key := canonicalKey(f, v.Value)
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	return len(keys) > 1
}

// canonicalKey folds a value to its comparison form so formatting noise is
// not a conflict: addresses normalize, the rest case-fold.
func canonicalKey(f id.Field, v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	if f == id.FieldAddress {
		return address.Normalize(s)
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

func (c *Consolidator) derivePricePerSqft(e *models.PropertyEntity) {
	price, okPrice := e.Float(id.FieldPrice)
	size, okSize := e.Float(id.FieldSizeSqft)
	if !okPrice || !okSize || price <= 0 || size <= 0 {
		delete(e.Fields, id.FieldPricePerSqft)
		return
	}

	observed := e.Fields[id.FieldPrice].ObservedAt
	if at := e.Fields[id.FieldSizeSqft].ObservedAt; at.After(observed) {
		observed = at
	}
	e.Fields[id.FieldPricePerSqft] = models.FieldValue{
		Value:      price / size,
		Source:     derivedSource,
		ObservedAt: observed,
	}
}

// hasConflict reports whether an identical conflict was already recorded,
// ignoring RecordedAt. Keeps re-consolidation of the same inputs from
// duplicating history.
func hasConflict(existing []models.ConflictRecord, candidate models.ConflictRecord) bool {
	for _, c := range existing {
		if c.Field != candidate.Field || c.Severity != candidate.Severity || c.Variance != candidate.Variance {
			continue
		}
		if conflictValuesEqual(c.Values, candidate.Values) {
			return true
		}
	}
	return false
}

func conflictValuesEqual(a, b []models.ConflictValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Source != b[i].Source || a[i].Value != b[i].Value || !a[i].ObservedAt.Equal(b[i].ObservedAt) {
			return false
		}
	}
	return true
}

func isNumericField(f id.Field) bool {
	switch f {
	case id.FieldPrice, id.FieldSizeSqft, id.FieldDaysOnMarket,
		id.FieldYearBuilt, id.FieldUnits, id.FieldTaxAssessment:
		return true
	}
	return false
}

func numericRange(values []models.ConflictValue) (lo, hi float64) {
	first := true
	for _, v := range values {
		f, ok := asFloat(v.Value)
		if !ok {
			continue
		}
		if first {
			lo, hi = f, f
			first = false
			continue
		}
		lo = min(lo, f)
		hi = max(hi, f)
	}
	return lo, hi
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func widen(v any) any {
	if n, ok := v.(int); ok {
		return float64(n)
	}
	return v
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
