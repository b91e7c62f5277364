// Package classify decides whether a consolidated property is usable,
// flagged for attention, or discarded. Pure rules over one entity snapshot;
// a later snapshot may re-classify.
package classify

import (
	"fmt"
	"math"

	"platbook/internal/policy"
	"platbook/internal/property/models"
	id "platbook/pkg/domain"
)

type Classifier struct {
	policy policy.Policy
}

func New(pol policy.Policy) *Classifier {
	return &Classifier{policy: pol}
}

// Classify grades one entity snapshot. comparablePrices is the price set of
// live entities sharing state, city and property type, excluding the entity
// itself; it feeds outlier detection only.
//
// Discard rules run first and are terminal for the snapshot; flag rules
// accumulate so the verdict carries every applicable reason.
func (c *Classifier) Classify(e *models.PropertyEntity, comparablePrices []float64) (models.Verdict, []string) {
	if reasons := c.discardReasons(e); len(reasons) > 0 {
		return models.VerdictDiscarded, reasons
	}
	if reasons := c.flagReasons(e, comparablePrices); len(reasons) > 0 {
		return models.VerdictFlagged, reasons
	}
	return models.VerdictUsable, nil
}

func (c *Classifier) discardReasons(e *models.PropertyEntity) []string {
	var reasons []string

	if e.IsSuperseded() {
		reasons = append(reasons, "duplicate of existing property")
	}
	if addr, ok := e.Address(); !ok || addr == "" {
		reasons = append(reasons, "missing address")
	}
	if e.HasMaterialConflict(true) {
		reasons = append(reasons, "irreconcilable identity conflict")
	}

	if pt, ok := e.PropertyType(); ok && !c.policy.AllowsPropertyType(id.PropertyType(pt)) {
		reasons = append(reasons, "property type outside mandate")
	}
	if price, ok := e.Float(id.FieldPrice); ok {
		if price < c.policy.Mandate.MinPrice || price > c.policy.Mandate.MaxPrice {
			reasons = append(reasons, "price outside mandate")
		}
	}
	if size, ok := e.Float(id.FieldSizeSqft); ok && c.policy.Mandate.MaxSizeSqft > 0 && size > c.policy.Mandate.MaxSizeSqft {
		reasons = append(reasons, "size outside mandate")
	}
	if dom, ok := e.Float(id.FieldDaysOnMarket); ok && dom > float64(c.policy.Mandate.MaxDaysOnMarket) {
		reasons = append(reasons, "days on market outside mandate")
	}
	if state, ok := e.State(); ok && !c.policy.AllowsState(state) {
		reasons = append(reasons, "state outside mandate")
	}

	return reasons
}

func (c *Classifier) flagReasons(e *models.PropertyEntity, comparablePrices []float64) []string {
	var reasons []string

	if len(e.Conflicts) > 0 {
		reasons = append(reasons, "unresolved conflicts")
	}
	if dom, ok := e.Float(id.FieldDaysOnMarket); ok && dom > float64(c.policy.Flags.StaleDaysOnMarket) {
		reasons = append(reasons, "days on market exceeds threshold")
	}
	for _, f := range id.CriticalFields() {
		if _, ok := e.Field(f); !ok {
			reasons = append(reasons, fmt.Sprintf("missing critical field: %s", f))
		}
	}
	if price, ok := e.Float(id.FieldPrice); ok && c.isOutlier(price, comparablePrices) {
		reasons = append(reasons, "price is a statistical outlier")
	}

	return reasons
}

// isOutlier tests the price against comparable entities. Needs enough
// comparables for the mean to mean anything; a zero spread makes any
// different price trivially extreme, so it is skipped rather than divided.
func (c *Classifier) isOutlier(price float64, comparables []float64) bool {
	if len(comparables) < c.policy.Flags.OutlierMinComparables {
		return false
	}

	var sum float64
	for _, p := range comparables {
		sum += p
	}
	mean := sum / float64(len(comparables))

	var sq float64
	for _, p := range comparables {
		sq += (p - mean) * (p - mean)
	}
	stddev := math.Sqrt(sq / float64(len(comparables)))
	if stddev == 0 {
		return false
	}

	z := (price - mean) / stddev
	return math.Abs(z) > c.policy.Flags.OutlierZScore
}
