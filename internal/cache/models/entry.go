package models

import (
	"time"

	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// Tier is a field's mutability class. The tier decides the TTL band and
// which invalidation events may force the field stale ahead of its TTL.
type Tier string

const (
	TierImmutable   Tier = "immutable"
	TierSemiMutable Tier = "semi_mutable"
	TierVolatile    Tier = "volatile"
)

// EventKind names an invalidation trigger.
type EventKind string

const (
	EventSaleDetected        EventKind = "sale_detected"
	EventOwnershipChange     EventKind = "ownership_change"
	EventZoningChange        EventKind = "zoning_change"
	EventMaterialDiscrepancy EventKind = "material_discrepancy"
	EventScheduledTick       EventKind = "scheduled_tick"
)

// ParseEventKind validates an event kind from external input.
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case EventSaleDetected, EventOwnershipChange, EventZoningChange,
		EventMaterialDiscrepancy, EventScheduledTick:
		return EventKind(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown event kind: "+s)
}

// tierOf maps each canonical field to its mutability tier. Identity fields
// and recorded history never change for a given property; government-record
// context drifts on a scale of months; listing-observed market fields churn
// daily.
var tierOf = map[id.Field]Tier{
	id.FieldAddress:        TierImmutable,
	id.FieldCity:           TierImmutable,
	id.FieldState:          TierImmutable,
	id.FieldZip:            TierImmutable,
	id.FieldParcelID:       TierImmutable,
	id.FieldYearBuilt:      TierImmutable,
	id.FieldDeedRecords:    TierImmutable,
	id.FieldSaleHistory:    TierImmutable,
	id.FieldParcelGeometry: TierImmutable,

	id.FieldPropertyType:  TierSemiMutable,
	id.FieldSizeSqft:      TierSemiMutable,
	id.FieldUnits:         TierSemiMutable,
	id.FieldTaxAssessment: TierSemiMutable,
	id.FieldOwnership:     TierSemiMutable,
	id.FieldZoning:        TierSemiMutable,
	id.FieldEnvironmental: TierSemiMutable,
	id.FieldDemographics:  TierSemiMutable,
	id.FieldDistances:     TierSemiMutable,

	id.FieldPrice:         TierVolatile,
	id.FieldStatus:        TierVolatile,
	id.FieldDaysOnMarket:  TierVolatile,
	id.FieldBrokerContact: TierVolatile,
	id.FieldPricePerSqft:  TierVolatile,
}

// TierOf returns the mutability tier for a field. Unknown fields default to
// volatile so a new collector field is refreshed too often rather than
// served stale.
func TierOf(f id.Field) Tier {
	if t, ok := tierOf[f]; ok {
		return t
	}
	return TierVolatile
}

// legalKinds is the per-tier set of events that may bypass the TTL. A sale
// rewrites recorded history, so it is the one event allowed to touch
// immutable entries. Government-record events never reach volatile listing
// data, and listing discrepancies never reach immutable records.
var legalKinds = map[Tier]map[EventKind]bool{
	TierImmutable: {
		EventSaleDetected: true,
	},
	TierSemiMutable: {
		EventSaleDetected:        true,
		EventOwnershipChange:     true,
		EventZoningChange:        true,
		EventMaterialDiscrepancy: true,
		EventScheduledTick:       true,
	},
	TierVolatile: {
		EventSaleDetected:        true,
		EventMaterialDiscrepancy: true,
		EventScheduledTick:       true,
	},
}

// Accepts reports whether an event kind may force this tier stale ahead of
// its TTL.
func (t Tier) Accepts(kind EventKind) bool {
	return legalKinds[t][kind]
}

// Entry is one cached (property, field) value with freshness bookkeeping.
//
// Invariants:
//   - Tier matches TierOf(Field)
//   - NextRefresh is zero for immutable entries; they expire only via a
//     legal invalidation event
//   - a stale entry keeps serving its last value until refreshed data
//     arrives (stale-while-refresh)
type Entry struct {
	PropertyID          id.PropertyID `json:"property_id"`
	Field               id.Field      `json:"field"`
	Value               any           `json:"value"`
	Tier                Tier          `json:"tier"`
	LastRefresh         time.Time     `json:"last_refresh"`
	NextRefresh         time.Time     `json:"next_refresh"`
	Stale               bool          `json:"stale,omitempty"`
	StaleReason         string        `json:"stale_reason,omitempty"`
	FailureCount        int           `json:"failure_count,omitempty"`
	AmplifiedConfidence bool          `json:"amplified_confidence,omitempty"`
}

// Expired reports whether the entry's TTL has lapsed. Immutable entries
// never expire.
func (e *Entry) Expired(now time.Time) bool {
	if e.NextRefresh.IsZero() {
		return false
	}
	return now.After(e.NextRefresh)
}

// MarkStale flags the entry for refresh without dropping its value.
func (e *Entry) MarkStale(reason string) {
	e.Stale = true
	e.StaleReason = reason
}

// InvalidationEvent asks the cache to consider entries of one property
// stale. Transient: processed once (EventID dedup), never persisted.
type InvalidationEvent struct {
	EventID    id.EventID    `json:"event_id"`
	Kind       EventKind     `json:"kind"`
	PropertyID id.PropertyID `json:"property_id"`
	Fields     []id.Field    `json:"fields,omitempty"`
	At         time.Time     `json:"at"`
}

// RefreshRequest tells the owning collaborator to re-fetch fields. The cache
// never computes values itself.
type RefreshRequest struct {
	PropertyID  id.PropertyID `json:"property_id"`
	Fields      []id.Field    `json:"fields"`
	Reason      string        `json:"reason"`
	RequestedAt time.Time     `json:"requested_at"`
}
