// Package journal is the append-only decision journal. Every pipeline step
// that changes what the engine believes about a property leaves an entry, so
// discard decisions and platform credibility can be audited after the fact.
package journal

import (
	"context"
	"time"

	id "platbook/pkg/domain"
)

// Kind names one journaled decision.
type Kind string

const (
	KindListingReceived       Kind = "listing_received"
	KindGroupAssigned         Kind = "group_assigned"
	KindGroupsMerged          Kind = "groups_merged"
	KindEntityConsolidated    Kind = "entity_consolidated"
	KindEntityClassified      Kind = "entity_classified"
	KindReviewQueued          Kind = "review_queued"
	KindReviewResolved        Kind = "review_resolved"
	KindInvalidationHandled   Kind = "invalidation_handled"
	KindRefreshRequested      Kind = "refresh_requested"
	KindRefreshFailed         Kind = "refresh_failed"
	KindVerificationRequested Kind = "verification_requested"
	KindVerificationApplied   Kind = "verification_applied"
)

// Entry is one journaled decision. Keep it transport-agnostic so stores and
// sinks can fan out. ID fields are zero when the step has no such scope.
type Entry struct {
	Kind       Kind
	At         time.Time
	Subject    string // who acted: reviewer subject, collector platform, or "system"
	ListingID  id.ListingID
	GroupID    id.GroupID
	PropertyID id.PropertyID
	Platform   id.Platform
	Detail     string
}

// Store persists journal entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
