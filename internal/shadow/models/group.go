package models

import (
	"time"

	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// ReassignmentEntry records one listing moving between groups, almost always
// because a manual review merged two tentative groups.
type ReassignmentEntry struct {
	ListingID id.ListingID `json:"listing_id"`
	FromGroup id.GroupID   `json:"from_group"`
	ToGroup   id.GroupID   `json:"to_group"`
	Reason    string       `json:"reason"`
	At        time.Time    `json:"at"`
}

// ShadowGroup is the set of raw listings resolved to one physical property.
//
// Invariants:
//   - Members is non-empty and free of duplicates
//   - A listing belongs to exactly one live group engine-wide; the store
//     enforces this with sentinel.ErrAlreadyAssigned
//   - A merged group keeps its members for audit; MergedInto points at the
//     surviving group and the group accepts no further writes
type ShadowGroup struct {
	ID            id.GroupID          `json:"id"`
	Members       []id.ListingID      `json:"members"`
	MergedInto    id.GroupID          `json:"merged_into,omitempty"`
	Reassignments []ReassignmentEntry `json:"reassignments,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// NewGroup starts a group around its first listing.
func NewGroup(listingID id.ListingID, now time.Time) (*ShadowGroup, error) {
	if listingID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "listing id is required")
	}
	return &ShadowGroup{
		ID:        id.NewGroupID(),
		Members:   []id.ListingID{listingID},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsMerged reports whether this group was folded into another.
func (g *ShadowGroup) IsMerged() bool {
	return !g.MergedInto.IsNil()
}

// HasMember reports whether the listing already belongs to this group.
func (g *ShadowGroup) HasMember(listingID id.ListingID) bool {
	for _, m := range g.Members {
		if m == listingID {
			return true
		}
	}
	return false
}

// CanAccept rejects writes against merged tombstones.
func (g *ShadowGroup) CanAccept() error {
	if g.IsMerged() {
		return dErrors.New(dErrors.CodeInvariantViolation, "group was merged and is read-only")
	}
	return nil
}

// ApplyMember appends a listing. Adding an existing member is a no-op so
// re-processing a listing stays idempotent.
func (g *ShadowGroup) ApplyMember(listingID id.ListingID, now time.Time) {
	if g.HasMember(listingID) {
		return
	}
	g.Members = append(g.Members, listingID)
	g.UpdatedAt = now
}

// ApplyMerge marks this group merged into the winner and logs every member's
// reassignment.
func (g *ShadowGroup) ApplyMerge(into id.GroupID, reason string, now time.Time) {
	g.MergedInto = into
	for _, m := range g.Members {
		g.Reassignments = append(g.Reassignments, ReassignmentEntry{
			ListingID: m,
			FromGroup: g.ID,
			ToGroup:   into,
			Reason:    reason,
			At:        now,
		})
	}
	g.UpdatedAt = now
}

// AbsorbMembers folds the loser's members into this group during a merge.
func (g *ShadowGroup) AbsorbMembers(from *ShadowGroup, now time.Time) {
	for _, m := range from.Members {
		g.ApplyMember(m, now)
	}
}
