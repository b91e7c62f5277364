// Package models holds the manual-review queue records.
package models

import (
	"slices"
	"strings"
	"time"

	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// Status is a review item's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Candidate is one tentative group match presented to a reviewer.
type Candidate struct {
	GroupID id.GroupID `json:"group_id"`
	Score   float64    `json:"score"`
}

// ReviewItem parks one listing whose best match fell in the tentative band.
//
// Invariants:
//   - Candidates is non-empty and ordered best score first
//   - A pending item's listing belongs to no live group; at most one pending
//     item exists per listing, redeliveries reuse it
//   - Resolution is terminal: it happens once and records the reviewer
//     subject and the group the listing landed in
type ReviewItem struct {
	ID            id.ReviewID  `json:"id"`
	ListingID     id.ListingID `json:"listing_id"`
	Platform      id.Platform  `json:"platform"`
	Candidates    []Candidate  `json:"candidates"`
	Status        Status       `json:"status"`
	ResolvedGroup id.GroupID   `json:"resolved_group,omitempty"`
	ResolvedBy    string       `json:"resolved_by,omitempty"`
	ResolvedAt    time.Time    `json:"resolved_at"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// New parks a listing for review. Candidates are reordered best score first;
// equal scores order by group id so the presentation is stable.
func New(listingID id.ListingID, platform id.Platform, candidates []Candidate, now time.Time) (*ReviewItem, error) {
	if listingID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "listing id is required")
	}
	if len(candidates) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one candidate group is required")
	}
	for _, c := range candidates {
		if c.GroupID.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "candidate group id is required")
		}
		if c.Score < 0 || c.Score > 1 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "candidate score must be in [0, 1]")
		}
	}

	ordered := slices.Clone(candidates)
	slices.SortStableFunc(ordered, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.GroupID.String(), b.GroupID.String())
	})

	return &ReviewItem{
		ID:         id.NewReviewID(),
		ListingID:  listingID,
		Platform:   platform,
		Candidates: ordered,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsPending reports whether the item still awaits a reviewer.
func (r *ReviewItem) IsPending() bool {
	return r.Status == StatusPending
}

// HasCandidate reports whether the group was presented to the reviewer.
func (r *ReviewItem) HasCandidate(groupID id.GroupID) bool {
	for _, c := range r.Candidates {
		if c.GroupID == groupID {
			return true
		}
	}
	return false
}

// CanResolve rejects a second decision on the same item.
func (r *ReviewItem) CanResolve() error {
	if !r.IsPending() {
		return dErrors.New(dErrors.CodeConflict, "review was already resolved")
	}
	return nil
}

// ApplyConfirm records the reviewer's choice and the group the listing
// actually landed in, which may differ from the chosen candidate when that
// group was merged away in the meantime.
func (r *ReviewItem) ApplyConfirm(landed id.GroupID, reviewer string, now time.Time) {
	r.Status = StatusConfirmed
	r.ResolvedGroup = landed
	r.ResolvedBy = reviewer
	r.ResolvedAt = now
	r.UpdatedAt = now
}

// ApplyReject records the rejection and the fresh group created for the
// listing.
func (r *ReviewItem) ApplyReject(fresh id.GroupID, reviewer string, now time.Time) {
	r.Status = StatusRejected
	r.ResolvedGroup = fresh
	r.ResolvedBy = reviewer
	r.ResolvedAt = now
	r.UpdatedAt = now
}
