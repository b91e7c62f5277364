// Package domain holds shared domain primitives: typed identifiers and the
// canonical vocabularies (platforms, property types, field names) the engine
// resolves against.
//
// Typed IDs prevent cross-entity assignment at compile time. Construct from
// external input via the Parse functions, which reject empty, malformed and
// nil UUIDs at trust boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "platbook/pkg/domain-errors"
)

// PropertyID identifies one consolidated property entity.
type PropertyID uuid.UUID

// GroupID identifies one shadow group.
type GroupID uuid.UUID

// ListingID identifies one raw listing record as stored at intake.
type ListingID uuid.UUID

// EventID identifies one invalidation event for at-least-once dedup.
type EventID uuid.UUID

// ReviewID identifies one manual-review item.
type ReviewID uuid.UUID

func NewPropertyID() PropertyID { return PropertyID(uuid.New()) }
func NewGroupID() GroupID       { return GroupID(uuid.New()) }
func NewListingID() ListingID   { return ListingID(uuid.New()) }
func NewEventID() EventID       { return EventID(uuid.New()) }
func NewReviewID() ReviewID     { return ReviewID(uuid.New()) }

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be nil")
	}
	return u, nil
}

// ParsePropertyID constructs a PropertyID from external input.
func ParsePropertyID(s string) (PropertyID, error) {
	u, err := parseUUID(s, "property id")
	return PropertyID(u), err
}

// ParseGroupID constructs a GroupID from external input.
func ParseGroupID(s string) (GroupID, error) {
	u, err := parseUUID(s, "group id")
	return GroupID(u), err
}

// ParseListingID constructs a ListingID from external input.
func ParseListingID(s string) (ListingID, error) {
	u, err := parseUUID(s, "listing id")
	return ListingID(u), err
}

// ParseEventID constructs an EventID from external input.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event id")
	return EventID(u), err
}

// ParseReviewID constructs a ReviewID from external input.
func ParseReviewID(s string) (ReviewID, error) {
	u, err := parseUUID(s, "review id")
	return ReviewID(u), err
}

func (id PropertyID) String() string { return uuid.UUID(id).String() }
func (id GroupID) String() string    { return uuid.UUID(id).String() }
func (id ListingID) String() string  { return uuid.UUID(id).String() }
func (id EventID) String() string    { return uuid.UUID(id).String() }
func (id ReviewID) String() string   { return uuid.UUID(id).String() }

func (id PropertyID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id GroupID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ListingID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ReviewID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// MarshalText/UnmarshalText keep the UUID string form across JSON and SQL
// scanning; without them a defined uuid type marshals as a byte array.

func (id PropertyID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id GroupID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id ListingID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id ReviewID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *PropertyID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *GroupID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ListingID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ReviewID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
