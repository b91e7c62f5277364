package handler

import (
	"time"

	"platbook/internal/cache/models"
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// InvalidationEventRequest is the HTTP request body for POST /events. The
// event id is optional: replays carry the original id so dedup drops them,
// fresh operator injections get one minted here.
type InvalidationEventRequest struct {
	EventID    string    `json:"event_id"`
	Kind       string    `json:"kind"`
	PropertyID string    `json:"property_id"`
	Fields     []string  `json:"fields"`
	At         time.Time `json:"at"`

	parsedEventID    id.EventID
	parsedKind       models.EventKind
	parsedPropertyID id.PropertyID
	parsedFields     []id.Field
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *InvalidationEventRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	kind, err := models.ParseEventKind(r.Kind)
	if err != nil {
		return err
	}
	r.parsedKind = kind

	if r.PropertyID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "property_id is required")
	}
	propertyID, err := id.ParsePropertyID(r.PropertyID)
	if err != nil {
		return err
	}
	r.parsedPropertyID = propertyID

	if r.EventID != "" {
		eventID, err := id.ParseEventID(r.EventID)
		if err != nil {
			return err
		}
		r.parsedEventID = eventID
	} else {
		r.parsedEventID = id.NewEventID()
	}

	r.parsedFields = make([]id.Field, 0, len(r.Fields))
	for _, f := range r.Fields {
		if f == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "fields cannot contain empty names")
		}
		r.parsedFields = append(r.parsedFields, id.Field(f))
	}
	return nil
}

// Event builds the domain event, stamping the request time when the caller
// left "at" unset.
func (r *InvalidationEventRequest) Event(now time.Time) models.InvalidationEvent {
	at := r.At
	if at.IsZero() {
		at = now
	}
	return models.InvalidationEvent{
		EventID:    r.parsedEventID,
		Kind:       r.parsedKind,
		PropertyID: r.parsedPropertyID,
		Fields:     r.parsedFields,
		At:         at,
	}
}
