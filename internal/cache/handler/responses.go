package handler

import (
	"platbook/internal/cache/models"
	id "platbook/pkg/domain"
)

// InvalidationEventResponse is the HTTP response for POST /events.
type InvalidationEventResponse struct {
	EventID           string   `json:"event_id"`
	Kind              string   `json:"kind"`
	PropertyID        string   `json:"property_id"`
	InvalidatedFields []string `json:"invalidated_fields"`
}

// FromEvent reports which fields an event actually invalidated. An empty
// list means no targeted entry accepted the kind for its tier, or dedup
// dropped the event as a replay.
func FromEvent(ev models.InvalidationEvent, marked []id.Field) *InvalidationEventResponse {
	fields := make([]string, 0, len(marked))
	for _, f := range marked {
		fields = append(fields, string(f))
	}
	return &InvalidationEventResponse{
		EventID:           ev.EventID.String(),
		Kind:              string(ev.Kind),
		PropertyID:        ev.PropertyID.String(),
		InvalidatedFields: fields,
	}
}
