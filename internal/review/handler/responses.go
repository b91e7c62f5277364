package handler

import (
	"time"

	"platbook/internal/review/models"
)

// ReviewResponse is one review item on the wire.
type ReviewResponse struct {
	ID            string              `json:"id"`
	ListingID     string              `json:"listing_id"`
	Platform      string              `json:"platform"`
	Candidates    []CandidateResponse `json:"candidates"`
	Status        string              `json:"status"`
	ResolvedGroup string              `json:"resolved_group,omitempty"`
	ResolvedBy    string              `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// CandidateResponse is one tentative group candidate, best score first.
type CandidateResponse struct {
	GroupID string  `json:"group_id"`
	Score   float64 `json:"score"`
}

// FromItem converts a review item to its HTTP response.
func FromItem(item *models.ReviewItem) *ReviewResponse {
	resp := &ReviewResponse{
		ID:        item.ID.String(),
		ListingID: item.ListingID.String(),
		Platform:  string(item.Platform),
		Status:    string(item.Status),
		CreatedAt: item.CreatedAt,
	}
	for _, c := range item.Candidates {
		resp.Candidates = append(resp.Candidates, CandidateResponse{
			GroupID: c.GroupID.String(),
			Score:   c.Score,
		})
	}
	if !item.ResolvedGroup.IsNil() {
		resp.ResolvedGroup = item.ResolvedGroup.String()
	}
	if item.ResolvedBy != "" {
		resp.ResolvedBy = item.ResolvedBy
	}
	if !item.ResolvedAt.IsZero() {
		resolvedAt := item.ResolvedAt
		resp.ResolvedAt = &resolvedAt
	}
	return resp
}

// ReviewListResponse is the HTTP response for GET /reviews.
type ReviewListResponse struct {
	Reviews []*ReviewResponse `json:"reviews"`
}

// FromItems converts the pending queue to its HTTP response.
func FromItems(items []*models.ReviewItem) *ReviewListResponse {
	resp := &ReviewListResponse{Reviews: make([]*ReviewResponse, 0, len(items))}
	for _, item := range items {
		resp.Reviews = append(resp.Reviews, FromItem(item))
	}
	return resp
}
