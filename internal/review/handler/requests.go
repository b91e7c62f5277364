package handler

import (
	id "platbook/pkg/domain"
	dErrors "platbook/pkg/domain-errors"
)

// ConfirmReviewRequest is the HTTP request body for POST
// /reviews/{reviewID}/confirm.
type ConfirmReviewRequest struct {
	GroupID string `json:"group_id"`

	parsedGroupID id.GroupID
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ConfirmReviewRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.GroupID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "group_id is required")
	}
	groupID, err := id.ParseGroupID(r.GroupID)
	if err != nil {
		return err
	}
	r.parsedGroupID = groupID
	return nil
}

// ParsedGroupID returns the validated group id.
func (r *ConfirmReviewRequest) ParsedGroupID() id.GroupID {
	return r.parsedGroupID
}
