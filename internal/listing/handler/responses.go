package handler

import (
	"platbook/internal/pipeline"
	dErrors "platbook/pkg/domain-errors"
)

// SubmitListingResponse is the HTTP response for POST /listings.
type SubmitListingResponse struct {
	ListingID   string `json:"listing_id"`
	Duplicate   bool   `json:"duplicate"`
	Disposition string `json:"disposition"`
	GroupID     string `json:"group_id,omitempty"`
	PropertyID  string `json:"property_id,omitempty"`
	ReviewID    string `json:"review_id,omitempty"`
}

// FromResult converts a pipeline result to an HTTP response.
func FromResult(result *pipeline.Result) *SubmitListingResponse {
	resp := &SubmitListingResponse{
		ListingID:   result.ListingID.String(),
		Duplicate:   result.Duplicate,
		Disposition: string(result.Disposition),
	}
	if !result.GroupID.IsNil() {
		resp.GroupID = result.GroupID.String()
	}
	if !result.PropertyID.IsNil() {
		resp.PropertyID = result.PropertyID.String()
	}
	if !result.ReviewID.IsNil() {
		resp.ReviewID = result.ReviewID.String()
	}
	return resp
}

// SubmitBatchResponse is the HTTP response for POST /listings/batch.
type SubmitBatchResponse struct {
	Accepted int                 `json:"accepted"`
	Rejected int                 `json:"rejected"`
	Items    []BatchItemResponse `json:"items"`
}

// BatchItemResponse reports one batch record's outcome, positionally
// matching the request.
type BatchItemResponse struct {
	Status           string                 `json:"status"`
	Error            string                 `json:"error,omitempty"`
	ErrorDescription string                 `json:"error_description,omitempty"`
	Result           *SubmitListingResponse `json:"result,omitempty"`
}

// FromBatch merges pipeline outcomes with request-side build failures into
// the per-item status list.
func FromBatch(items []pipeline.BatchItem, buildErrs []error) *SubmitBatchResponse {
	resp := &SubmitBatchResponse{Items: make([]BatchItemResponse, len(items))}
	for i, item := range items {
		err := item.Err
		if i < len(buildErrs) && buildErrs[i] != nil {
			err = buildErrs[i]
		}
		if err != nil {
			resp.Rejected++
			code := dErrors.CodeOf(err)
			out := BatchItemResponse{Status: "rejected", Error: string(code)}
			if code != dErrors.CodeInternal {
				out.ErrorDescription = dErrors.MessageOf(err)
			}
			resp.Items[i] = out
			continue
		}
		resp.Accepted++
		resp.Items[i] = BatchItemResponse{Status: "accepted", Result: FromResult(item.Result)}
	}
	return resp
}
