// Package httputil centralizes JSON encoding and error translation for HTTP
// handlers so every endpoint speaks the same envelope.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "platbook/pkg/domain-errors"
	"platbook/pkg/platform/sentinel"
)

// maxBodyBytes bounds request bodies; collector batches stay well under it.
const maxBodyBytes = 1 << 20

// errorResponse is the wire envelope for failures. Description is omitted
// for internal errors so store/driver details never leak to callers.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON encodes v with the given status. Encoding failures are logged by
// net/http's panic recovery path; headers are already out, so no retry.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates an error chain into the JSON error envelope. Coded
// domain errors map by code; bare sentinels map to their natural statuses;
// anything else is an internal error with no description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(translateSentinel(err))
	resp := errorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		resp.Description = dErrors.MessageOf(translateSentinel(err))
	}
	WriteJSON(w, StatusOf(code), resp)
}

// StatusOf maps a domain error code to its HTTP status.
func StatusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// translateSentinel lets handlers pass raw store errors through WriteError
// without every service remembering to wrap them first.
func translateSentinel(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		if !hasCodeAny(err) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "resource not found")
		}
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrAlreadyAssigned):
		if !hasCodeAny(err) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "resource conflict")
		}
	case errors.Is(err, sentinel.ErrUnavailable):
		if !hasCodeAny(err) {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "temporarily unavailable")
		}
	}
	return err
}

func hasCodeAny(err error) bool {
	var de *dErrors.Error
	return errors.As(err, &de)
}

// DecodeAndPrepare decodes a JSON body into T and validates it when T
// implements Validate() error. On failure it writes the error envelope and
// returns ok=false; handlers just return.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "request decode failed",
				"request_id", requestID,
				"error", err,
			)
		}
		msg := "malformed JSON body"
		if errors.Is(err, io.EOF) {
			msg = "empty request body"
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, msg))
		return req, false
	}

	if v, ok := any(&req).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			return req, false
		}
	}
	return req, true
}
