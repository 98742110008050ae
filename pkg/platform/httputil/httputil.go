// Package httputil holds the JSON response conventions shared by all
// handlers: one error body shape, one sentinel-to-status mapping.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/sentinel"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps sentinel errors to HTTP statuses. Unmapped errors become
// 500 with the detail withheld from the body; the handler is expected to
// have logged it.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, id.ErrInvalidID):
		WriteJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_id", Description: err.Error()})
	case errors.Is(err, sentinel.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Description: err.Error()})
	case errors.Is(err, sentinel.ErrConflict):
		WriteJSON(w, http.StatusConflict, errorBody{Error: "conflict", Description: err.Error()})
	case errors.Is(err, sentinel.ErrUnavailable):
		WriteJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable"})
	case errors.Is(err, sentinel.ErrTimeout):
		WriteJSON(w, http.StatusGatewayTimeout, errorBody{Error: "timeout"})
	default:
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}

// Decode parses the request body into T, answering 400 itself on malformed
// input. The bool reports whether the handler should continue.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		WriteJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Description: "malformed JSON body"})
		return v, false
	}
	return v, true
}
