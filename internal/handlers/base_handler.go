// Package handlers implements the scheduler's thin HTTP control surface
// (spec.md §4.G), grounded on the teacher's internal/handlers package:
// stdlib http.ServeMux routing, a shared BaseHandler response helper, and
// context-based path parameter extraction in place of gorilla/mux.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ajoudaki/scheduler/internal/scheduler"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// BaseHandler provides the JSON response helpers shared by every handler.
type BaseHandler struct{}

func (h *BaseHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal_error","message":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func (h *BaseHandler) respondWithError(w http.ResponseWriter, err error) {
	var errType, message string
	var code int

	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		errType, message, code = "not_found", "job not found", http.StatusNotFound
	case errors.Is(err, scheduler.ErrInvalidInput):
		errType, message, code = "invalid_input", err.Error(), http.StatusBadRequest
	case errors.Is(err, scheduler.ErrNotCancelable):
		errType, message, code = "not_cancelable", "job is not in a cancelable state", http.StatusBadRequest
	default:
		errType, message, code = "internal_error", "internal server error", http.StatusInternalServerError
	}

	h.respondWithJSON(w, code, ErrorResponse{Error: errType, Message: message})
}

type contextKey string

const jobIDKey contextKey = "job_id"

func setJobIDContext(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// jobIDFromContext gets the job id path parameter stashed by the router.
func jobIDFromContext(r *http.Request) string {
	id, _ := r.Context().Value(jobIDKey).(string)
	return id
}
