package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"hospadmin/internal/availability"
	"hospadmin/internal/blackout"
	"hospadmin/internal/calendarapi"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error      string                      `json:"error"`
	Exceptions []*blackout.ValidationError `json:"exceptions,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	var draftErrs *availability.DraftErrors
	var httpErr *calendarapi.HTTPError
	switch {
	case errors.As(err, &draftErrs):
		return http.StatusUnprocessableEntity
	case errors.Is(err, availability.ErrInvalidWeekly), errors.Is(err, availability.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, calendarapi.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &httpErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes err with the status statusFor picks. Exception
// validation failures list every failing row.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	event := h.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = h.logger.Error()
	}
	event.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request failed")

	var draftErrs *availability.DraftErrors
	if errors.As(err, &draftErrs) {
		respondJSON(w, status, errorResponse{Error: "invalid exceptions", Exceptions: draftErrs.Errors})
		return
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	respondError(w, status, msg)
}
