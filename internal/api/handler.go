// Package api exposes the availability console over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"hospadmin/internal/availability"
	"hospadmin/internal/blackout"
	"hospadmin/internal/metrics"
)

// Service is the availability service the handlers call.
type Service interface {
	List(ctx context.Context, serviceItemID string) ([]availability.Summary, error)
	LoadAll(ctx context.Context, serviceItemID string) ([]availability.Form, error)
	Load(ctx context.Context, calendarID string) (*availability.Form, error)
	Save(ctx context.Context, req availability.SaveRequest) (*availability.SaveResult, error)
	Delete(ctx context.Context, calendarID string) error
	Preview(ctx context.Context, calendarID string, from, to time.Time) (*availability.Preview, error)
	Blackouts(ctx context.Context, calendarID string) ([]blackout.Range, error)
	Offsets() *availability.Offsets
}

// Handler serves the console API.
type Handler struct {
	svc    Service
	logger zerolog.Logger
	now    func() time.Time
}

// NewHandler creates the API handler.
func NewHandler(svc Service, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With().Str("component", "api").Logger(),
		now:    time.Now,
	}
}

// Router returns the routes under /api/v1.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.observe)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Stateless conversions used by the form.
	api.HandleFunc("/policy/encode", h.encodePolicy).Methods(http.MethodPost)
	api.HandleFunc("/policy/decode", h.decodePolicy).Methods(http.MethodPost)
	api.HandleFunc("/weekly/normalize", h.normalizeWeekly).Methods(http.MethodPost)
	api.HandleFunc("/exceptions/blackouts", h.exceptionsToBlackouts).Methods(http.MethodPost)
	api.HandleFunc("/blackouts/exceptions", h.blackoutsToExceptions).Methods(http.MethodPost)

	api.HandleFunc("/service-items/{id}/calendars", h.listCalendars).Methods(http.MethodGet)
	api.HandleFunc("/service-items/{id}/report.xlsx", h.report).Methods(http.MethodGet)

	api.HandleFunc("/calendars", h.createCalendar).Methods(http.MethodPost)
	api.HandleFunc("/calendars/{id}", h.getCalendar).Methods(http.MethodGet)
	api.HandleFunc("/calendars/{id}", h.updateCalendar).Methods(http.MethodPut)
	api.HandleFunc("/calendars/{id}", h.deleteCalendar).Methods(http.MethodDelete)
	api.HandleFunc("/calendars/{id}/preview", h.preview).Methods(http.MethodGet)
	api.HandleFunc("/calendars/{id}/blackouts.ics", h.blackoutsICS).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// observe counts requests per route template and logs them.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.IncHTTPRequest(route)
		next.ServeHTTP(w, r)
		h.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}
