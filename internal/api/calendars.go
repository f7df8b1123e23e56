package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"hospadmin/internal/availability"
	"hospadmin/internal/clock"
	"hospadmin/internal/db"
	"hospadmin/internal/export"
)

const (
	defaultPreviewDays = 7
	contentTypeICS     = "text/calendar; charset=utf-8"
	contentTypeXLSX    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (h *Handler) listCalendars(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.List(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"calendars": summaries})
}

func (h *Handler) getCalendar(w http.ResponseWriter, r *http.Request) {
	form, err := h.svc.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, form)
}

// createCalendar handles POST /api/v1/calendars. Any calendarId in the
// body is ignored.
func (h *Handler) createCalendar(w http.ResponseWriter, r *http.Request) {
	var req availability.SaveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.CalendarID = ""
	h.save(w, r, req, http.StatusCreated)
}

func (h *Handler) updateCalendar(w http.ResponseWriter, r *http.Request) {
	var req availability.SaveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.CalendarID = mux.Vars(r)["id"]
	h.save(w, r, req, http.StatusOK)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, req availability.SaveRequest, status int) {
	req.Source = db.SourceConsole
	res, err := h.svc.Save(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, status, res)
}

func (h *Handler) deleteCalendar(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// preview handles GET /calendars/{id}/preview?from=&to=. Both bounds take a
// date or an RFC 3339 instant; a date-only "to" includes that whole day.
// The default range is the next seven days.
func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseBound(q.Get("from"), false)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from.IsZero() {
		from = h.now().UTC().Truncate(24 * time.Hour)
	}
	to, err := parseBound(q.Get("to"), true)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, defaultPreviewDays)
	}

	p, err := h.svc.Preview(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func parseBound(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(clock.DateLayout, s); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func (h *Handler) blackoutsICS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	form, err := h.svc.Load(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	ranges, err := h.svc.Blackouts(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = export.WriteICS(&buf, export.Feed{
		Calendar:  form.Calendar,
		Windows:   form.Windows,
		Blackouts: ranges,
		Location:  h.svc.Offsets().Location(form.Policy.Timezone),
		Now:       h.now(),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeICS)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".ics"))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	forms, err := h.svc.LoadAll(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.AvailabilityReport(&buf, forms); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "availability-"+id+".xlsx"))
	_, _ = w.Write(buf.Bytes())
}
