package availability

import (
	"context"
	"fmt"
	"time"

	"hospadmin/internal/blackout"
	"hospadmin/internal/clock"
	"hospadmin/internal/weekly"
)

// maxPreviewRange bounds a preview request.
const maxPreviewRange = 62 * 24 * time.Hour

// Preview is the expanded weekly schedule of a calendar over a period.
type Preview struct {
	CalendarID  string              `json:"calendarId"`
	Timezone    string              `json:"timezone"`
	From        time.Time           `json:"from"`
	To          time.Time           `json:"to"`
	Occurrences []weekly.Occurrence `json:"occurrences"`
	// Blocked counts occurrences removed because they overlap a blackout.
	Blocked int `json:"blocked"`
}

// Preview expands the calendar's weekly windows between from and to in the
// calendar's timezone and removes occurrences that overlap a blackout.
func (s *Service) Preview(ctx context.Context, calendarID string, from, to time.Time) (*Preview, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: preview end must be after start", ErrInvalidRequest)
	}
	if to.Sub(from) > maxPreviewRange {
		return nil, fmt.Errorf("%w: preview range exceeds %d days", ErrInvalidRequest, int(maxPreviewRange/(24*time.Hour)))
	}

	form, ranges, err := s.load(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	loc := s.offsets.Location(form.Policy.Timezone)
	occ, blocked := ExpandWindows(form.Windows, ranges, from, to, loc)
	return &Preview{
		CalendarID:  calendarID,
		Timezone:    loc.String(),
		From:        from.In(loc),
		To:          to.In(loc),
		Occurrences: occ,
		Blocked:     blocked,
	}, nil
}

// ExpandWindows expands windows over [from, to) in loc, dropping occurrences
// that overlap any blackout. It returns the kept occurrences and the number
// dropped.
func ExpandWindows(windows []weekly.Window, ranges []blackout.Range, from, to time.Time, loc *time.Location) ([]weekly.Occurrence, int) {
	all := weekly.Occurrences(windows, from, to, loc)
	spans := make([]blackout.Span, 0, len(ranges))
	for _, r := range ranges {
		f, okF := clock.ParseInstant(r.From)
		t, okT := clock.ParseInstant(r.To)
		if okF && okT && t.After(f) {
			spans = append(spans, blackout.Span{From: f, To: t})
		}
	}

	kept := make([]weekly.Occurrence, 0, len(all))
	blocked := 0
	for _, o := range all {
		if overlapsAny(o, spans) {
			blocked++
			continue
		}
		kept = append(kept, o)
	}
	return kept, blocked
}

func overlapsAny(o weekly.Occurrence, spans []blackout.Span) bool {
	for _, sp := range spans {
		if o.Start.Before(sp.To) && sp.From.Before(o.End) {
			return true
		}
	}
	return false
}
