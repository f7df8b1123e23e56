// Package blackout maps backend blackout ranges (UTC instants) to the local
// "exception" rows edited in the console, and back.
package blackout

import (
	"fmt"
	"strings"
	"time"

	"hospadmin/internal/clock"
)

const midnight = "00:00"

// Range is a blackout as stored by the backend.
type Range struct {
	ID     string `json:"id,omitempty"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// Row is the local-time view of a blackout. IsClosed is inferred from the
// range: both ends fall on local midnight.
type Row struct {
	ID        string `json:"id,omitempty"`
	Date      string `json:"date"`
	IsClosed  bool   `json:"isClosed"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Draft is one exception as entered by the user. ID is set when the draft
// edits an existing blackout.
type Draft struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Date      string `json:"date" yaml:"date"`
	IsClosed  bool   `json:"isClosed" yaml:"is_closed"`
	StartTime string `json:"startTime,omitempty" yaml:"start_time,omitempty"`
	EndTime   string `json:"endTime,omitempty" yaml:"end_time,omitempty"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Span is the UTC range computed from a draft.
type Span struct {
	From time.Time
	To   time.Time
}

// Range renders the span in the backend's wire format.
func (s Span) Range(id, reason string) Range {
	return Range{
		ID:     id,
		From:   clock.FormatInstant(s.From),
		To:     clock.FormatInstant(s.To),
		Reason: reason,
	}
}

// ValidationError names the draft field that could not be converted.
type ValidationError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("exception %d: %s: %s", e.Index+1, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ToExceptions converts backend ranges into local rows. Unparseable instants
// produce rows with an empty date rather than being dropped.
func ToExceptions(ranges []Range, offsetMinutes int) []Row {
	rows := make([]Row, 0, len(ranges))
	for _, r := range ranges {
		from := clock.ISOToLocalParts(r.From, offsetMinutes)
		to := clock.ISOToLocalParts(r.To, offsetMinutes)

		row := Row{
			ID:     r.ID,
			Date:   from.Date,
			Reason: r.Reason,
		}
		if from.Date != "" && to.Date != "" && from.Time == midnight && to.Time == midnight {
			row.IsClosed = true
		} else {
			row.StartTime = from.Time
			row.EndTime = to.Time
		}
		rows = append(rows, row)
	}
	return rows
}

// ToRange converts a draft into a UTC span. Closed days cover local midnight
// to midnight of the next day.
func ToRange(d Draft, offsetMinutes int) (Span, error) {
	span, verr := toRange(d, offsetMinutes)
	if verr != nil {
		return Span{}, verr
	}
	return span, nil
}

func toRange(d Draft, offsetMinutes int) (Span, *ValidationError) {
	date := strings.TrimSpace(d.Date)
	if date == "" {
		return Span{}, &ValidationError{Index: -1, Field: "date", Message: "date is required"}
	}

	if d.IsClosed {
		from, ok := clock.LocalDateToUTCMidnight(date, offsetMinutes)
		if !ok {
			return Span{}, &ValidationError{Index: -1, Field: "date", Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", d.Date)}
		}
		return Span{From: from, To: from.Add(24 * time.Hour)}, nil
	}

	start, ok := clock.ClockToMinutes(d.StartTime)
	if !ok {
		return Span{}, &ValidationError{Index: -1, Field: "startTime", Message: fmt.Sprintf("invalid start time %q, expected HH:MM", d.StartTime)}
	}
	end, ok := clock.ClockToMinutes(d.EndTime)
	if !ok {
		return Span{}, &ValidationError{Index: -1, Field: "endTime", Message: fmt.Sprintf("invalid end time %q, expected HH:MM", d.EndTime)}
	}
	if end <= start {
		return Span{}, &ValidationError{Index: -1, Field: "endTime", Message: "end time must be after start time"}
	}

	from, ok := clock.LocalDateTimeToUTC(date, d.StartTime, offsetMinutes)
	if !ok {
		return Span{}, &ValidationError{Index: -1, Field: "date", Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", d.Date)}
	}
	to, _ := clock.LocalDateTimeToUTC(date, d.EndTime, offsetMinutes)
	return Span{From: from, To: to}, nil
}

// ValidateDrafts converts every draft independently. spans[i] is only
// meaningful when no error carries Index i.
func ValidateDrafts(drafts []Draft, offsetFor func(Draft) int) ([]Span, []*ValidationError) {
	spans := make([]Span, len(drafts))
	var errs []*ValidationError
	for i, d := range drafts {
		span, verr := toRange(d, offsetFor(d))
		if verr != nil {
			verr.Index = i
			errs = append(errs, verr)
			continue
		}
		spans[i] = span
	}
	return spans, errs
}

// FixedOffset returns an offset function for ValidateDrafts that ignores the
// draft.
func FixedOffset(offsetMinutes int) func(Draft) int {
	return func(Draft) int { return offsetMinutes }
}
