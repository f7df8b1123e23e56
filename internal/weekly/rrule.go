package weekly

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// maxPreviewOccurrences caps a single preview expansion.
const maxPreviewOccurrences = 2000

var rruleDays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Occurrence is one concrete instance of a weekly window.
type Occurrence struct {
	Day      string    `json:"day"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Capacity *int      `json:"capacity,omitempty"`
}

// RRule builds the RFC 5545 weekly rule of w anchored at dtstart's date.
// The time of day of dtstart is replaced by the window start.
func (w Window) RRule(dtstart time.Time) (*rrule.RRule, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	day, _ := DayIndex(w.Day)
	start, _, _ := w.Minutes()

	anchor := time.Date(dtstart.Year(), dtstart.Month(), dtstart.Day(), 0, 0, 0, 0, dtstart.Location())
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   anchor,
		Byweekday: []rrule.Weekday{rruleDays[day]},
		Byhour:    []int{start / 60 % 24},
		Byminute:  []int{start % 60},
		Bysecond:  []int{0},
	})
	if err != nil {
		return nil, fmt.Errorf("build rrule for %s %s-%s: %w", w.Day, w.Start, w.End, err)
	}
	return r, nil
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	start, end, ok := w.Minutes()
	if !ok || end <= start {
		return 0
	}
	return time.Duration(end-start) * time.Minute
}

// Occurrences expands windows starting in [from, to) in loc, ordered by
// start time. Invalid windows are skipped.
func Occurrences(windows []Window, from, to time.Time, loc *time.Location) []Occurrence {
	if loc == nil {
		loc = time.UTC
	}
	from = from.In(loc)
	to = to.In(loc)
	if !to.After(from) {
		return nil
	}

	out := make([]Occurrence, 0)
	for _, w := range windows {
		r, err := w.RRule(from)
		if err != nil {
			continue
		}
		dur := w.Duration()
		for _, start := range r.Between(from, to, true) {
			if !start.Before(to) {
				continue
			}
			out = append(out, Occurrence{
				Day:      w.Day,
				Start:    start,
				End:      start.Add(dur),
				Capacity: w.Capacity,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	if len(out) > maxPreviewOccurrences {
		out = out[:maxPreviewOccurrences]
	}
	return out
}
