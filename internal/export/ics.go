package export

import (
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"

	"hospadmin/internal/blackout"
	"hospadmin/internal/calendarapi"
	"hospadmin/internal/clock"
	"hospadmin/internal/policy"
	"hospadmin/internal/weekly"
)

const (
	productID       = "-//hospadmin//Service Availability//EN"
	uidDomain       = "hospadmin"
	localTimeLayout = "20060102T150405"
)

// Feed is the input of an iCalendar export.
type Feed struct {
	Calendar  calendarapi.Calendar
	Windows   []weekly.Window
	Blackouts []blackout.Range
	// Location is the calendar's timezone. Nil means UTC.
	Location *time.Location
	// Now stamps every event and anchors the weekly recurrences.
	Now time.Time
}

// BlackoutsICS builds a VCALENDAR with one VEVENT per blackout and one
// weekly recurring VEVENT per window. Blackouts covering whole local days
// are written as all-day events.
func BlackoutsICS(f Feed) (*ics.Calendar, error) {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ics.NewCalendarFor(uidDomain)
	cal.SetProductId(productID)
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName(calendarTitle(f.Calendar))
	cal.SetXWRTimezone(loc.String())

	for i, win := range f.Windows {
		if err := addWindow(cal, f.Calendar.ID, i, win, loc, now); err != nil {
			return nil, err
		}
	}
	for i, r := range f.Blackouts {
		if err := addBlackout(cal, f.Calendar.ID, i, r, loc, now); err != nil {
			return nil, err
		}
	}
	return cal, nil
}

// WriteICS serializes the feed to w.
func WriteICS(w io.Writer, f Feed) error {
	cal, err := BlackoutsICS(f)
	if err != nil {
		return err
	}
	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("serialize ics: %w", err)
	}
	return nil
}

func addWindow(cal *ics.Calendar, calendarID string, index int, win weekly.Window, loc *time.Location, now time.Time) error {
	anchor := now.In(loc)
	r, err := win.RRule(anchor)
	if err != nil {
		return fmt.Errorf("window %d: %w", index, err)
	}
	first := r.After(time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, loc), true)
	if first.IsZero() {
		return fmt.Errorf("window %d: no occurrence after %s", index, anchor.Format(clock.DateLayout))
	}
	end := first.Add(win.Duration())

	ev := cal.AddEvent(fmt.Sprintf("window-%s-%d@%s", calendarID, index, uidDomain))
	ev.SetDtStampTime(now)
	if loc == time.UTC {
		ev.SetStartAt(first)
		ev.SetEndAt(end)
	} else {
		ev.SetProperty(ics.ComponentPropertyDtStart, first.Format(localTimeLayout), ics.WithTZID(loc.String()))
		ev.SetProperty(ics.ComponentPropertyDtEnd, end.Format(localTimeLayout), ics.WithTZID(loc.String()))
	}
	ev.AddRrule(r.OrigOptions.RRuleString())
	ev.SetSummary(windowSummary(win))
	ev.SetProperty(ics.ComponentPropertyTransp, "TRANSPARENT")
	return nil
}

func addBlackout(cal *ics.Calendar, calendarID string, index int, r blackout.Range, loc *time.Location, now time.Time) error {
	from, okFrom := clock.ParseInstant(r.From)
	to, okTo := clock.ParseInstant(r.To)
	if !okFrom || !okTo || !to.After(from) {
		return fmt.Errorf("blackout %d: invalid range %q..%q", index, r.From, r.To)
	}

	id := r.ID
	if id == "" {
		id = fmt.Sprintf("%s-%d", calendarID, index)
	}
	ev := cal.AddEvent(fmt.Sprintf("blackout-%s@%s", id, uidDomain))
	ev.SetDtStampTime(now)
	localFrom, localTo := from.In(loc), to.In(loc)
	if isMidnight(localFrom) && isMidnight(localTo) {
		ev.SetAllDayStartAt(localFrom)
		ev.SetAllDayEndAt(localTo)
	} else {
		ev.SetStartAt(from)
		ev.SetEndAt(to)
	}

	summary := "Closed"
	if r.Reason != "" {
		summary = "Closed: " + r.Reason
	}
	ev.SetSummary(summary)
	ev.SetStatus(ics.ObjectStatusConfirmed)
	ev.SetProperty(ics.ComponentPropertyTransp, "OPAQUE")
	return nil
}

func calendarTitle(c calendarapi.Calendar) string {
	if label := policy.Label(c.Name); label != "" {
		return label
	}
	return c.ID
}

func windowSummary(win weekly.Window) string {
	s := fmt.Sprintf("Open %s %s-%s", win.Day, win.Start, win.End)
	if win.Capacity != nil {
		s += fmt.Sprintf(" (capacity %d)", *win.Capacity)
	}
	return s
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
