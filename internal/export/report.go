// Package export renders calendars as an XLSX report and an iCalendar feed.
package export

import (
	"fmt"
	"io"

	"hospadmin/internal/availability"
)

// Report sheet names.
const (
	SheetCalendars  = "Calendars"
	SheetRules      = "Rules"
	SheetExceptions = "Exceptions"
)

var (
	calendarColumns = []string{
		"Calendar ID", "Service Item", "Label", "Active", "Policy Block",
		"Mode", "Timezone", "Slot (min)", "Lead Time (min)", "Booking Window (days)",
		"Max / Day", "Max / Slot", "Effective From", "Notes", "Drift",
	}
	ruleColumns      = []string{"Calendar ID", "Day", "Start", "End", "Capacity"}
	exceptionColumns = []string{"Calendar ID", "Blackout ID", "Date", "Closed", "Start", "End", "Reason"}
)

// AvailabilityReport writes a workbook describing forms to w.
func AvailabilityReport(w io.Writer, forms []availability.Form) error {
	sw := newSheetWriter()
	defer sw.close()

	if err := writeCalendars(sw, forms); err != nil {
		return err
	}
	if err := writeRules(sw, forms); err != nil {
		return err
	}
	if err := writeExceptions(sw, forms); err != nil {
		return err
	}
	return sw.save(w)
}

func writeCalendars(sw *sheetWriter, forms []availability.Form) error {
	if err := sw.addSheet(SheetCalendars); err != nil {
		return err
	}
	if err := sw.header(calendarColumns...); err != nil {
		return err
	}
	for _, f := range forms {
		p := f.Policy
		row := []any{
			f.Calendar.ID, f.Calendar.ServiceItemID, f.Label, yesNo(f.Calendar.IsActive), yesNo(f.HasPolicy),
			p.Mode, p.Timezone, p.SlotMinutes, p.LeadTimeMinutes, p.BookingWindowDays,
			optional(p.MaxPerDay), optional(p.MaxPerSlot), p.EffectiveFrom, p.Notes, yesNo(f.Drift),
		}
		if err := sw.write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeRules(sw *sheetWriter, forms []availability.Form) error {
	if err := sw.addSheet(SheetRules); err != nil {
		return err
	}
	if err := sw.header(ruleColumns...); err != nil {
		return err
	}
	for _, f := range forms {
		for _, win := range f.Windows {
			if err := sw.write([]any{f.Calendar.ID, win.Day, win.Start, win.End, optional(win.Capacity)}); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeExceptions(sw *sheetWriter, forms []availability.Form) error {
	if err := sw.addSheet(SheetExceptions); err != nil {
		return err
	}
	if err := sw.header(exceptionColumns...); err != nil {
		return err
	}
	for _, f := range forms {
		for _, r := range f.Exceptions {
			row := []any{f.Calendar.ID, r.ID, r.Date, yesNo(r.IsClosed), r.StartTime, r.EndTime, r.Reason}
			if err := sw.write(row); err != nil {
				return fmt.Errorf("exception %s: %w", r.ID, err)
			}
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// optional renders nil as an empty cell.
func optional(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
