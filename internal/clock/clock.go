// Package clock converts between the console's wall-clock values ("YYYY-MM-DD",
// "HH:MM", minute-of-day integers) and UTC instants.
//
// All conversions take an explicit offset in minutes, positive east of UTC.
// Callers that need the browser-equivalent behaviour pass LocalOffsetMinutes(),
// which is the offset in effect right now and is applied to every date, past or
// future. ZoneOffsetMinutes gives the offset a named zone has on a given date.
package clock

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the local calendar date format.
	DateLayout = "2006-01-02"
	// ClockLayout is the local time-of-day format.
	ClockLayout = "15:04"
	// InstantLayout matches the ISO strings the backend stores for blackouts.
	InstantLayout = "2006-01-02T15:04:05.000Z"
	// MinutesPerDay is the upper bound of a minute-of-day value ("24:00").
	MinutesPerDay = 24 * 60
)

var (
	clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// LocalParts is a local date and time-of-day pair. Both fields are empty when
// the source instant could not be parsed.
type LocalParts struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// IsZero reports whether the parts carry no date.
func (p LocalParts) IsZero() bool {
	return p.Date == ""
}

// LocalOffsetMinutes returns the process' current UTC offset in minutes.
// It is evaluated on every call so DST transitions are picked up.
func LocalOffsetMinutes() int {
	_, offset := time.Now().Zone()
	return offset / 60
}

// ZoneOffsetMinutes returns the UTC offset of zone tz at local noon of date.
func ZoneOffsetMinutes(tz, date string) (int, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return 0, fmt.Errorf("load location %q: %w", tz, err)
	}
	d, ok := parseDate(date)
	if !ok {
		return 0, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	noon := time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, loc)
	_, offset := noon.Zone()
	return offset / 60, nil
}

// MinutesToClock formats a minute-of-day as "HH:MM", clamping to [0, 1440].
func MinutesToClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes > MinutesPerDay {
		minutes = MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ClockToMinutes parses "H:MM" or "HH:MM" into a minute-of-day in [0, 1440].
// The minute part must have two digits; "24:00" is accepted as end of day.
// Surrounding whitespace is rejected.
func ClockToMinutes(s string) (int, bool) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 24 || minute > 59 {
		return 0, false
	}
	total := hour*60 + minute
	if total > MinutesPerDay {
		return 0, false
	}
	return total, true
}

// LocalDateToUTCMidnight returns the instant of local midnight of date.
func LocalDateToUTCMidnight(date string, offsetMinutes int) (time.Time, bool) {
	d, ok := parseDate(date)
	if !ok {
		return time.Time{}, false
	}
	return d.Add(-time.Duration(offsetMinutes) * time.Minute), true
}

// LocalDateTimeToUTC returns the instant of the local wall-clock date+time.
func LocalDateTimeToUTC(date, clockStr string, offsetMinutes int) (time.Time, bool) {
	midnight, ok := LocalDateToUTCMidnight(date, offsetMinutes)
	if !ok {
		return time.Time{}, false
	}
	minutes, ok := ClockToMinutes(clockStr)
	if !ok {
		return time.Time{}, false
	}
	return midnight.Add(time.Duration(minutes) * time.Minute), true
}

// UTCToLocalParts maps an instant onto the local date and time-of-day.
func UTCToLocalParts(t time.Time, offsetMinutes int) LocalParts {
	if t.IsZero() {
		return LocalParts{}
	}
	local := t.UTC().Add(time.Duration(offsetMinutes) * time.Minute)
	return LocalParts{
		Date: local.Format(DateLayout),
		Time: local.Format(ClockLayout),
	}
}

// ISOToLocalParts is UTCToLocalParts for an ISO-8601 string.
func ISOToLocalParts(s string, offsetMinutes int) LocalParts {
	t, ok := ParseInstant(s)
	if !ok {
		return LocalParts{}
	}
	return UTCToLocalParts(t, offsetMinutes)
}

// ParseInstant parses the instant shapes the backend is known to return.
func ParseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatInstant renders t as a UTC ISO string with millisecond precision.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !datePattern.MatchString(s) {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
