package availability

import (
	"fmt"
	"time"

	"hospadmin/internal/blackout"
	"hospadmin/internal/clock"
)

// Offset modes.
const (
	// ModeCurrent applies the process' current UTC offset to every date.
	ModeCurrent = "current"
	// ModeZone applies the offset the calendar's IANA zone has on each date.
	ModeZone = "zone"
)

// Offsets resolves the UTC offset used to convert exception rows.
type Offsets struct {
	mode        string
	fallbackTZ  string
	localOffset func() int
}

// NewOffsets returns a resolver. fallbackTZ is used in zone mode when a
// policy's timezone cannot be loaded.
func NewOffsets(mode, fallbackTZ string) *Offsets {
	if mode != ModeZone {
		mode = ModeCurrent
	}
	return &Offsets{mode: mode, fallbackTZ: fallbackTZ, localOffset: clock.LocalOffsetMinutes}
}

// WithLocalOffset overrides the current-offset source.
func (o *Offsets) WithLocalOffset(fn func() int) *Offsets {
	o.localOffset = fn
	return o
}

// Mode returns the configured mode.
func (o *Offsets) Mode() string {
	return o.mode
}

// Local returns the current local offset.
func (o *Offsets) Local() int {
	return o.localOffset()
}

// ForDate returns the offset to apply to a local date of a calendar in tz.
func (o *Offsets) ForDate(tz, date string) int {
	if o.mode != ModeZone {
		return o.localOffset()
	}
	if off, err := clock.ZoneOffsetMinutes(tz, date); err == nil {
		return off
	}
	if off, err := clock.ZoneOffsetMinutes(o.fallbackTZ, date); err == nil {
		return off
	}
	return o.localOffset()
}

// ForInstant returns the offset to apply to a UTC instant of a calendar in tz.
func (o *Offsets) ForInstant(tz string, t time.Time) int {
	if o.mode != ModeZone {
		return o.localOffset()
	}
	loc, err := o.location(tz)
	if err != nil {
		return o.localOffset()
	}
	_, off := t.In(loc).Zone()
	return off / 60
}

// Location returns the zone used for previews of a calendar in tz.
func (o *Offsets) Location(tz string) *time.Location {
	loc, err := o.location(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

func (o *Offsets) location(tz string) (*time.Location, error) {
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	loc, err := time.LoadLocation(o.fallbackTZ)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", o.fallbackTZ, err)
	}
	return loc, nil
}

// Rows converts backend ranges with the offset of each range's start.
func (o *Offsets) Rows(ranges []blackout.Range, tz string) []blackout.Row {
	if o.mode != ModeZone {
		return blackout.ToExceptions(ranges, o.localOffset())
	}
	rows := make([]blackout.Row, 0, len(ranges))
	for _, r := range ranges {
		off := o.localOffset()
		if t, ok := clock.ParseInstant(r.From); ok {
			off = o.ForInstant(tz, t)
		}
		rows = append(rows, blackout.ToExceptions([]blackout.Range{r}, off)...)
	}
	return rows
}

// DraftOffset returns an offset function for blackout.ValidateDrafts.
func (o *Offsets) DraftOffset(tz string) func(blackout.Draft) int {
	return func(d blackout.Draft) int {
		return o.ForDate(tz, d.Date)
	}
}
