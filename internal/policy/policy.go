// Package policy encodes a calendar's scheduling policy into the calendar's
// display name and decodes it back.
//
// The backend calendar only exposes a free-text name, so the policy travels as
// a trailing "{key=value;...}" block. Encoding is lossy (clamping, truncation)
// but stable: Encode(Decode(Encode(p))) == Encode(p).
package policy

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Prefix is the human-readable part of every encoded name.
const Prefix = "Availability "

// Limits of the encoded form.
const (
	MaxNameLength     = 160
	MaxNotesLength    = 40
	MaxAdvancedLength = 60
)

// Ranges applied to numeric fields on both encode and decode.
const (
	MinSlotMinutes       = 5
	MaxSlotMinutes       = 240
	MinLeadTimeMinutes   = 0
	MaxLeadTimeMinutes   = 30 * 24 * 60
	MinBookingWindowDays = 1
	MaxBookingWindowDays = 365
)

// Defaults used when a name carries no block or a field is missing/corrupt.
const (
	DefaultMode              = "APPOINTMENT"
	DefaultTimezone          = "Asia/Kolkata"
	DefaultSlotMinutes       = 15
	DefaultLeadTimeMinutes   = 60
	DefaultBookingWindowDays = 30
)

// Known modes. Other values are carried through unchanged.
const (
	ModeAppointment = "APPOINTMENT"
	ModeWalkIn      = "WALKIN"
)

// Encoded keys, in emission order.
const (
	keyMode    = "mode"
	keyTZ      = "tz"
	keySlot    = "slot"
	keyLead    = "lead"
	keyWindow  = "win"
	keyMaxDay  = "maxDay"
	keyMaxSlot = "maxSlot"
	keyFrom    = "from"
	keyNote    = "note"
	keyAdv     = "adv"
)

var (
	reservedChars = regexp.MustCompile(`[;{}]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Policy is the set of non-recurrence scheduling knobs of a calendar.
type Policy struct {
	Mode              string `json:"mode" yaml:"mode"`
	Timezone          string `json:"timezone" yaml:"timezone"`
	SlotMinutes       int    `json:"slotMinutes" yaml:"slot_minutes"`
	LeadTimeMinutes   int    `json:"leadTimeMinutes" yaml:"lead_time_minutes"`
	BookingWindowDays int    `json:"bookingWindowDays" yaml:"booking_window_days"`
	MaxPerDay         *int   `json:"maxPerDay" yaml:"max_per_day,omitempty"`
	MaxPerSlot        *int   `json:"maxPerSlot" yaml:"max_per_slot,omitempty"`
	EffectiveFrom     string `json:"effectiveFrom" yaml:"effective_from,omitempty"`
	Notes             string `json:"notes" yaml:"notes,omitempty"`
	AdvancedText      string `json:"advancedText" yaml:"advanced_text,omitempty"`
}

// Defaults returns the policy assumed for names without an encoded block.
func Defaults() Policy {
	return Policy{
		Mode:              DefaultMode,
		Timezone:          DefaultTimezone,
		SlotMinutes:       DefaultSlotMinutes,
		LeadTimeMinutes:   DefaultLeadTimeMinutes,
		BookingWindowDays: DefaultBookingWindowDays,
	}
}

// Encode renders p as a calendar name. The result is cut to MaxNameLength
// characters after assembly, which can drop the closing brace.
func Encode(p Policy) string {
	mode := sanitize(p.Mode)
	if strings.TrimSpace(mode) == "" {
		mode = DefaultMode
	}
	tz := sanitize(p.Timezone)
	if strings.TrimSpace(tz) == "" {
		tz = DefaultTimezone
	}

	parts := []string{
		keyMode + "=" + mode,
		keyTZ + "=" + tz,
		keySlot + "=" + strconv.Itoa(clamp(p.SlotMinutes, MinSlotMinutes, MaxSlotMinutes)),
		keyLead + "=" + strconv.Itoa(clamp(p.LeadTimeMinutes, MinLeadTimeMinutes, MaxLeadTimeMinutes)),
		keyWindow + "=" + strconv.Itoa(clamp(p.BookingWindowDays, MinBookingWindowDays, MaxBookingWindowDays)),
		keyMaxDay + "=" + optionalInt(p.MaxPerDay),
		keyMaxSlot + "=" + optionalInt(p.MaxPerSlot),
		keyFrom + "=" + sanitize(p.EffectiveFrom),
		keyNote + "=" + truncate(sanitize(p.Notes), MaxNotesLength),
	}
	if adv := truncate(sanitize(p.AdvancedText), MaxAdvancedLength); adv != "" {
		parts = append(parts, keyAdv+"="+adv)
	}

	return truncate(Prefix+"{"+strings.Join(parts, ";")+"}", MaxNameLength)
}

// Decode extracts the policy from a calendar name. Missing or unparseable
// fields fall back to their own default; a name without a block yields
// Defaults().
func Decode(name string) Policy {
	body, closed, ok := block(name)
	if !ok {
		return Defaults()
	}

	p := Defaults()
	pieces := strings.Split(body, ";")
	for i, piece := range pieces {
		key, value, found := strings.Cut(piece, "=")
		if !found {
			continue
		}
		parseNum := parseClamped
		if !closed && i == len(pieces)-1 {
			// The name was cut inside this value.
			parseNum = parsePrefix
		}
		switch strings.TrimSpace(key) {
		case keyMode:
			if strings.TrimSpace(value) != "" {
				p.Mode = value
			}
		case keyTZ:
			if strings.TrimSpace(value) != "" {
				p.Timezone = value
			}
		case keySlot:
			p.SlotMinutes = parseNum(value, DefaultSlotMinutes, MinSlotMinutes, MaxSlotMinutes)
		case keyLead:
			p.LeadTimeMinutes = parseNum(value, DefaultLeadTimeMinutes, MinLeadTimeMinutes, MaxLeadTimeMinutes)
		case keyWindow:
			p.BookingWindowDays = parseNum(value, DefaultBookingWindowDays, MinBookingWindowDays, MaxBookingWindowDays)
		case keyMaxDay:
			p.MaxPerDay = parseOptional(value)
		case keyMaxSlot:
			p.MaxPerSlot = parseOptional(value)
		case keyFrom:
			p.EffectiveFrom = value
		case keyNote:
			p.Notes = value
		case keyAdv:
			p.AdvancedText = value
		}
	}
	return p
}

// HasBlock reports whether name carries an encoded policy block.
func HasBlock(name string) bool {
	_, _, ok := block(name)
	return ok
}

// Label returns the part of name before the encoded block.
func Label(name string) string {
	idx := strings.LastIndex(name, "{")
	if idx < 0 {
		return strings.TrimSpace(name)
	}
	return strings.TrimSpace(name[:idx])
}

// block returns the text after the last '{', without a closing brace if one
// terminates the name. closed is false for a name cut by MaxNameLength,
// which still decodes.
func block(name string) (body string, closed, ok bool) {
	idx := strings.LastIndex(name, "{")
	if idx < 0 {
		return "", false, false
	}
	body = name[idx+1:]
	if trimmed := strings.TrimRight(body, " \t\r\n"); strings.HasSuffix(trimmed, "}") {
		return strings.TrimSuffix(trimmed, "}"), true, true
	}
	return body, false, true
}

// sanitize strips the block delimiters and collapses whitespace runs to a
// single space. Values are not trimmed so that re-encoding a decoded value
// reproduces it byte for byte.
func sanitize(s string) string {
	s = reservedChars.ReplaceAllString(s, "")
	return whitespaceRun.ReplaceAllString(s, " ")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func optionalInt(v *int) string {
	if v == nil || *v < 0 {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseClamped(s string, def, lo, hi int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return clamp(v, lo, hi)
}

// parsePrefix reads digits that lost their tail to the length cut. It returns
// the smallest value in [lo, hi] whose decimal form starts with them, so that
// encoding the result and cutting at the same place gives the same digits.
func parsePrefix(s string, def, lo, hi int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return def
	}
	for v > 0 && v < lo {
		v *= 10
	}
	if v < lo || v > hi {
		return clamp(v, lo, hi)
	}
	return v
}

func parseOptional(s string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
