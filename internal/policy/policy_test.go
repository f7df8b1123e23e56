package policy

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestEncodeReferenceString(t *testing.T) {
	p := Policy{
		Mode:              "APPOINTMENT",
		Timezone:          "Asia/Kolkata",
		SlotMinutes:       15,
		LeadTimeMinutes:   60,
		BookingWindowDays: 30,
		EffectiveFrom:     "2026-01-31",
		Notes:             "OPD",
	}
	assert.Equal(t,
		"Availability {mode=APPOINTMENT;tz=Asia/Kolkata;slot=15;lead=60;win=30;maxDay=;maxSlot=;from=2026-01-31;note=OPD}",
		Encode(p),
	)
}

func TestEncodeAdvancedKey(t *testing.T) {
	p := Defaults()
	p.AdvancedText = `{"x": 1; "y": 2}`
	got := Encode(p)
	assert.True(t, strings.HasSuffix(got, `;adv="x": 1 "y": 2}`), got)
}

func TestEncodeClampsNumbers(t *testing.T) {
	p := Policy{
		SlotMinutes:       1,
		LeadTimeMinutes:   -5,
		BookingWindowDays: 1000,
		MaxPerDay:         intPtr(-3),
		MaxPerSlot:        intPtr(2),
	}
	got := Encode(p)
	assert.Contains(t, got, "mode=APPOINTMENT;tz=Asia/Kolkata;")
	assert.Contains(t, got, "slot=5;lead=0;win=365;maxDay=;maxSlot=2;")

	p.SlotMinutes = 999
	p.LeadTimeMinutes = 100000
	p.BookingWindowDays = 0
	got = Encode(p)
	assert.Contains(t, got, "slot=240;lead=43200;win=1;")
}

func TestEncodeSanitizesValues(t *testing.T) {
	p := Defaults()
	p.Mode = "WALK{IN}"
	p.Notes = "first;\tsecond\n\nthird"
	got := Encode(p)
	assert.Contains(t, got, "mode=WALKIN;")
	assert.Contains(t, got, "note=first second third}")
}

func TestEncodeTruncatesNotes(t *testing.T) {
	p := Defaults()
	p.Notes = strings.Repeat("a", 41)
	decoded := Decode(Encode(p))
	assert.Equal(t, strings.Repeat("a", 40), decoded.Notes)

	p.Notes = strings.Repeat("b", 40)
	assert.Equal(t, p.Notes, Decode(Encode(p)).Notes)
}

func TestEncodeTruncatesAdvancedText(t *testing.T) {
	p := Defaults()
	p.Timezone = "UTC"
	p.Notes = ""
	p.AdvancedText = strings.Repeat("z", 61)
	got := Encode(p)
	assert.Contains(t, got, "adv="+strings.Repeat("z", 60)+"}")
}

func TestEncodeCapsTotalLength(t *testing.T) {
	p := Policy{
		Mode:              "APPOINTMENT",
		Timezone:          "America/Argentina/Buenos_Aires",
		SlotMinutes:       240,
		LeadTimeMinutes:   43200,
		BookingWindowDays: 365,
		MaxPerDay:         intPtr(100000),
		MaxPerSlot:        intPtr(100000),
		EffectiveFrom:     "2026-01-31",
		Notes:             strings.Repeat("n", 40),
		AdvancedText:      strings.Repeat("a", 60),
	}
	got := Encode(p)
	assert.Equal(t, MaxNameLength, utf8.RuneCountInString(got))
	assert.False(t, strings.HasSuffix(got, "}"))

	// A cut name still decodes field by field.
	decoded := Decode(got)
	assert.Equal(t, "America/Argentina/Buenos_Aires", decoded.Timezone)
	require.NotNil(t, decoded.MaxPerDay)
	assert.Equal(t, 100000, *decoded.MaxPerDay)
	assert.Equal(t, strings.Repeat("n", 17), decoded.Notes)
	assert.Empty(t, decoded.AdvancedText)
}

func TestDecodeDefaults(t *testing.T) {
	assert.Equal(t, Defaults(), Decode(""))
	assert.Equal(t, Defaults(), Decode("garbage no braces"))

	d := Defaults()
	assert.Equal(t, "APPOINTMENT", d.Mode)
	assert.Equal(t, "Asia/Kolkata", d.Timezone)
	assert.Equal(t, 15, d.SlotMinutes)
	assert.Equal(t, 60, d.LeadTimeMinutes)
	assert.Equal(t, 30, d.BookingWindowDays)
	assert.Nil(t, d.MaxPerDay)
	assert.Nil(t, d.MaxPerSlot)
	assert.Empty(t, d.EffectiveFrom)
	assert.Empty(t, d.Notes)
	assert.Empty(t, d.AdvancedText)
}

func TestDecodeFieldByFieldFallback(t *testing.T) {
	got := Decode("OPD Cardiology {mode=WALKIN;slot=abc;lead=90;win=;maxDay=12;maxSlot=x;unknown=1;broken;note=Ward 3}")
	assert.Equal(t, "WALKIN", got.Mode)
	assert.Equal(t, DefaultTimezone, got.Timezone)
	assert.Equal(t, DefaultSlotMinutes, got.SlotMinutes)
	assert.Equal(t, 90, got.LeadTimeMinutes)
	assert.Equal(t, DefaultBookingWindowDays, got.BookingWindowDays)
	require.NotNil(t, got.MaxPerDay)
	assert.Equal(t, 12, *got.MaxPerDay)
	assert.Nil(t, got.MaxPerSlot)
	assert.Equal(t, "Ward 3", got.Notes)
}

func TestDecodeUsesLastBlock(t *testing.T) {
	got := Decode("Legacy {mode=X} Availability {mode=WALKIN;slot=30}")
	assert.Equal(t, "WALKIN", got.Mode)
	assert.Equal(t, 30, got.SlotMinutes)
}

func TestDecodeClampsOutOfRange(t *testing.T) {
	got := Decode("Availability {slot=1000;lead=-1;win=0}")
	assert.Equal(t, MaxSlotMinutes, got.SlotMinutes)
	assert.Equal(t, MinLeadTimeMinutes, got.LeadTimeMinutes)
	assert.Equal(t, MinBookingWindowDays, got.BookingWindowDays)
}

func TestEncodeIsIdempotentAfterDecode(t *testing.T) {
	policies := []Policy{
		Defaults(),
		{Mode: "WALKIN", Timezone: "Europe/Berlin", SlotMinutes: 30, LeadTimeMinutes: 0, BookingWindowDays: 365},
		{
			Mode: "APPOINTMENT", Timezone: "Asia/Kolkata", SlotMinutes: 20, LeadTimeMinutes: 1440,
			BookingWindowDays: 90, MaxPerDay: intPtr(40), MaxPerSlot: intPtr(0),
			EffectiveFrom: "2026-02-01", Notes: "Cardiology OPD, ground floor, room 12 and 13",
			AdvancedText: `{"overbook": true, "buffer": 5, "labels": ["new", "followup"]}`,
		},
		{
			Mode: "APPOINTMENT", Timezone: "America/Argentina/Buenos_Aires", SlotMinutes: 240,
			LeadTimeMinutes: 43200, BookingWindowDays: 365, MaxPerDay: intPtr(9999), MaxPerSlot: intPtr(9999),
			EffectiveFrom: "2026-12-31", Notes: strings.Repeat("word ", 10),
			AdvancedText: strings.Repeat("x y ", 20),
		},
		{Mode: "  spaced   mode ", Notes: "  padded  "},
	}

	for i, p := range policies {
		first := Encode(p)
		second := Encode(Decode(first))
		assert.Equal(t, first, second, "policy %d", i)
	}
}

func TestEncodeIsIdempotentWhenCutInsideValue(t *testing.T) {
	tests := []struct {
		name string
		base Policy
	}{
		{name: "defaults", base: Defaults()},
		{
			name: "upper bounds",
			base: Policy{
				Timezone: "UTC", SlotMinutes: 240, LeadTimeMinutes: 43200, BookingWindowDays: 365,
				MaxPerDay: intPtr(100000), MaxPerSlot: intPtr(250),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A long mode moves the length cut across every later field.
			for n := 80; n <= 150; n++ {
				p := tt.base
				p.Mode = strings.Repeat("m", n)
				first := Encode(p)
				second := Encode(Decode(first))
				assert.Equal(t, first, second, "mode length %d", n)
			}
		})
	}
}

func TestDecodeCutNumberKeepsDigits(t *testing.T) {
	p := Defaults()
	p.Mode = strings.Repeat("m", 118)
	name := Encode(p)
	require.True(t, strings.HasSuffix(name, ";slot=1"), name)

	decoded := Decode(name)
	assert.Equal(t, 10, decoded.SlotMinutes)
	assert.Equal(t, DefaultLeadTimeMinutes, decoded.LeadTimeMinutes)

	// Only a cut name gets this treatment; a closed block clamps as usual.
	assert.Equal(t, MinSlotMinutes, Decode("Availability {slot=1}").SlotMinutes)
}

func TestLabelAndHasBlock(t *testing.T) {
	assert.Equal(t, "Availability", Label("Availability {mode=X}"))
	assert.Equal(t, "Plain name", Label(" Plain name "))
	assert.True(t, HasBlock("Availability {mode=X"))
	assert.False(t, HasBlock("Plain name"))
}
