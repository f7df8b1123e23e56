package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockToMinutes(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"09:00", 540, true},
		{"9:00", 540, true},
		{"00:00", 0, true},
		{"24:00", 1440, true},
		{"23:59", 1439, true},
		{"25:00", 0, false},
		{"24:01", 0, false},
		{"9:0", 0, false},
		{"09:60", 0, false},
		{"0900", 0, false},
		{"", 0, false},
		{"ab:cd", 0, false},
		{"123:00", 0, false},
		{" 09:00", 0, false},
		{"09:00 ", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ClockToMinutes(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMinutesToClock(t *testing.T) {
	assert.Equal(t, "00:00", MinutesToClock(0))
	assert.Equal(t, "09:05", MinutesToClock(545))
	assert.Equal(t, "24:00", MinutesToClock(1440))
	assert.Equal(t, "24:00", MinutesToClock(5000))
	assert.Equal(t, "00:00", MinutesToClock(-30))
}

func TestLocalDateToUTCMidnight(t *testing.T) {
	got, ok := LocalDateToUTCMidnight("2025-03-10", 330)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC), got)

	got, ok = LocalDateToUTCMidnight("2025-03-10", -300)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC), got)

	for _, bad := range []string{"", "2025-3-10", "10-03-2025", "2025-02-30", "garbage"} {
		_, ok := LocalDateToUTCMidnight(bad, 0)
		assert.False(t, ok, bad)
	}
}

func TestLocalDateTimeToUTC(t *testing.T) {
	got, ok := LocalDateTimeToUTC("2025-03-10", "09:30", 330)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC), got)

	_, ok = LocalDateTimeToUTC("2025-03-10", "9:3", 0)
	assert.False(t, ok)
	_, ok = LocalDateTimeToUTC("bad", "09:30", 0)
	assert.False(t, ok)
}

func TestUTCToLocalParts(t *testing.T) {
	instant := time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, LocalParts{Date: "2025-03-10", Time: "00:00"}, UTCToLocalParts(instant, 330))
	assert.Equal(t, LocalParts{Date: "2025-03-09", Time: "18:30"}, UTCToLocalParts(instant, 0))
	assert.True(t, UTCToLocalParts(time.Time{}, 0).IsZero())
}

func TestISOToLocalParts(t *testing.T) {
	assert.Equal(t,
		LocalParts{Date: "2025-03-10", Time: "09:00"},
		ISOToLocalParts("2025-03-10T09:00:00.000Z", 0),
	)
	assert.Equal(t,
		LocalParts{Date: "2025-03-10", Time: "14:30"},
		ISOToLocalParts("2025-03-10T09:00:00Z", 330),
	)
	assert.Equal(t, LocalParts{}, ISOToLocalParts("not a date", 0))
	assert.Equal(t, LocalParts{}, ISOToLocalParts("", 0))
}

func TestRoundTripThroughOffset(t *testing.T) {
	for _, offset := range []int{-480, -300, 0, 60, 330, 345, 600} {
		instant, ok := LocalDateTimeToUTC("2026-01-31", "13:45", offset)
		require.True(t, ok)
		parts := UTCToLocalParts(instant, offset)
		assert.Equal(t, "2026-01-31", parts.Date)
		assert.Equal(t, "13:45", parts.Time)
	}
}

func TestFormatInstant(t *testing.T) {
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.FixedZone("IST", 330*60))
	assert.Equal(t, "2025-03-10T03:30:00.000Z", FormatInstant(ts))
}

func TestZoneOffsetMinutes(t *testing.T) {
	off, err := ZoneOffsetMinutes("UTC", "2025-07-01")
	require.NoError(t, err)
	assert.Equal(t, 0, off)

	_, err = ZoneOffsetMinutes("Not/AZone", "2025-07-01")
	assert.Error(t, err)

	_, err = ZoneOffsetMinutes("UTC", "2025/07/01")
	assert.Error(t, err)
}

func TestLocalOffsetMinutesMatchesZone(t *testing.T) {
	_, offset := time.Now().Zone()
	assert.Equal(t, offset/60, LocalOffsetMinutes())
}
