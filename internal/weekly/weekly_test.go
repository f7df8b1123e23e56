package weekly

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantWindows []Window
		wantError   bool
		wantDropped int
	}{
		{
			name:        "empty text",
			raw:         "   \n",
			wantWindows: []Window{},
		},
		{
			name:        "single valid window",
			raw:         `[{"day":"MON","start":"09:00","end":"17:00","capacity":1}]`,
			wantWindows: []Window{{Day: "MON", Start: "09:00", End: "17:00", Capacity: intPtr(1)}},
		},
		{
			name:        "end before start dropped",
			raw:         `[{"day":"MON","start":"17:00","end":"09:00"}]`,
			wantWindows: []Window{},
			wantDropped: 1,
		},
		{
			name:        "equal start and end dropped",
			raw:         `[{"day":"MON","start":"09:00","end":"09:00"}]`,
			wantWindows: []Window{},
			wantDropped: 1,
		},
		{
			name:      "not json",
			raw:       "not json",
			wantError: true,
		},
		{
			name:      "object instead of array",
			raw:       `{"day":"MON"}`,
			wantError: true,
		},
		{
			name: "lowercase day and short hour",
			raw:  `[{"day":" tue ","start":"9:30","end":"24:00"}]`,
			wantWindows: []Window{
				{Day: "TUE", Start: "09:30", End: "24:00"},
			},
		},
		{
			name: "bad entries do not block good ones",
			raw: `[
				{"day":"XYZ","start":"09:00","end":"10:00"},
				{"day":"WED","start":"9:0","end":"10:00"},
				"oops",
				42,
				{"day":"THU","start":"08:00","end":"12:00","capacity":"3"},
				{"day":"FRI","start":"08:00","end":"12:00","capacity":-2}
			]`,
			wantWindows: []Window{
				{Day: "THU", Start: "08:00", End: "12:00", Capacity: intPtr(3)},
				{Day: "FRI", Start: "08:00", End: "12:00"},
			},
			wantDropped: 4,
		},
		{
			name: "fractional capacity floored",
			raw:  `[{"day":"SAT","start":"10:00","end":"11:00","capacity":2.7}]`,
			wantWindows: []Window{
				{Day: "SAT", Start: "10:00", End: "11:00", Capacity: intPtr(2)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Normalize(tt.raw)
			if tt.wantError {
				assert.False(t, res.OK())
				assert.NotEmpty(t, res.Error)
				assert.Empty(t, res.Windows)
				return
			}
			assert.True(t, res.OK(), res.Error)
			assert.Equal(t, tt.wantWindows, res.Windows)
			assert.Equal(t, tt.wantDropped, res.Dropped)
		})
	}
}

func TestRulesRoundTrip(t *testing.T) {
	windows := []Window{
		{Day: "MON", Start: "09:00", End: "13:00", Capacity: intPtr(4)},
		{Day: "MON", Start: "14:00", End: "17:00"},
		{Day: "SUN", Start: "10:00", End: "12:00"},
	}

	rules := ToRules(windows)
	require.Len(t, rules, 3)
	assert.Equal(t, Rule{DayOfWeek: 1, StartMinute: 540, EndMinute: 780, Capacity: intPtr(4)}, rules[0])
	assert.Equal(t, 0, rules[2].DayOfWeek)

	assert.Equal(t, windows, FromRules(rules))
}

func TestFromRulesSkipsInvalidAndSorts(t *testing.T) {
	rules := []Rule{
		{DayOfWeek: 0, StartMinute: 600, EndMinute: 660},
		{DayOfWeek: 9, StartMinute: 600, EndMinute: 660},
		{DayOfWeek: 3, StartMinute: 700, EndMinute: 600},
		{DayOfWeek: 1, StartMinute: 900, EndMinute: 960},
		{DayOfWeek: 1, StartMinute: 480, EndMinute: 540, Capacity: intPtr(-1)},
	}

	got := FromRules(rules)
	require.Len(t, got, 3)
	assert.Equal(t, "MON", got[0].Day)
	assert.Equal(t, "08:00", got[0].Start)
	assert.Nil(t, got[0].Capacity)
	assert.Equal(t, "15:00", got[1].Start)
	assert.Equal(t, "SUN", got[2].Day)
}

func TestFormatNormalizeRoundTrip(t *testing.T) {
	windows := []Window{{Day: "WED", Start: "07:15", End: "11:45", Capacity: intPtr(2)}}
	text := Format(windows)
	assert.True(t, strings.HasPrefix(text, "["))

	res := Normalize(text)
	require.True(t, res.OK())
	assert.Equal(t, windows, res.Windows)
	assert.Equal(t, "[]", Format(nil))
}

func TestWindowValidate(t *testing.T) {
	assert.NoError(t, Window{Day: "mon", Start: "09:00", End: "10:00"}.Validate())
	assert.Error(t, Window{Day: "XX", Start: "09:00", End: "10:00"}.Validate())
	assert.Error(t, Window{Day: "MON", Start: "9", End: "10:00"}.Validate())
	assert.Error(t, Window{Day: "MON", Start: "09:00", End: "25:00"}.Validate())
	assert.Error(t, Window{Day: "MON", Start: "10:00", End: "09:00"}.Validate())
	assert.Error(t, Window{Day: "MON", Start: "09:00", End: "10:00", Capacity: intPtr(-1)}.Validate())
}

func TestOccurrences(t *testing.T) {
	windows := []Window{
		{Day: "MON", Start: "09:00", End: "12:00"},
		{Day: "WED", Start: "14:00", End: "15:30", Capacity: intPtr(2)},
		{Day: "BAD", Start: "14:00", End: "15:30"},
	}
	// 2026-01-05 is a Monday.
	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 18, 23, 59, 0, 0, time.UTC)

	occ := Occurrences(windows, from, to, time.UTC)
	require.Len(t, occ, 4)
	assert.Equal(t, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), occ[0].Start)
	assert.Equal(t, time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC), occ[0].End)
	assert.Equal(t, "WED", occ[1].Day)
	assert.Equal(t, time.Date(2026, 1, 7, 15, 30, 0, 0, time.UTC), occ[1].End)
	assert.Equal(t, time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC), occ[2].Start)

	assert.Nil(t, Occurrences(windows, to, from, time.UTC))
	assert.Nil(t, Occurrences(windows, from, from, time.UTC))
}

func TestOccurrencesExcludeEnd(t *testing.T) {
	windows := []Window{{Day: "MON", Start: "09:00", End: "12:00"}}
	from := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		to   time.Time
		want int
	}{
		{name: "ends on an occurrence start", to: time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC), want: 1},
		{name: "ends just after it", to: time.Date(2026, 1, 12, 9, 0, 1, 0, time.UTC), want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ := Occurrences(windows, from, tt.to, time.UTC)
			require.Len(t, occ, tt.want)
			assert.Equal(t, from, occ[0].Start, "start bound is inclusive")
		})
	}
}
