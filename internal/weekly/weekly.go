// Package weekly parses and validates the weekly recurrence windows edited in
// the console's JSON text box and converts them to backend rules.
package weekly

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"hospadmin/internal/clock"
)

// dayCodes is indexed by time.Weekday (Sunday = 0).
var dayCodes = [7]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// displayOrder sorts windows Monday first, the way the console lists them.
var displayOrder = map[string]int{
	"MON": 0, "TUE": 1, "WED": 2, "THU": 3, "FRI": 4, "SAT": 5, "SUN": 6,
}

// Window is one recurring day-of-week time range.
type Window struct {
	Day      string `json:"day" yaml:"day"`
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
	Capacity *int   `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// Rule is the backend representation of a Window.
type Rule struct {
	DayOfWeek   int  `json:"dayOfWeek"` // 0=Sunday .. 6=Saturday
	StartMinute int  `json:"startMinute"`
	EndMinute   int  `json:"endMinute"`
	Capacity    *int `json:"capacity,omitempty"`
}

// Result is the outcome of Normalize. Error is non-empty only when the text
// as a whole could not be used; individual bad entries are counted in Dropped.
type Result struct {
	Windows []Window `json:"windows"`
	Error   string   `json:"error,omitempty"`
	Dropped int      `json:"dropped"`
}

// OK reports whether the text was a usable JSON array (possibly empty).
func (r Result) OK() bool {
	return r.Error == ""
}

// DayIndex returns the weekday index (Sunday = 0) of a day code.
func DayIndex(code string) (int, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for i, c := range dayCodes {
		if c == code {
			return i, true
		}
	}
	return 0, false
}

// DayCode returns the day code of a weekday index.
func DayCode(index int) (string, bool) {
	if index < 0 || index >= len(dayCodes) {
		return "", false
	}
	return dayCodes[index], true
}

// Normalize parses the raw text box content. Entries with an unknown day,
// unparseable times, end not after start, or a non-object shape are skipped
// without failing the batch.
func Normalize(rawText string) Result {
	res := Result{Windows: make([]Window, 0)}
	if strings.TrimSpace(rawText) == "" {
		return res
	}

	var parsed any
	if err := json.Unmarshal([]byte(rawText), &parsed); err != nil {
		res.Error = fmt.Sprintf("weekly windows: invalid JSON: %v", err)
		return res
	}
	entries, ok := parsed.([]any)
	if !ok {
		res.Error = "weekly windows must be a JSON array"
		return res
	}

	for _, entry := range entries {
		w, ok := normalizeEntry(entry)
		if !ok {
			res.Dropped++
			continue
		}
		res.Windows = append(res.Windows, w)
	}
	return res
}

func normalizeEntry(entry any) (Window, bool) {
	obj, ok := entry.(map[string]any)
	if !ok {
		return Window{}, false
	}

	day, _ := obj["day"].(string)
	dayIdx, ok := DayIndex(day)
	if !ok {
		return Window{}, false
	}
	startStr, _ := obj["start"].(string)
	endStr, _ := obj["end"].(string)
	start, ok := clock.ClockToMinutes(startStr)
	if !ok {
		return Window{}, false
	}
	end, ok := clock.ClockToMinutes(endStr)
	if !ok || end <= start {
		return Window{}, false
	}

	return Window{
		Day:      dayCodes[dayIdx],
		Start:    clock.MinutesToClock(start),
		End:      clock.MinutesToClock(end),
		Capacity: coerceCapacity(obj["capacity"]),
	}, true
}

// coerceCapacity accepts JSON numbers and numeric strings; anything negative,
// non-finite or non-numeric is treated as absent.
func coerceCapacity(v any) *int {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
		return nil
	}
	c := int(math.Floor(f))
	return &c
}

// Minutes returns the window bounds as minutes of day.
func (w Window) Minutes() (start, end int, ok bool) {
	start, ok = clock.ClockToMinutes(w.Start)
	if !ok {
		return 0, 0, false
	}
	end, ok = clock.ClockToMinutes(w.End)
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

// Validate is the strict counterpart of Normalize for a single window.
func (w Window) Validate() error {
	if _, ok := DayIndex(w.Day); !ok {
		return fmt.Errorf("unknown day %q", w.Day)
	}
	start, ok := clock.ClockToMinutes(w.Start)
	if !ok {
		return fmt.Errorf("invalid start %q, expected HH:MM", w.Start)
	}
	end, ok := clock.ClockToMinutes(w.End)
	if !ok {
		return fmt.Errorf("invalid end %q, expected HH:MM", w.End)
	}
	if end <= start {
		return fmt.Errorf("end %s must be after start %s", w.End, w.Start)
	}
	if w.Capacity != nil && *w.Capacity < 0 {
		return fmt.Errorf("capacity cannot be negative")
	}
	return nil
}

// ToRules converts valid windows to backend rules. Invalid windows are skipped.
func ToRules(windows []Window) []Rule {
	rules := make([]Rule, 0, len(windows))
	for _, w := range windows {
		day, ok := DayIndex(w.Day)
		if !ok {
			continue
		}
		start, end, ok := w.Minutes()
		if !ok || end <= start {
			continue
		}
		rules = append(rules, Rule{
			DayOfWeek:   day,
			StartMinute: start,
			EndMinute:   end,
			Capacity:    w.Capacity,
		})
	}
	return rules
}

// FromRules converts backend rules to windows, Monday first, then by start.
// Rules with an out-of-range day or minute span are skipped.
func FromRules(rules []Rule) []Window {
	windows := make([]Window, 0, len(rules))
	for _, r := range rules {
		code, ok := DayCode(r.DayOfWeek)
		if !ok {
			continue
		}
		if r.StartMinute < 0 || r.EndMinute > clock.MinutesPerDay || r.EndMinute <= r.StartMinute {
			continue
		}
		var capacity *int
		if r.Capacity != nil && *r.Capacity >= 0 {
			c := *r.Capacity
			capacity = &c
		}
		windows = append(windows, Window{
			Day:      code,
			Start:    clock.MinutesToClock(r.StartMinute),
			End:      clock.MinutesToClock(r.EndMinute),
			Capacity: capacity,
		})
	}
	sort.SliceStable(windows, func(i, j int) bool {
		di, dj := displayOrder[windows[i].Day], displayOrder[windows[j].Day]
		if di != dj {
			return di < dj
		}
		return windows[i].Start < windows[j].Start
	})
	return windows
}

// Format renders windows as the indented JSON shown in the text box.
func Format(windows []Window) string {
	if windows == nil {
		windows = []Window{}
	}
	data, err := json.MarshalIndent(windows, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
