package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hospadmin/internal/blackout"
	"hospadmin/internal/clock"
	"hospadmin/internal/policy"
	"hospadmin/internal/weekly"
)

// PresetConfig is the desired availability of one service item.
type PresetConfig struct {
	ServiceItemID string           `yaml:"service_item_id"`
	Label         string           `yaml:"label,omitempty"`
	IsActive      *bool            `yaml:"is_active,omitempty"`
	Policy        *policy.Policy   `yaml:"policy,omitempty"`
	Weekly        []weekly.Window  `yaml:"weekly"`
	ClosedDates   []string         `yaml:"closed_dates,omitempty"`
	Exceptions    []blackout.Draft `yaml:"exceptions,omitempty"`
}

// HolidayConfig is a date closed for every preset.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-26"
	Name string `yaml:"name"`
}

// PresetDefaults holds values applied to presets that omit them.
type PresetDefaults struct {
	Policy *policy.Policy  `yaml:"policy,omitempty"`
	Weekly []weekly.Window `yaml:"weekly,omitempty"`
}

// PresetsConfig is the root configuration for presets.yaml.
type PresetsConfig struct {
	Presets  []PresetConfig  `yaml:"presets"`
	Defaults PresetDefaults  `yaml:"defaults"`
	Holidays []HolidayConfig `yaml:"holidays"`
}

// LoadPresets loads and validates presets configuration from a YAML file.
func LoadPresets(path string) (*PresetsConfig, error) {
	if path == "" {
		path = "configs/presets.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets config: %w", err)
	}

	var cfg PresetsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse presets config: %w", err)
	}

	// Defaults first so that inherited values are validated too.
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate presets config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *PresetsConfig) Validate() error {
	if len(c.Presets) == 0 {
		return fmt.Errorf("no presets defined")
	}

	ids := make(map[string]bool)
	for i, p := range c.Presets {
		prefix := fmt.Sprintf("preset[%d]", i)
		id := strings.TrimSpace(p.ServiceItemID)
		if id == "" {
			return fmt.Errorf("%s: service_item_id is required", prefix)
		}
		if ids[id] {
			return fmt.Errorf("%s: duplicate service_item_id '%s'", prefix, id)
		}
		ids[id] = true

		if p.Policy != nil {
			if err := validatePolicy(p.Policy, prefix+".policy"); err != nil {
				return err
			}
		}
		for j, w := range p.Weekly {
			if err := w.Validate(); err != nil {
				return fmt.Errorf("%s.weekly[%d]: %w", prefix, j, err)
			}
		}
		for j, d := range p.ClosedDates {
			if _, ok := clock.LocalDateToUTCMidnight(d, 0); !ok {
				return fmt.Errorf("%s.closed_dates[%d]: invalid date format '%s', expected YYYY-MM-DD", prefix, j, d)
			}
		}
		for j, d := range p.Exceptions {
			if _, err := blackout.ToRange(d, 0); err != nil {
				return fmt.Errorf("%s.exceptions[%d]: %w", prefix, j, err)
			}
		}
	}

	if c.Defaults.Policy != nil {
		if err := validatePolicy(c.Defaults.Policy, "defaults.policy"); err != nil {
			return err
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse(clock.DateLayout, h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	return nil
}

// validatePolicy is strict: values the codec would clamp are config errors.
func validatePolicy(p *policy.Policy, prefix string) error {
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("%s.timezone: %w", prefix, err)
	}
	if p.SlotMinutes < policy.MinSlotMinutes || p.SlotMinutes > policy.MaxSlotMinutes {
		return fmt.Errorf("%s.slot_minutes: %d out of range %d-%d", prefix, p.SlotMinutes, policy.MinSlotMinutes, policy.MaxSlotMinutes)
	}
	if p.LeadTimeMinutes < policy.MinLeadTimeMinutes || p.LeadTimeMinutes > policy.MaxLeadTimeMinutes {
		return fmt.Errorf("%s.lead_time_minutes: %d out of range %d-%d", prefix, p.LeadTimeMinutes, policy.MinLeadTimeMinutes, policy.MaxLeadTimeMinutes)
	}
	if p.BookingWindowDays < policy.MinBookingWindowDays || p.BookingWindowDays > policy.MaxBookingWindowDays {
		return fmt.Errorf("%s.booking_window_days: %d out of range %d-%d", prefix, p.BookingWindowDays, policy.MinBookingWindowDays, policy.MaxBookingWindowDays)
	}
	if p.MaxPerDay != nil && *p.MaxPerDay < 0 {
		return fmt.Errorf("%s.max_per_day cannot be negative", prefix)
	}
	if p.MaxPerSlot != nil && *p.MaxPerSlot < 0 {
		return fmt.Errorf("%s.max_per_slot cannot be negative", prefix)
	}
	if p.EffectiveFrom != "" {
		if _, err := time.Parse(clock.DateLayout, p.EffectiveFrom); err != nil {
			return fmt.Errorf("%s.effective_from: invalid date format '%s', expected YYYY-MM-DD", prefix, p.EffectiveFrom)
		}
	}
	return nil
}

// applyDefaults fills presets without explicit values from Defaults. Within a
// policy, empty strings and zero slot/window values take the codec defaults;
// a zero lead time is a valid value and is kept.
func (c *PresetsConfig) applyDefaults() {
	if c.Defaults.Policy != nil {
		fillPolicy(c.Defaults.Policy)
	}
	for i := range c.Presets {
		p := &c.Presets[i]
		p.ServiceItemID = strings.TrimSpace(p.ServiceItemID)
		if p.Policy == nil {
			if c.Defaults.Policy != nil {
				cp := *c.Defaults.Policy
				p.Policy = &cp
			} else {
				d := policy.Defaults()
				p.Policy = &d
			}
		}
		fillPolicy(p.Policy)
		if len(p.Weekly) == 0 && len(c.Defaults.Weekly) > 0 {
			p.Weekly = append([]weekly.Window(nil), c.Defaults.Weekly...)
		}
		if p.IsActive == nil {
			active := true
			p.IsActive = &active
		}
	}
}

func fillPolicy(p *policy.Policy) {
	if strings.TrimSpace(p.Mode) == "" {
		p.Mode = policy.DefaultMode
	}
	if strings.TrimSpace(p.Timezone) == "" {
		p.Timezone = policy.DefaultTimezone
	}
	if p.SlotMinutes == 0 {
		p.SlotMinutes = policy.DefaultSlotMinutes
	}
	if p.BookingWindowDays == 0 {
		p.BookingWindowDays = policy.DefaultBookingWindowDays
	}
}

// GetPreset returns the preset of a service item.
func (c *PresetsConfig) GetPreset(serviceItemID string) *PresetConfig {
	for i := range c.Presets {
		if c.Presets[i].ServiceItemID == serviceItemID {
			return &c.Presets[i]
		}
	}
	return nil
}

// Active reports whether the preset's calendar should be active.
func (p *PresetConfig) Active() bool {
	return p.IsActive == nil || *p.IsActive
}

// Drafts returns the exception drafts of a preset: its closed dates and
// explicit exceptions, plus every holiday, deduplicated by closed date.
func (c *PresetsConfig) Drafts(p *PresetConfig) []blackout.Draft {
	seen := make(map[string]bool)
	out := make([]blackout.Draft, 0, len(p.ClosedDates)+len(p.Exceptions)+len(c.Holidays))
	addClosed := func(date, reason string) {
		if seen[date] {
			return
		}
		seen[date] = true
		out = append(out, blackout.Draft{Date: date, IsClosed: true, Reason: reason})
	}
	for _, h := range c.Holidays {
		addClosed(h.Date, h.Name)
	}
	for _, d := range p.ClosedDates {
		addClosed(d, "")
	}
	for _, d := range p.Exceptions {
		if d.IsClosed {
			addClosed(d.Date, d.Reason)
			continue
		}
		out = append(out, d)
	}
	return out
}

// String returns a summary of the configuration.
func (c *PresetsConfig) String() string {
	active := 0
	for i := range c.Presets {
		if c.Presets[i].Active() {
			active++
		}
	}
	return fmt.Sprintf("PresetsConfig: %d presets (%d active), %d holidays",
		len(c.Presets), active, len(c.Holidays))
}
