package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"hospadmin/internal/blackout"
	"hospadmin/internal/calendarapi"
	"hospadmin/internal/clock"
	"hospadmin/internal/db"
	"hospadmin/internal/events"
	"hospadmin/internal/metrics"
	"hospadmin/internal/policy"
	"hospadmin/internal/weekly"
)

// SaveRequest is the submitted form. An empty CalendarID creates a calendar.
type SaveRequest struct {
	CalendarID    string           `json:"calendarId"`
	ServiceItemID string           `json:"serviceItemId"`
	IsActive      bool             `json:"isActive"`
	Policy        policy.Policy    `json:"policy"`
	WeeklyText    string           `json:"weeklyText"`
	Exceptions    []blackout.Draft `json:"exceptions"`
	// Source is recorded in the journal: db.SourceConsole or db.SourcePreset.
	Source string `json:"-"`
}

// SaveResult describes what a save changed.
type SaveResult struct {
	RunID            string               `json:"runId"`
	Calendar         calendarapi.Calendar `json:"calendar"`
	Created          bool                 `json:"created"`
	NameChanged      bool                 `json:"nameChanged"`
	ActiveChanged    bool                 `json:"activeChanged"`
	Windows          []weekly.Window      `json:"windows"`
	DroppedWindows   int                  `json:"droppedWindows"`
	RulesCreated     int                  `json:"rulesCreated"`
	RulesDeleted     int                  `json:"rulesDeleted"`
	BlackoutsCreated int                  `json:"blackoutsCreated"`
	BlackoutsUpdated int                  `json:"blackoutsUpdated"`
	BlackoutsDeleted int                  `json:"blackoutsDeleted"`
}

// Changed reports whether the save wrote anything to the backend.
func (r *SaveResult) Changed() bool {
	return r.Created || r.NameChanged || r.ActiveChanged || r.RulesCreated+r.RulesDeleted > 0 ||
		r.BlackoutsCreated+r.BlackoutsUpdated+r.BlackoutsDeleted > 0
}

// Save validates the form and writes it to the backend. Invalid weekly JSON
// or any invalid exception blocks the save before anything is written;
// individually malformed weekly entries are dropped.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	res, err := s.save(ctx, req)
	switch {
	case err == nil:
		metrics.IncCalendarSave("ok")
	case isValidationError(err):
		metrics.IncCalendarSave("invalid")
	default:
		metrics.IncCalendarSave("error")
	}
	return res, err
}

func (s *Service) save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if req.CalendarID == "" && strings.TrimSpace(req.ServiceItemID) == "" {
		return nil, fmt.Errorf("%w: service item id is required to create a calendar", ErrInvalidRequest)
	}

	norm := weekly.Normalize(req.WeeklyText)
	if !norm.OK() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWeekly, norm.Error)
	}
	metrics.AddWeeklyDropped(norm.Dropped)

	spans, verrs := blackout.ValidateDrafts(req.Exceptions, s.offsets.DraftOffset(req.Policy.Timezone))
	if len(verrs) > 0 {
		return nil, &DraftErrors{Errors: verrs}
	}

	res := &SaveResult{
		RunID:          uuid.NewString(),
		Windows:        norm.Windows,
		DroppedWindows: norm.Dropped,
	}
	name := policy.Encode(req.Policy)
	logger := s.logger.With().Str("run_id", res.RunID).Logger()

	cal, err := s.upsertCalendar(ctx, req, name, res)
	if err != nil {
		return nil, err
	}
	res.Calendar = *cal

	desired := weekly.ToRules(norm.Windows)
	if err := s.syncRules(ctx, cal.ID, desired, res); err != nil {
		return res, err
	}

	ranges := make([]blackout.Range, len(req.Exceptions))
	for i, d := range req.Exceptions {
		ranges[i] = spans[i].Range(d.ID, strings.TrimSpace(d.Reason))
	}
	if err := s.syncBlackouts(ctx, cal.ID, ranges, res); err != nil {
		return res, err
	}

	if !res.Changed() {
		logger.Debug().Str("calendar_id", cal.ID).Msg("calendar unchanged")
		return res, nil
	}

	source := req.Source
	if source == "" {
		source = db.SourceConsole
	}
	if s.journal != nil {
		snap := &db.Snapshot{
			RunID:          res.RunID,
			CalendarID:     cal.ID,
			ServiceItemID:  cal.ServiceItemID,
			EncodedName:    cal.Name,
			IsActive:       cal.IsActive,
			RulesCount:     len(desired),
			BlackoutsCount: len(ranges),
			Source:         source,
		}
		if err := s.journal.RecordSnapshot(ctx, snap); err != nil {
			logger.Warn().Err(err).Str("calendar_id", cal.ID).Msg("record snapshot failed")
		}
	}

	s.publish(events.TypeCalendarSaved, events.CalendarSaved{
		RunID:          res.RunID,
		CalendarID:     cal.ID,
		ServiceItemID:  cal.ServiceItemID,
		Name:           cal.Name,
		Created:        res.Created,
		RulesCount:     len(desired),
		BlackoutsCount: len(ranges),
		Source:         source,
	})

	logger.Info().
		Str("calendar_id", cal.ID).
		Bool("created", res.Created).
		Bool("name_changed", res.NameChanged).
		Bool("active_changed", res.ActiveChanged).
		Int("rules_created", res.RulesCreated).
		Int("rules_deleted", res.RulesDeleted).
		Int("blackouts_created", res.BlackoutsCreated).
		Int("blackouts_updated", res.BlackoutsUpdated).
		Int("blackouts_deleted", res.BlackoutsDeleted).
		Int("weekly_dropped", norm.Dropped).
		Msg("calendar saved")
	return res, nil
}

func (s *Service) upsertCalendar(ctx context.Context, req SaveRequest, name string, res *SaveResult) (*calendarapi.Calendar, error) {
	if req.CalendarID == "" {
		cal, err := s.backend.CreateCalendar(ctx, calendarapi.CalendarInput{
			ServiceItemID: strings.TrimSpace(req.ServiceItemID),
			Name:          name,
			IsActive:      req.IsActive,
		})
		if err != nil {
			return nil, fmt.Errorf("create calendar: %w", err)
		}
		if cal.Name == "" {
			cal.Name = name
		}
		res.Created = true
		res.NameChanged = true
		return cal, nil
	}

	current, err := s.backend.GetCalendar(ctx, req.CalendarID)
	if err != nil {
		return nil, fmt.Errorf("get calendar %s: %w", req.CalendarID, err)
	}

	var patch calendarapi.CalendarPatch
	if current.Name != name {
		patch.Name = &name
	}
	if current.IsActive != req.IsActive {
		active := req.IsActive
		patch.IsActive = &active
	}
	if patch.Name == nil && patch.IsActive == nil {
		return current, nil
	}

	updated, err := s.backend.UpdateCalendar(ctx, req.CalendarID, patch)
	if err != nil {
		return nil, fmt.Errorf("update calendar %s: %w", req.CalendarID, err)
	}
	merged := *current
	merged.Name = name
	merged.IsActive = req.IsActive
	if updated != nil && updated.ID != "" {
		merged.ID = updated.ID
	}
	res.NameChanged = patch.Name != nil
	res.ActiveChanged = patch.IsActive != nil
	return &merged, nil
}

// syncRules makes the stored rules equal to desired as a multiset: rules
// already present are kept, missing ones created, extra ones deleted.
func (s *Service) syncRules(ctx context.Context, calendarID string, desired []weekly.Rule, res *SaveResult) error {
	existing, err := s.backend.ListRules(ctx, calendarID)
	if err != nil {
		return fmt.Errorf("list rules of %s: %w", calendarID, err)
	}

	want := make(map[string]int, len(desired))
	for _, r := range desired {
		want[ruleKey(r)]++
	}

	var stale []calendarapi.Rule
	for _, r := range existing {
		key := ruleKey(r.Rule)
		if want[key] > 0 {
			want[key]--
			continue
		}
		stale = append(stale, r)
	}

	for _, r := range stale {
		if err := s.backend.DeleteRule(ctx, calendarID, r.ID); err != nil {
			return fmt.Errorf("delete rule %s: %w", r.ID, err)
		}
		res.RulesDeleted++
	}
	for _, r := range desired {
		key := ruleKey(r)
		if want[key] == 0 {
			continue
		}
		want[key]--
		if _, err := s.backend.CreateRule(ctx, calendarID, r); err != nil {
			return fmt.Errorf("create rule %s: %w", key, err)
		}
		res.RulesCreated++
	}
	return nil
}

func ruleKey(r weekly.Rule) string {
	capacity := "-"
	if r.Capacity != nil {
		capacity = fmt.Sprint(*r.Capacity)
	}
	return fmt.Sprintf("%d/%d-%d/%s", r.DayOfWeek, r.StartMinute, r.EndMinute, capacity)
}

// syncBlackouts reconciles stored blackouts with the submitted ranges.
// Ranges with an ID patch that blackout when it changed; ranges without an
// ID reuse an unclaimed identical blackout or are created; stored blackouts
// nobody claimed are deleted.
func (s *Service) syncBlackouts(ctx context.Context, calendarID string, ranges []blackout.Range, res *SaveResult) error {
	existing, err := s.backend.ListBlackouts(ctx, calendarID)
	if err != nil {
		return fmt.Errorf("list blackouts of %s: %w", calendarID, err)
	}

	byID := make(map[string]blackout.Range, len(existing))
	for _, r := range existing {
		byID[r.ID] = r
	}
	claimed := make(map[string]bool, len(existing))

	var create []blackout.Range
	for _, r := range ranges {
		if r.ID == "" {
			create = append(create, r)
			continue
		}
		stored, ok := byID[r.ID]
		if !ok {
			// Stale id: the blackout was removed elsewhere.
			r.ID = ""
			create = append(create, r)
			continue
		}
		claimed[r.ID] = true
		if sameRange(stored, r) {
			continue
		}
		if _, err := s.backend.UpdateBlackout(ctx, calendarID, r); err != nil {
			return fmt.Errorf("update blackout %s: %w", r.ID, err)
		}
		res.BlackoutsUpdated++
	}

	for _, r := range create {
		if id := findUnclaimed(existing, claimed, r); id != "" {
			claimed[id] = true
			continue
		}
		if _, err := s.backend.CreateBlackout(ctx, calendarID, r); err != nil {
			return fmt.Errorf("create blackout %s..%s: %w", r.From, r.To, err)
		}
		res.BlackoutsCreated++
	}

	for _, r := range existing {
		if claimed[r.ID] {
			continue
		}
		if err := s.backend.DeleteBlackout(ctx, calendarID, r.ID); err != nil {
			return fmt.Errorf("delete blackout %s: %w", r.ID, err)
		}
		res.BlackoutsDeleted++
	}
	return nil
}

func findUnclaimed(existing []blackout.Range, claimed map[string]bool, r blackout.Range) string {
	for _, e := range existing {
		if !claimed[e.ID] && sameRange(e, r) {
			return e.ID
		}
	}
	return ""
}

func sameRange(a, b blackout.Range) bool {
	return sameInstant(a.From, b.From) && sameInstant(a.To, b.To) &&
		strings.TrimSpace(a.Reason) == strings.TrimSpace(b.Reason)
}

func sameInstant(a, b string) bool {
	ta, okA := clock.ParseInstant(a)
	tb, okB := clock.ParseInstant(b)
	if !okA || !okB {
		return a == b
	}
	return ta.Equal(tb)
}

func isValidationError(err error) bool {
	var derr *DraftErrors
	return errors.Is(err, ErrInvalidWeekly) || errors.Is(err, ErrInvalidRequest) || errors.As(err, &derr)
}
