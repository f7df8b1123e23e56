// Package availability implements the Service Availability page flow:
// load a calendar into an editable form, save the form back to the backend.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"hospadmin/internal/blackout"
	"hospadmin/internal/calendarapi"
	"hospadmin/internal/db"
	"hospadmin/internal/events"
	"hospadmin/internal/metrics"
	"hospadmin/internal/policy"
	"hospadmin/internal/weekly"
)

var (
	// ErrInvalidWeekly blocks a save whose weekly text is not a JSON array.
	ErrInvalidWeekly = errors.New("invalid weekly windows")
	// ErrInvalidRequest is returned for requests missing identifiers.
	ErrInvalidRequest = errors.New("invalid request")
)

// DraftErrors blocks a save when any exception draft fails validation.
type DraftErrors struct {
	Errors []*blackout.ValidationError
}

func (e *DraftErrors) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, verr := range e.Errors {
		msgs = append(msgs, verr.Error())
	}
	return "invalid exceptions: " + strings.Join(msgs, "; ")
}

// Backend is the subset of the calendar backend the service uses.
type Backend interface {
	ListCalendars(ctx context.Context, serviceItemID string) ([]calendarapi.Calendar, error)
	GetCalendar(ctx context.Context, id string) (*calendarapi.Calendar, error)
	CreateCalendar(ctx context.Context, in calendarapi.CalendarInput) (*calendarapi.Calendar, error)
	UpdateCalendar(ctx context.Context, id string, patch calendarapi.CalendarPatch) (*calendarapi.Calendar, error)
	DeleteCalendar(ctx context.Context, id, serviceItemID string) error
	ListRules(ctx context.Context, calendarID string) ([]calendarapi.Rule, error)
	CreateRule(ctx context.Context, calendarID string, rule weekly.Rule) (*calendarapi.Rule, error)
	DeleteRule(ctx context.Context, calendarID, ruleID string) error
	ListBlackouts(ctx context.Context, calendarID string) ([]blackout.Range, error)
	CreateBlackout(ctx context.Context, calendarID string, r blackout.Range) (*blackout.Range, error)
	UpdateBlackout(ctx context.Context, calendarID string, r blackout.Range) (*blackout.Range, error)
	DeleteBlackout(ctx context.Context, calendarID, blackoutID string) error
}

// Journal records what each save wrote.
type Journal interface {
	RecordSnapshot(ctx context.Context, s *db.Snapshot) error
	LastSnapshot(ctx context.Context, calendarID string) (*db.Snapshot, error)
}

// Publisher receives domain events.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}

// Form is the decoded, editable state of one calendar.
type Form struct {
	Calendar      calendarapi.Calendar `json:"calendar"`
	Label         string               `json:"label"`
	HasPolicy     bool                 `json:"hasPolicy"`
	Policy        policy.Policy        `json:"policy"`
	WeeklyText    string               `json:"weeklyText"`
	Windows       []weekly.Window      `json:"windows"`
	Exceptions    []blackout.Row       `json:"exceptions"`
	OffsetMinutes int                  `json:"offsetMinutes"`
	// Drift is set when the stored name differs from what this service last wrote.
	Drift bool `json:"drift"`
}

// Summary is a calendar with its decoded policy.
type Summary struct {
	Calendar  calendarapi.Calendar `json:"calendar"`
	HasPolicy bool                 `json:"hasPolicy"`
	Policy    policy.Policy        `json:"policy"`
}

// Service implements load/save of availability calendars.
type Service struct {
	backend   Backend
	journal   Journal
	publisher Publisher
	offsets   *Offsets
	logger    zerolog.Logger
}

// New constructs a service. journal and publisher may be nil.
func New(backend Backend, journal Journal, publisher Publisher, offsets *Offsets, logger zerolog.Logger) *Service {
	if offsets == nil {
		offsets = NewOffsets(ModeCurrent, policy.DefaultTimezone)
	}
	return &Service{
		backend:   backend,
		journal:   journal,
		publisher: publisher,
		offsets:   offsets,
		logger:    logger.With().Str("component", "availability").Logger(),
	}
}

// Offsets returns the offset resolver used by the service.
func (s *Service) Offsets() *Offsets {
	return s.offsets
}

// Load fetches a calendar with its rules and blackouts and decodes them.
func (s *Service) Load(ctx context.Context, calendarID string) (*Form, error) {
	form, _, err := s.load(ctx, calendarID)
	return form, err
}

// load is Load that also returns the stored blackout ranges.
func (s *Service) load(ctx context.Context, calendarID string) (*Form, []blackout.Range, error) {
	if strings.TrimSpace(calendarID) == "" {
		return nil, nil, fmt.Errorf("%w: calendar id is required", ErrInvalidRequest)
	}
	cal, err := s.backend.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, nil, fmt.Errorf("get calendar %s: %w", calendarID, err)
	}
	rules, err := s.backend.ListRules(ctx, calendarID)
	if err != nil {
		return nil, nil, fmt.Errorf("list rules of %s: %w", calendarID, err)
	}
	ranges, err := s.backend.ListBlackouts(ctx, calendarID)
	if err != nil {
		return nil, nil, fmt.Errorf("list blackouts of %s: %w", calendarID, err)
	}

	hasPolicy := policy.HasBlock(cal.Name)
	metrics.IncPolicyDecode(hasPolicy)
	p := policy.Decode(cal.Name)

	windows := weekly.FromRules(plainRules(rules))
	form := &Form{
		Calendar:      *cal,
		Label:         policy.Label(cal.Name),
		HasPolicy:     hasPolicy,
		Policy:        p,
		WeeklyText:    weekly.Format(windows),
		Windows:       windows,
		Exceptions:    s.offsets.Rows(ranges, p.Timezone),
		OffsetMinutes: s.offsets.Local(),
	}
	form.Drift = s.detectDrift(ctx, cal)
	return form, ranges, nil
}

// List returns the calendars of a service item with decoded policies.
func (s *Service) List(ctx context.Context, serviceItemID string) ([]Summary, error) {
	if strings.TrimSpace(serviceItemID) == "" {
		return nil, fmt.Errorf("%w: service item id is required", ErrInvalidRequest)
	}
	cals, err := s.backend.ListCalendars(ctx, serviceItemID)
	if err != nil {
		return nil, fmt.Errorf("list calendars of %s: %w", serviceItemID, err)
	}
	out := make([]Summary, 0, len(cals))
	for _, cal := range cals {
		hasPolicy := policy.HasBlock(cal.Name)
		metrics.IncPolicyDecode(hasPolicy)
		out = append(out, Summary{Calendar: cal, HasPolicy: hasPolicy, Policy: policy.Decode(cal.Name)})
	}
	return out, nil
}

// LoadAll loads the full form of every calendar of a service item.
func (s *Service) LoadAll(ctx context.Context, serviceItemID string) ([]Form, error) {
	summaries, err := s.List(ctx, serviceItemID)
	if err != nil {
		return nil, err
	}
	forms := make([]Form, 0, len(summaries))
	for _, sum := range summaries {
		form, err := s.Load(ctx, sum.Calendar.ID)
		if err != nil {
			return nil, err
		}
		forms = append(forms, *form)
	}
	return forms, nil
}

// Blackouts returns the stored blackout ranges of a calendar.
func (s *Service) Blackouts(ctx context.Context, calendarID string) ([]blackout.Range, error) {
	if strings.TrimSpace(calendarID) == "" {
		return nil, fmt.Errorf("%w: calendar id is required", ErrInvalidRequest)
	}
	ranges, err := s.backend.ListBlackouts(ctx, calendarID)
	if err != nil {
		return nil, fmt.Errorf("list blackouts of %s: %w", calendarID, err)
	}
	return ranges, nil
}

// Delete removes a calendar.
func (s *Service) Delete(ctx context.Context, calendarID string) error {
	if strings.TrimSpace(calendarID) == "" {
		return fmt.Errorf("%w: calendar id is required", ErrInvalidRequest)
	}
	cal, err := s.backend.GetCalendar(ctx, calendarID)
	if err != nil {
		return fmt.Errorf("get calendar %s: %w", calendarID, err)
	}
	if err := s.backend.DeleteCalendar(ctx, calendarID, cal.ServiceItemID); err != nil {
		return fmt.Errorf("delete calendar %s: %w", calendarID, err)
	}
	s.logger.Info().Str("calendar_id", calendarID).Msg("calendar deleted")
	s.publish(events.TypeCalendarDeleted, events.CalendarSaved{CalendarID: calendarID, ServiceItemID: cal.ServiceItemID, Name: cal.Name})
	return nil
}

// detectDrift compares the stored name with the last journal snapshot.
// Concurrent editors are not coordinated; drift is only reported.
func (s *Service) detectDrift(ctx context.Context, cal *calendarapi.Calendar) bool {
	if s.journal == nil {
		return false
	}
	last, err := s.journal.LastSnapshot(ctx, cal.ID)
	if errors.Is(err, db.ErrNoSnapshot) {
		return false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("calendar_id", cal.ID).Msg("read last snapshot failed")
		return false
	}
	if last.EncodedName == cal.Name {
		return false
	}
	s.logger.Warn().
		Str("calendar_id", cal.ID).
		Str("stored", cal.Name).
		Str("last_written", last.EncodedName).
		Time("last_saved_at", last.SavedAt).
		Msg("calendar name changed outside this service")
	return true
}

func (s *Service) publish(eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("publish event failed")
	}
}

func plainRules(rules []calendarapi.Rule) []weekly.Rule {
	out := make([]weekly.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Rule)
	}
	return out
}
