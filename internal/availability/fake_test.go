package availability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	"hospadmin/internal/blackout"
	"hospadmin/internal/calendarapi"
	"hospadmin/internal/db"
	"hospadmin/internal/weekly"
)

// fakeBackend is an in-memory calendar backend.
type fakeBackend struct {
	mu        sync.Mutex
	seq       int
	calendars map[string]calendarapi.Calendar
	rules     map[string][]calendarapi.Rule
	blackouts map[string][]blackout.Range
	calls     []string
	failOn    string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calendars: make(map[string]calendarapi.Calendar),
		rules:     make(map[string][]calendarapi.Rule),
		blackouts: make(map[string][]blackout.Range),
	}
}

func (f *fakeBackend) record(call string) error {
	f.calls = append(f.calls, call)
	if f.failOn != "" && f.failOn == call {
		return fmt.Errorf("backend down")
	}
	return nil
}

func (f *fakeBackend) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *fakeBackend) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		switch c {
		case "ListCalendars", "GetCalendar", "ListRules", "ListBlackouts":
		default:
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBackend) ListCalendars(_ context.Context, serviceItemID string) ([]calendarapi.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListCalendars"); err != nil {
		return nil, err
	}
	var out []calendarapi.Calendar
	for _, c := range f.calendars {
		if c.ServiceItemID == serviceItemID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBackend) GetCalendar(_ context.Context, id string) (*calendarapi.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetCalendar"); err != nil {
		return nil, err
	}
	c, ok := f.calendars[id]
	if !ok {
		return nil, &calendarapi.HTTPError{Method: "GET", Path: "/calendars/" + id, Status: 404}
	}
	return &c, nil
}

func (f *fakeBackend) CreateCalendar(_ context.Context, in calendarapi.CalendarInput) (*calendarapi.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCalendar"); err != nil {
		return nil, err
	}
	c := calendarapi.Calendar{ID: f.nextID("cal-"), ServiceItemID: in.ServiceItemID, Name: in.Name, IsActive: in.IsActive}
	f.calendars[c.ID] = c
	return &c, nil
}

func (f *fakeBackend) UpdateCalendar(_ context.Context, id string, patch calendarapi.CalendarPatch) (*calendarapi.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateCalendar"); err != nil {
		return nil, err
	}
	c := f.calendars[id]
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.IsActive != nil {
		c.IsActive = *patch.IsActive
	}
	f.calendars[id] = c
	return &c, nil
}

func (f *fakeBackend) DeleteCalendar(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteCalendar"); err != nil {
		return err
	}
	delete(f.calendars, id)
	return nil
}

func (f *fakeBackend) ListRules(_ context.Context, calendarID string) ([]calendarapi.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListRules"); err != nil {
		return nil, err
	}
	return append([]calendarapi.Rule(nil), f.rules[calendarID]...), nil
}

func (f *fakeBackend) CreateRule(_ context.Context, calendarID string, rule weekly.Rule) (*calendarapi.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateRule"); err != nil {
		return nil, err
	}
	r := calendarapi.Rule{ID: f.nextID("rule-"), Rule: rule}
	f.rules[calendarID] = append(f.rules[calendarID], r)
	return &r, nil
}

func (f *fakeBackend) DeleteRule(_ context.Context, calendarID, ruleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteRule"); err != nil {
		return err
	}
	rules := f.rules[calendarID][:0]
	for _, r := range f.rules[calendarID] {
		if r.ID != ruleID {
			rules = append(rules, r)
		}
	}
	f.rules[calendarID] = rules
	return nil
}

func (f *fakeBackend) ListBlackouts(_ context.Context, calendarID string) ([]blackout.Range, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListBlackouts"); err != nil {
		return nil, err
	}
	return append([]blackout.Range(nil), f.blackouts[calendarID]...), nil
}

func (f *fakeBackend) CreateBlackout(_ context.Context, calendarID string, r blackout.Range) (*blackout.Range, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateBlackout"); err != nil {
		return nil, err
	}
	r.ID = f.nextID("bo-")
	f.blackouts[calendarID] = append(f.blackouts[calendarID], r)
	return &r, nil
}

func (f *fakeBackend) UpdateBlackout(_ context.Context, calendarID string, r blackout.Range) (*blackout.Range, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateBlackout"); err != nil {
		return nil, err
	}
	for i, b := range f.blackouts[calendarID] {
		if b.ID == r.ID {
			f.blackouts[calendarID][i] = r
		}
	}
	return &r, nil
}

func (f *fakeBackend) DeleteBlackout(_ context.Context, calendarID, blackoutID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteBlackout"); err != nil {
		return err
	}
	kept := f.blackouts[calendarID][:0]
	for _, b := range f.blackouts[calendarID] {
		if b.ID != blackoutID {
			kept = append(kept, b)
		}
	}
	f.blackouts[calendarID] = kept
	return nil
}

type mockJournal struct {
	mock.Mock
}

func (m *mockJournal) RecordSnapshot(ctx context.Context, s *db.Snapshot) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockJournal) LastSnapshot(ctx context.Context, calendarID string) (*db.Snapshot, error) {
	args := m.Called(ctx, calendarID)
	if v := args.Get(0); v != nil {
		return v.(*db.Snapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload any) error {
	args := m.Called(eventType, payload)
	return args.Error(0)
}
