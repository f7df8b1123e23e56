package presets

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hospadmin/internal/availability"
	"hospadmin/internal/calendarapi"
	"hospadmin/internal/config"
	"hospadmin/internal/db"
	"hospadmin/internal/events"
	"hospadmin/internal/policy"
	"hospadmin/internal/weekly"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) List(ctx context.Context, serviceItemID string) ([]availability.Summary, error) {
	args := m.Called(ctx, serviceItemID)
	if v := args.Get(0); v != nil {
		return v.([]availability.Summary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockService) Save(ctx context.Context, req availability.SaveRequest) (*availability.SaveResult, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*availability.SaveResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingPublisher struct {
	types    []string
	payloads []any
}

func (p *recordingPublisher) PublishJSON(eventType string, payload any) error {
	p.types = append(p.types, eventType)
	p.payloads = append(p.payloads, payload)
	return nil
}

func boolPtr(v bool) *bool { return &v }

func testConfig() *config.PresetsConfig {
	p := policy.Defaults()
	return &config.PresetsConfig{
		Presets: []config.PresetConfig{
			{
				ServiceItemID: "svc-new",
				IsActive:      boolPtr(true),
				Policy:        &p,
				Weekly:        []weekly.Window{{Day: "MON", Start: "09:00", End: "13:00"}},
				ClosedDates:   []string{"2026-03-10"},
			},
			{
				ServiceItemID: "svc-old",
				IsActive:      boolPtr(false),
				Policy:        &p,
			},
		},
		Holidays: []config.HolidayConfig{{Date: "2026-01-26", Name: "Republic Day"}},
	}
}

func TestApply(t *testing.T) {
	svc := &mockService{}
	syncer := NewSyncer(svc, nil, zerolog.New(io.Discard))
	ctx := context.Background()

	svc.On("List", ctx, "svc-new").Return([]availability.Summary{}, nil).Once()
	svc.On("Save", ctx, mock.MatchedBy(func(r availability.SaveRequest) bool {
		return r.ServiceItemID == "svc-new" && r.CalendarID == "" && r.IsActive &&
			r.Source == db.SourcePreset &&
			len(r.Exceptions) == 2 && r.Exceptions[0].Reason == "Republic Day" &&
			r.WeeklyText == weekly.Format([]weekly.Window{{Day: "MON", Start: "09:00", End: "13:00"}})
	})).Return(&availability.SaveResult{Created: true, Calendar: calendarapi.Calendar{ID: "cal-9"}}, nil).Once()

	svc.On("List", ctx, "svc-old").Return([]availability.Summary{
		{Calendar: calendarapi.Calendar{ID: "cal-1"}},
		{Calendar: calendarapi.Calendar{ID: "cal-2"}},
	}, nil).Once()
	svc.On("Save", ctx, mock.MatchedBy(func(r availability.SaveRequest) bool {
		return r.ServiceItemID == "svc-old" && r.CalendarID == "cal-1" && !r.IsActive && r.WeeklyText == "[]"
	})).Return(&availability.SaveResult{Calendar: calendarapi.Calendar{ID: "cal-1"}}, nil).Once()

	report, err := syncer.Apply(ctx, testConfig())
	require.NoError(t, err)
	assert.Equal(t, Report{Created: 1, Unchanged: 1}, report)
	svc.AssertExpectations(t)
}

func TestApplyContinuesAfterFailure(t *testing.T) {
	svc := &mockService{}
	pub := &recordingPublisher{}
	syncer := NewSyncer(svc, pub, zerolog.New(io.Discard))
	ctx := context.Background()

	svc.On("List", ctx, "svc-new").Return(nil, errors.New("backend down")).Once()
	svc.On("List", ctx, "svc-old").Return([]availability.Summary{{Calendar: calendarapi.Calendar{ID: "cal-1"}}}, nil).Once()
	svc.On("Save", ctx, mock.Anything).
		Return(&availability.SaveResult{Calendar: calendarapi.Calendar{ID: "cal-1"}, RulesDeleted: 1}, nil).Once()

	report, err := syncer.Apply(ctx, testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preset svc-new")
	assert.Equal(t, Report{Updated: 1, Failed: 1}, report)
	assert.Equal(t, []string{events.TypePresetsSynced}, pub.types)
	assert.Equal(t, []any{events.PresetsSynced{Updated: 1, Failed: 1}}, pub.payloads)
	svc.AssertExpectations(t)
}

func TestApplyStopsOnCancelledContext(t *testing.T) {
	svc := &mockService{}
	syncer := NewSyncer(svc, nil, zerolog.New(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := syncer.Apply(ctx, testConfig())
	assert.ErrorIs(t, err, context.Canceled)
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestRunWithoutConfig(t *testing.T) {
	svc := &mockService{}
	syncer := NewSyncer(svc, nil, zerolog.New(io.Discard))

	report, err := syncer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Nil(t, syncer.Config())

	cfg := testConfig()
	syncer.SetConfig(cfg)
	assert.Same(t, cfg, syncer.Config())
}

// savingService records the service items it saved, for tests driven from
// other goroutines.
type savingService struct {
	mu    sync.Mutex
	saved []string
}

func (s *savingService) List(context.Context, string) ([]availability.Summary, error) {
	return nil, nil
}

func (s *savingService) Save(_ context.Context, req availability.SaveRequest) (*availability.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, req.ServiceItemID)
	return &availability.SaveResult{Created: true, Calendar: calendarapi.Calendar{ID: "cal-" + req.ServiceItemID}}, nil
}

func (s *savingService) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

func TestUpdateAppliesReloadedPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presets:\n  - service_item_id: svc-a\n"), 0o600))

	svc := &savingService{}
	pub := &recordingPublisher{}
	syncer := NewSyncer(svc, pub, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := config.WatchPresets(ctx, path, 10*time.Millisecond, zerolog.Nop(), func(cfg *config.PresetsConfig) {
		syncer.Update(ctx, cfg)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"svc-a"}, svc.Saved(), "initial load is applied before WatchPresets returns")

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("presets:\n  - service_item_id: svc-b\n"), 0o600))
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool {
		saved := svc.Saved()
		return len(saved) == 2 && saved[1] == "svc-b"
	}, 2*time.Second, 10*time.Millisecond)
	require.NotNil(t, syncer.Config())
	assert.Equal(t, "svc-b", syncer.Config().Presets[0].ServiceItemID)
}

func TestSchedulerAdd(t *testing.T) {
	s := NewScheduler(time.UTC, zerolog.Nop())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("presets", "@every 15m", noop))
	assert.Error(t, s.Add("presets", "@every 1m", noop), "duplicate name")
	assert.Error(t, s.Add("bad", "not a schedule", noop))

	_, ok := s.Next("missing")
	assert.False(t, ok)

	next, ok := s.Next("presets")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), next, 2*time.Second)
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := NewScheduler(time.UTC, zerolog.Nop())
	var calls atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("logged, not fatal")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool {
		next, ok := s.Next("tick")
		return ok && !next.IsZero()
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	s.Stop()
}
