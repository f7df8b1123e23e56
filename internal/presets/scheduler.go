package presets

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs named background jobs on cron schedules. A job still
// running when its next tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	logger zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	running bool
	entries map[string]cron.EntryID
}

// NewScheduler creates a scheduler evaluating specs in loc.
func NewScheduler(loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(
				cron.Recover(cron.PrintfLogger(&logger)),
				cron.SkipIfStillRunning(cron.PrintfLogger(&logger)),
			),
		),
		loc:     loc,
		logger:  logger,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers fn under name. spec accepts the standard five-field format
// and descriptors such as "@every 15m" or "@daily".
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("job %q already scheduled", name)
	}

	id, err := s.cron.AddFunc(spec, func() {
		s.runJob(name, fn)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.entries[name] = id
	s.logger.Info().Str("job", name).Str("schedule", spec).Msg("job scheduled")
	return nil
}

// Next returns the next run time of a job after now. It does not depend on
// the scheduler having started.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if entry.Schedule == nil {
		return time.Time{}, false
	}
	return entry.Schedule.Next(time.Now().In(s.loc)), true
}

// Start runs the scheduler until ctx is cancelled. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	s.mu.Lock()
	names := slices.Sorted(maps.Keys(s.entries))
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Int("jobs", len(names)).Msg("scheduler started")
	for _, name := range names {
		if next, ok := s.Next(name); ok {
			s.logger.Info().Str("job", name).Time("next_run", next).Msg("job pending")
		}
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runJob(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", name).Dur("duration", time.Since(start)).Msg("job failed")
		return
	}
	s.logger.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("job finished")
}
