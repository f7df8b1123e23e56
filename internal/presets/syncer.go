// Package presets applies presets.yaml to the calendar backend.
package presets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"hospadmin/internal/availability"
	"hospadmin/internal/config"
	"hospadmin/internal/db"
	"hospadmin/internal/events"
	"hospadmin/internal/metrics"
	"hospadmin/internal/weekly"
)

// Sync outcomes, also used as metric labels.
const (
	ResultCreated   = "created"
	ResultUpdated   = "updated"
	ResultUnchanged = "unchanged"
	ResultError     = "error"
)

// Service is the part of the availability service the syncer drives.
type Service interface {
	List(ctx context.Context, serviceItemID string) ([]availability.Summary, error)
	Save(ctx context.Context, req availability.SaveRequest) (*availability.SaveResult, error)
}

// Publisher receives the summary of each Apply.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}

// Report counts the outcome of one Apply.
type Report struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

func (r *Report) add(result string) {
	switch result {
	case ResultCreated:
		r.Created++
	case ResultUpdated:
		r.Updated++
	case ResultUnchanged:
		r.Unchanged++
	default:
		r.Failed++
	}
}

// Syncer keeps the calendars of configured service items equal to their presets.
type Syncer struct {
	svc       Service
	publisher Publisher
	logger    zerolog.Logger

	run sync.Mutex // one Apply at a time

	mu  sync.RWMutex
	cfg *config.PresetsConfig
}

// NewSyncer creates a syncer with no config; Run is a no-op until SetConfig.
// publisher may be nil.
func NewSyncer(svc Service, publisher Publisher, logger zerolog.Logger) *Syncer {
	return &Syncer{
		svc:       svc,
		publisher: publisher,
		logger:    logger.With().Str("component", "presets").Logger(),
	}
}

// SetConfig replaces the config used by Run.
func (s *Syncer) SetConfig(cfg *config.PresetsConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Config returns the current config, or nil.
func (s *Syncer) Config() *config.PresetsConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Run applies the current config. The config is read once the previous
// run has finished, so a run never applies a config older than one it follows.
func (s *Syncer) Run(ctx context.Context) (Report, error) {
	s.run.Lock()
	defer s.run.Unlock()

	cfg := s.Config()
	if cfg == nil {
		return Report{}, nil
	}
	return s.apply(ctx, cfg)
}

// Update stores cfg and applies it right away. It matches the WatchPresets
// callback, so a changed presets.yaml does not wait for the next scheduled run.
func (s *Syncer) Update(ctx context.Context, cfg *config.PresetsConfig) {
	s.SetConfig(cfg)
	if _, err := s.Run(ctx); err != nil {
		s.logger.Error().Err(err).Msg("apply reloaded presets failed")
	}
}

// Apply saves every preset of cfg. The calendar of a service item is the
// first one the backend lists; a missing calendar is created. Failures of
// one preset do not stop the others and are joined into the returned error.
func (s *Syncer) Apply(ctx context.Context, cfg *config.PresetsConfig) (Report, error) {
	s.run.Lock()
	defer s.run.Unlock()
	return s.apply(ctx, cfg)
}

func (s *Syncer) apply(ctx context.Context, cfg *config.PresetsConfig) (Report, error) {
	var (
		report Report
		errs   []error
	)
	for i := range cfg.Presets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p := &cfg.Presets[i]
		result, err := s.applyOne(ctx, cfg, p)
		report.add(result)
		metrics.IncPresetSync(result)
		if err != nil {
			errs = append(errs, fmt.Errorf("preset %s: %w", p.ServiceItemID, err))
			s.logger.Error().Err(err).Str("service_item_id", p.ServiceItemID).Msg("preset sync failed")
		}
	}

	s.logger.Info().
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("failed", report.Failed).
		Msg("presets applied")
	if s.publisher != nil {
		payload := events.PresetsSynced(report)
		if err := s.publisher.PublishJSON(events.TypePresetsSynced, payload); err != nil {
			s.logger.Warn().Err(err).Msg("publish presets.synced failed")
		}
	}
	return report, errors.Join(errs...)
}

func (s *Syncer) applyOne(ctx context.Context, cfg *config.PresetsConfig, p *config.PresetConfig) (string, error) {
	if p.Policy == nil {
		return ResultError, errors.New("preset has no policy")
	}

	existing, err := s.svc.List(ctx, p.ServiceItemID)
	if err != nil {
		return ResultError, err
	}

	req := availability.SaveRequest{
		ServiceItemID: p.ServiceItemID,
		IsActive:      p.Active(),
		Policy:        *p.Policy,
		WeeklyText:    weekly.Format(p.Weekly),
		Exceptions:    cfg.Drafts(p),
		Source:        db.SourcePreset,
	}
	if len(existing) > 0 {
		req.CalendarID = existing[0].Calendar.ID
	}

	res, err := s.svc.Save(ctx, req)
	if err != nil {
		return ResultError, err
	}

	logger := s.logger.With().
		Str("service_item_id", p.ServiceItemID).
		Str("calendar_id", res.Calendar.ID).
		Logger()
	switch {
	case res.Created:
		logger.Info().Str("label", p.Label).Msg("preset calendar created")
		return ResultCreated, nil
	case res.Changed():
		logger.Info().Str("label", p.Label).Msg("preset calendar updated")
		return ResultUpdated, nil
	default:
		logger.Debug().Msg("preset calendar unchanged")
		return ResultUnchanged, nil
	}
}
