package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// fileStamp identifies one version of a file on disk.
type fileStamp struct {
	mod  time.Time
	size int64
}

func statFile(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, nil
}

type presetsWatcher struct {
	path     string
	last     fileStamp
	logger   zerolog.Logger
	onUpdate func(*PresetsConfig)
}

// poll reloads the file when its stamp moved. A file that fails to load is
// remembered so the same broken version is not reported on every tick.
func (w *presetsWatcher) poll() {
	stamp, err := statFile(w.path)
	if err != nil || stamp == w.last {
		return
	}
	w.last = stamp

	cfg, err := LoadPresets(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("presets reload failed, keeping previous config")
		return
	}
	w.logger.Info().Str("summary", cfg.String()).Msg("presets reloaded")
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
}

// WatchPresets loads presets.yaml, hands it to onUpdate, then polls the file
// every interval until ctx ends. Only the initial load can fail; later
// failures keep the previous config in effect.
func WatchPresets(ctx context.Context, path string, interval time.Duration, logger zerolog.Logger, onUpdate func(*PresetsConfig)) error {
	if path == "" {
		path = "configs/presets.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	stamp, err := statFile(path)
	if err != nil {
		return err
	}
	cfg, err := LoadPresets(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	w := &presetsWatcher{
		path:     path,
		last:     stamp,
		logger:   logger.With().Str("component", "presets-watch").Str("path", path).Logger(),
		onUpdate: onUpdate,
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
	return nil
}
