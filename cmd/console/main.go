package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hospadmin/internal/api"
	"hospadmin/internal/availability"
	"hospadmin/internal/calendarapi"
	"hospadmin/internal/config"
	"hospadmin/internal/db"
	"hospadmin/internal/events"
	"hospadmin/internal/metrics"
	"hospadmin/internal/presets"
)

const pruneSchedule = "@daily"

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("read .env")
	}

	cfg, err := config.Load(os.Getenv("CONSOLE_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = logger.Level(cfg.LogLevel())

	database, err := db.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	client := calendarapi.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey,
		calendarapi.WithTimeout(cfg.BackendTimeout()),
		calendarapi.WithRateLimit(cfg.Backend.RatePerSecond, cfg.Backend.Burst),
		calendarapi.WithLogger(logger),
	)
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	bus := events.NewEventBus(logger)
	subscribeAudit(bus, logger)

	offsets := availability.NewOffsets(cfg.Availability.OffsetMode, cfg.Availability.DefaultTimezone)
	svc := availability.New(client, database, bus, offsets, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Availability.DefaultTimezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("load default timezone")
	}
	scheduler := presets.NewScheduler(loc, logger)
	err = scheduler.Add("prune-snapshots", pruneSchedule, func(ctx context.Context) error {
		n, err := database.PruneSnapshots(ctx, time.Now().Add(-cfg.SnapshotRetention()))
		if err != nil {
			return err
		}
		logger.Info().Int64("deleted", n).Msg("snapshots pruned")
		return nil
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("schedule prune")
	}

	if cfg.Database.BackupDir != "" {
		err = scheduler.Add("backup-journal", cfg.Database.BackupSchedule, func(ctx context.Context) error {
			now := time.Now()
			path, err := database.Backup(ctx, cfg.Database.BackupDir, now)
			if err != nil {
				return err
			}
			removed, err := db.CleanupBackups(cfg.Database.BackupDir, now.Add(-cfg.BackupRetention()))
			logger.Info().Str("path", path).Int("removed", removed).Msg("journal backed up")
			return err
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("schedule backup")
		}
	}

	if cfg.Presets.Enabled {
		syncer := presets.NewSyncer(svc, bus, logger)
		if err := config.WatchPresets(ctx, cfg.Presets.Path, cfg.PresetsWatchInterval(), logger, func(pc *config.PresetsConfig) {
			syncer.Update(ctx, pc)
		}); err != nil {
			logger.Fatal().Err(err).Msg("load presets")
		}
		err = scheduler.Add("presets", cfg.Presets.Schedule, func(ctx context.Context) error {
			_, err := syncer.Run(ctx)
			return err
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("schedule presets")
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, client, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	handler := api.NewHandler(svc, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().
		Str("addr", srv.Addr).
		Str("backend", cfg.Backend.BaseURL).
		Str("offset_mode", offsets.Mode()).
		Bool("presets", cfg.Presets.Enabled).
		Msg("availability console started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("api server error")
	}
	logger.Info().Msg("availability console stopped")
}

// subscribeAudit logs every domain event as an audit line.
func subscribeAudit(bus *events.EventBus, logger zerolog.Logger) {
	audit := logger.With().Str("component", "audit").Logger()
	handler := func(e events.Event) error {
		audit.Info().Str("type", e.Type).RawJSON("payload", e.Payload).Time("at", e.CreatedAt).Msg("event")
		return nil
	}
	for _, t := range []string{events.TypeCalendarSaved, events.TypeCalendarDeleted, events.TypePresetsSynced} {
		bus.Subscribe(t, handler)
	}
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, backend *calendarapi.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctxPing, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if err := backend.HealthCheck(ctxPing); err != nil {
			http.Error(w, "backend not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
