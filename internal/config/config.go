package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Offset modes for converting exception dates.
const (
	OffsetModeCurrent = "current"
	OffsetModeZone    = "zone"
)

type Config struct {
	Server struct {
		HTTPPort            int `yaml:"http_port"`
		ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	Backend struct {
		BaseURL         string  `yaml:"base_url"`
		APIKey          string  `yaml:"api_key"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
		RatePerSecond   float64 `yaml:"rate_per_second"`
		Burst           int     `yaml:"burst"`
		CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	} `yaml:"backend"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Database struct {
		Path                string `yaml:"path"`
		RetentionDays       int    `yaml:"retention_days"`
		BackupDir           string `yaml:"backup_dir"`
		BackupSchedule      string `yaml:"backup_schedule"`
		BackupRetentionDays int    `yaml:"backup_retention_days"`
	} `yaml:"database"`

	Availability struct {
		DefaultTimezone string `yaml:"default_timezone"`
		OffsetMode      string `yaml:"offset_mode"`
	} `yaml:"availability"`

	Presets struct {
		Enabled              bool   `yaml:"enabled"`
		Path                 string `yaml:"path"`
		Schedule             string `yaml:"schedule"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"presets"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 30
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 10
	}
	if c.Backend.Burst <= 0 {
		c.Backend.Burst = 1
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/hospadmin.db"
	}
	if c.Database.RetentionDays <= 0 {
		c.Database.RetentionDays = 90
	}
	if c.Database.BackupSchedule == "" {
		c.Database.BackupSchedule = "@daily"
	}
	if c.Database.BackupRetentionDays <= 0 {
		c.Database.BackupRetentionDays = 14
	}
	if c.Availability.DefaultTimezone == "" {
		c.Availability.DefaultTimezone = "Asia/Kolkata"
	}
	if c.Availability.OffsetMode == "" {
		c.Availability.OffsetMode = OffsetModeCurrent
	}
	if c.Presets.Path == "" {
		c.Presets.Path = "configs/presets.yaml"
	}
	if c.Presets.Schedule == "" {
		c.Presets.Schedule = "@every 15m"
	}
	if c.Presets.WatchIntervalSeconds <= 0 {
		c.Presets.WatchIntervalSeconds = 30
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.RatePerSecond < 0 {
		return fmt.Errorf("backend.rate_per_second cannot be negative")
	}
	switch c.Availability.OffsetMode {
	case OffsetModeCurrent, OffsetModeZone:
	default:
		return fmt.Errorf("availability.offset_mode: unknown mode '%s', expected current or zone", c.Availability.OffsetMode)
	}
	if _, err := time.LoadLocation(c.Availability.DefaultTimezone); err != nil {
		return fmt.Errorf("availability.default_timezone: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Backend.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Backend.CacheTTLSeconds) * time.Second
}

func (c *Config) PresetsWatchInterval() time.Duration {
	return time.Duration(c.Presets.WatchIntervalSeconds) * time.Second
}

func (c *Config) SnapshotRetention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	return time.Duration(c.Database.BackupRetentionDays) * 24 * time.Hour
}

// LogLevel returns the configured level, info when unparseable.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
