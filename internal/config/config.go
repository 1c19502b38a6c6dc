package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"kitehostel/internal/schedule"
)

const (
	DefaultPath = "configs/config.yaml"
	PathEnv     = "WHITEBOARD_CONFIG_PATH"
)

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours" validate:"gte=0"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days" validate:"gte=0"`
}

// Interval between scheduled backups, 24h by default.
func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address" validate:"required_if=Enabled true"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`

	Cache struct {
		TTLSeconds int `yaml:"ttl_seconds" validate:"gte=0"`
	} `yaml:"cache"`

	Schedule struct {
		OverlapPolicy      string `yaml:"overlap_policy" validate:"omitempty,oneof=clamp reject"`
		MinDurationMinutes int    `yaml:"min_duration_minutes" validate:"gte=0,lte=1440"`
	} `yaml:"schedule"`

	API struct {
		Enabled           bool    `yaml:"enabled"`
		Port              int     `yaml:"port" validate:"gte=0,lte=65535"`
		RatePerSecond     float64 `yaml:"rate_per_second" validate:"gte=0"`
		Burst             int     `yaml:"burst" validate:"gte=0"`
		SessionTTLMinutes int     `yaml:"session_ttl_minutes" validate:"gte=0"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port" validate:"gte=0,lte=65535"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port" validate:"gte=0,lte=65535"`
	} `yaml:"monitoring"`

	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	} `yaml:"log"`

	// WatchIntervalSeconds controls how often the file is polled for changes.
	WatchIntervalSeconds int `yaml:"watch_interval_seconds" validate:"gte=0"`
}

var validate = validator.New()

// PathFromEnv returns the config path from the environment or the default.
func PathFromEnv() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML config at path. A .env file next to the working
// directory is loaded first so ${ENV_VAR} placeholders can refer to it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err = validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/whiteboard.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SchedulePolicy builds the edit policy, defaulting to clamping with a
// 30 minute minimum duration.
func (c *Config) SchedulePolicy() schedule.Policy {
	p := schedule.DefaultPolicy()
	if c.Schedule.OverlapPolicy != "" {
		p.Overlap = schedule.OverlapPolicy(c.Schedule.OverlapPolicy)
	}
	if c.Schedule.MinDurationMinutes > 0 {
		p.MinDurationMinutes = c.Schedule.MinDurationMinutes
	}
	return p
}

func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) APIPort() int {
	if c.API.Port <= 0 {
		return 8080
	}
	return c.API.Port
}

// APIRate returns the per-client request rate and burst.
func (c *Config) APIRate() (float64, int) {
	rps, burst := c.API.RatePerSecond, c.API.Burst
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return rps, burst
}

// SessionTTL is how long an idle edit session stays open.
func (c *Config) SessionTTL() time.Duration {
	if c.API.SessionTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.API.SessionTTLMinutes) * time.Minute
}

func (c *Config) HealthPort() int {
	if c.Monitoring.HealthCheckPort <= 0 {
		return 8081
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) MetricsPort() int {
	if c.Monitoring.PrometheusPort <= 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}

func (c *Config) LogLevel() string {
	if c.Log.Level == "" {
		return "info"
	}
	return c.Log.Level
}

func (c *Config) WatchInterval() time.Duration {
	if c.WatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.WatchIntervalSeconds) * time.Second
}
