package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stockdash dashboard.
type Config struct {
	Server        Server        `yaml:"server"`
	Backend       Backend       `yaml:"backend"`
	Storage       Storage       `yaml:"storage"`
	Logging       Logging       `yaml:"logging"`
	Table         Table         `yaml:"table"`
	Batch         Batch         `yaml:"batch"`
	Refresh       Refresh       `yaml:"refresh"`
	Notifications Notifications `yaml:"notifications"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Backend points at the stock-data REST API the dashboard drives.
type Backend struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Storage holds paths for local persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
	HistoryDir string `yaml:"history_dir"` // parquet cache of price history
	ExportDir  string `yaml:"export_dir"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Table controls the defaults of every table widget.
type Table struct {
	PageSizes       []int  `yaml:"page_sizes"`
	DefaultPageSize int    `yaml:"default_page_size"`
	Locale          string `yaml:"locale"`
	Currency        string `yaml:"currency"`
}

// Batch controls multi-ticker operations.
type Batch struct {
	MaxWorkers      int `yaml:"max_workers"`
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
}

// Refresh schedules the unattended "download all" job. An empty schedule
// disables it.
type Refresh struct {
	Schedule      string `yaml:"schedule"`
	RetryAttempts int    `yaml:"retry_attempts"`
}

// Notifications configures the notification manager and activity log.
type Notifications struct {
	MaxVisible        int `yaml:"max_visible"`
	DefaultDurationMS int `yaml:"default_duration_ms"`
	ActivityLimit     int `yaml:"activity_limit"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	return cfg, nil
}

// Defaults returns a configuration usable without a file, still honouring
// environment overrides.
func Defaults() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:5000"
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 30
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "stockdash.db"
	}
	if c.Storage.HistoryDir == "" {
		c.Storage.HistoryDir = "history"
	}
	if c.Storage.ExportDir == "" {
		c.Storage.ExportDir = os.TempDir()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if len(c.Table.PageSizes) == 0 {
		c.Table.PageSizes = []int{10, 25, 50, 100}
	}
	if c.Table.DefaultPageSize == 0 {
		c.Table.DefaultPageSize = 25
	}
	if c.Table.Locale == "" {
		c.Table.Locale = "en"
	}
	if c.Table.Currency == "" {
		c.Table.Currency = "USD"
	}
	if c.Batch.MaxWorkers <= 0 {
		c.Batch.MaxWorkers = 1
	}
	if c.Batch.RateLimitPerMin <= 0 {
		c.Batch.RateLimitPerMin = 300 // one request every 200ms
	}
	if c.Refresh.RetryAttempts <= 0 {
		c.Refresh.RetryAttempts = 3
	}
	if c.Notifications.MaxVisible <= 0 {
		c.Notifications.MaxVisible = 5
	}
	if c.Notifications.DefaultDurationMS <= 0 {
		c.Notifications.DefaultDurationMS = 4000
	}
	if c.Notifications.ActivityLimit <= 0 {
		c.Notifications.ActivityLimit = 200
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}

	if v := os.Getenv("BACKEND_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutSeconds = n
		}
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("EXPORT_DIR"); v != "" {
		cfg.Storage.ExportDir = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("STOCKDASH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}

	if v := os.Getenv("REFRESH_SCHEDULE"); v != "" {
		cfg.Refresh.Schedule = v
	}
}
