// Package config loads statevault settings.
//
// Precedence, lowest first: DefaultConfig, the TOML file, STATEVAULT_*
// environment variables, then CLI flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/HendryAvila/statevault/internal/logging"
	"github.com/HendryAvila/statevault/internal/storage"
	"github.com/HendryAvila/statevault/internal/telemetry"
)

// FileName is the config file looked up inside the data directory.
const FileName = "config.toml"

// DefaultMetricsAddr is where /metrics is served when metrics are enabled.
const DefaultMetricsAddr = "127.0.0.1:9464"

// Config holds every runtime setting.
type Config struct {
	Backend        string        `toml:"backend"`
	DataDir        string        `toml:"data_dir"`
	FixtureURL     string        `toml:"fixture_url"`
	FixtureTimeout time.Duration `toml:"fixture_timeout"`
	LogLevel       string        `toml:"log_level"`
	LogFormat      string        `toml:"log_format"`
	LogFile        string        `toml:"log_file"`
	Metrics        bool          `toml:"metrics"`
	MetricsAddr    string        `toml:"metrics_addr"`
	TraceExporter  string        `toml:"trace_exporter"`
}

// DefaultConfig returns the defaults: SQLite under ~/.statevault.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Backend:        storage.BackendSQLite,
		DataDir:        filepath.Join(home, ".statevault"),
		FixtureURL:     storage.DefaultFixtureURL,
		FixtureTimeout: storage.DefaultFixtureTimeout,
		LogLevel:       "info",
		LogFormat:      logging.FormatText,
		MetricsAddr:    DefaultMetricsAddr,
		TraceExporter:  telemetry.TraceExporterNone,
	}
}

// DefaultPath is the config file inside the default data directory.
func DefaultPath() string {
	return filepath.Join(DefaultConfig().DataDir, FileName)
}

// Load reads path over DefaultConfig and applies environment overrides.
// A missing file is not an error. An empty path means DefaultPath().
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, replacing the file atomically.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("config: writing temp file: %w", err)
	}
	if _, err := f.WriteString("# statevault configuration\n\n"); err != nil {
		f.Close()
		return fmt.Errorf("config: writing header: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("config: encoding: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("config: closing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("config: finalizing: %w", err)
	}
	return nil
}

// Environment variables read by Load.
const (
	EnvBackend        = "STATEVAULT_BACKEND"
	EnvDataDir        = "STATEVAULT_DATA_DIR"
	EnvFixtureURL     = "STATEVAULT_FIXTURE_URL"
	EnvFixtureTimeout = "STATEVAULT_FIXTURE_TIMEOUT"
	EnvLogLevel       = "STATEVAULT_LOG_LEVEL"
	EnvLogFormat      = "STATEVAULT_LOG_FORMAT"
	EnvLogFile        = "STATEVAULT_LOG_FILE"
	EnvMetrics        = "STATEVAULT_METRICS"
	EnvMetricsAddr    = "STATEVAULT_METRICS_ADDR"
	EnvTraceExporter  = "STATEVAULT_TRACE_EXPORTER"
)

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvBackend:       &c.Backend,
		EnvDataDir:       &c.DataDir,
		EnvFixtureURL:    &c.FixtureURL,
		EnvLogLevel:      &c.LogLevel,
		EnvLogFormat:     &c.LogFormat,
		EnvLogFile:       &c.LogFile,
		EnvMetricsAddr:   &c.MetricsAddr,
		EnvTraceExporter: &c.TraceExporter,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup(EnvFixtureTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvFixtureTimeout, err)
		}
		c.FixtureTimeout = d
	}
	if v, ok := lookup(EnvMetrics); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMetrics, err)
		}
		c.Metrics = b
	}
	return nil
}

// Validate checks values Load cannot check while decoding.
func (c Config) Validate() error {
	if !slices.Contains(storage.Backends, c.Backend) {
		return fmt.Errorf("config: unknown backend %q (want one of %v)", c.Backend, storage.Backends)
	}
	if c.DataDir == "" && c.Backend != storage.BackendNetwork && c.Backend != storage.BackendMemory {
		return fmt.Errorf("config: data_dir is required for the %s backend", c.Backend)
	}
	if c.FixtureTimeout <= 0 {
		return fmt.Errorf("config: fixture_timeout must be positive, got %s", c.FixtureTimeout)
	}
	if c.Metrics && c.MetricsAddr == "" {
		return fmt.Errorf("config: metrics_addr is required when metrics are enabled")
	}
	if c.TraceExporter != "" && !slices.Contains(telemetry.TraceExporters, c.TraceExporter) {
		return fmt.Errorf("config: unknown trace_exporter %q (want one of %v)", c.TraceExporter, telemetry.TraceExporters)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.LogFormat != "" && c.LogFormat != logging.FormatText && c.LogFormat != logging.FormatJSON {
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	return nil
}

// LoggingConfig maps the log settings onto logging.Config.
func (c Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile}
}

// TracingConfig maps the trace settings onto telemetry.TracingConfig.
func (c Config) TracingConfig(version string) telemetry.TracingConfig {
	return telemetry.TracingConfig{
		ServiceName:    "statevault",
		ServiceVersion: version,
		Exporter:       c.TraceExporter,
	}
}

// StorageOptions maps the storage settings onto storage.OpenOptions.
func (c Config) StorageOptions() storage.OpenOptions {
	return storage.OpenOptions{
		Backend:        c.Backend,
		DataDir:        c.DataDir,
		FixtureURL:     c.FixtureURL,
		FixtureTimeout: c.FixtureTimeout,
	}
}
