package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/modhost/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MODHOST_"

// Config is the complete host configuration.
type Config struct {
	Log     LogConfig     `toml:"log" yaml:"log" envPrefix:"LOG_"`
	Mods    ModsConfig    `toml:"mods" yaml:"mods" envPrefix:"MODS_"`
	Events  EventsConfig  `toml:"events" yaml:"events" envPrefix:"EVENTS_"`
	Tracing TracingConfig `toml:"tracing" yaml:"tracing" envPrefix:"TRACING_"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `toml:"level" yaml:"level" env:"LEVEL"`
	// Prefix is prepended to every log line.
	Prefix string `toml:"prefix" yaml:"prefix" env:"PREFIX"`
}

// ModsConfig configures mod discovery and the Lua runtime.
type ModsConfig struct {
	// Dir holds one subdirectory per mod.
	Dir string `toml:"dir" yaml:"dir" env:"DIR"`
	// Watch enables hot reload when a mod's files change.
	Watch bool `toml:"watch" yaml:"watch" env:"WATCH"`
	// Debounce coalesces bursts of file changes.
	Debounce Duration `toml:"debounce" yaml:"debounce" env:"DEBOUNCE"`
	// ReloadsPerMinute caps reload requests per mod. Zero disables the cap.
	ReloadsPerMinute int `toml:"reloads_per_minute" yaml:"reloads_per_minute" env:"RELOADS_PER_MINUTE"`
	// Disabled lists mods that are never loaded.
	Disabled []string `toml:"disabled" yaml:"disabled" env:"DISABLED" envSeparator:","`
	// AutoActivate activates mods as soon as they load.
	AutoActivate bool `toml:"auto_activate" yaml:"auto_activate" env:"AUTO_ACTIVATE"`
	// MemoryLimit is the advisory Lua memory limit in bytes.
	MemoryLimit int64 `toml:"memory_limit" yaml:"memory_limit" env:"MEMORY_LIMIT"`
	// CallLimit bounds host API calls made during one Lua call. Zero disables the limit.
	CallLimit int64 `toml:"call_limit" yaml:"call_limit" env:"CALL_LIMIT"`
	// ExecTimeout bounds a single Lua call.
	ExecTimeout Duration `toml:"exec_timeout" yaml:"exec_timeout" env:"EXEC_TIMEOUT"`
	// Config overrides the manifest defaults passed to each mod's setup,
	// keyed by mod name. File only.
	Config map[string]map[string]any `toml:"config" yaml:"config"`
}

// EventsConfig configures the event engine.
type EventsConfig struct {
	// AsyncTimeout bounds each awaited handler of an async shape.
	// Zero waits indefinitely.
	AsyncTimeout Duration `toml:"async_timeout" yaml:"async_timeout" env:"ASYNC_TIMEOUT"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	Endpoint    string  `toml:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
	Insecure    bool    `toml:"insecure" yaml:"insecure" env:"INSECURE"`
	ServiceName string  `toml:"service_name" yaml:"service_name" env:"SERVICE_NAME"`
	SampleRatio float64 `toml:"sample_ratio" yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Prefix: "modhost",
		},
		Mods: ModsConfig{
			Dir:              "mods",
			Debounce:         Duration(250 * time.Millisecond),
			ReloadsPerMinute: 30,
			AutoActivate:     true,
			MemoryLimit:      10 * 1024 * 1024,
			CallLimit:        100_000,
			ExecTimeout:      Duration(5 * time.Second),
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "modhost",
			SampleRatio: 1,
		},
	}
}

// Load builds the configuration from defaults, the file at path (skipped
// when path is empty), and the environment. envFiles are loaded into the
// process environment first; missing ones are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := LoadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile decodes the TOML or YAML file at path over cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. With no arguments it loads
// ".env" from the working directory. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with MODHOST_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks every setting.
func (c Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, &ValidationError{Field: "log.level", Message: err.Error()})
	}
	if strings.TrimSpace(c.Mods.Dir) == "" {
		errs = append(errs, &ValidationError{Field: "mods.dir", Message: "must not be empty"})
	}
	if c.Mods.Debounce < 0 {
		errs = append(errs, &ValidationError{Field: "mods.debounce", Message: "must not be negative"})
	}
	if c.Mods.ReloadsPerMinute < 0 {
		errs = append(errs, &ValidationError{Field: "mods.reloads_per_minute", Message: "must not be negative"})
	}
	if c.Mods.MemoryLimit < 0 {
		errs = append(errs, &ValidationError{Field: "mods.memory_limit", Message: "must not be negative"})
	}
	if c.Mods.CallLimit < 0 {
		errs = append(errs, &ValidationError{Field: "mods.call_limit", Message: "must not be negative"})
	}
	if c.Mods.ExecTimeout < 0 {
		errs = append(errs, &ValidationError{Field: "mods.exec_timeout", Message: "must not be negative"})
	}
	if c.Events.AsyncTimeout < 0 {
		errs = append(errs, &ValidationError{Field: "events.async_timeout", Message: "must not be negative"})
	}
	if c.Tracing.Enabled && strings.TrimSpace(c.Tracing.Endpoint) == "" {
		errs = append(errs, &ValidationError{Field: "tracing.endpoint", Message: "required when tracing is enabled"})
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, &ValidationError{Field: "tracing.sample_ratio", Message: "must be between 0 and 1"})
	}

	return errors.Join(errs...)
}
