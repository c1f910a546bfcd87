package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Mods.Dir != "mods" {
		t.Errorf("Mods.Dir = %q, want mods", cfg.Mods.Dir)
	}
	if cfg.Events.AsyncTimeout != 0 {
		t.Errorf("Events.AsyncTimeout = %v, want 0", cfg.Events.AsyncTimeout)
	}
	if !cfg.Mods.AutoActivate {
		t.Error("Mods.AutoActivate = false, want true")
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "modhost.toml", `
[log]
level = "debug"

[mods]
dir = "/srv/mods"
watch = true
debounce = "300ms"
disabled = ["experimental"]

[mods.config.auto-save]
interval = 10

[events]
async_timeout = "2s"

[tracing]
enabled = true
endpoint = "collector:4318"
`)

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Log.Prefix != "modhost" {
		t.Errorf("Log.Prefix = %q, want default modhost", cfg.Log.Prefix)
	}
	if cfg.Mods.Dir != "/srv/mods" || !cfg.Mods.Watch {
		t.Errorf("Mods = %+v", cfg.Mods)
	}
	if cfg.Mods.Debounce.Std() != 300*time.Millisecond {
		t.Errorf("Mods.Debounce = %v, want 300ms", cfg.Mods.Debounce)
	}
	if len(cfg.Mods.Disabled) != 1 || cfg.Mods.Disabled[0] != "experimental" {
		t.Errorf("Mods.Disabled = %v", cfg.Mods.Disabled)
	}
	if got := cfg.Mods.Config["auto-save"]["interval"]; got != int64(10) {
		t.Errorf("Mods.Config[auto-save][interval] = %v (%T), want 10", got, got)
	}
	if cfg.Events.AsyncTimeout.Std() != 2*time.Second {
		t.Errorf("Events.AsyncTimeout = %v, want 2s", cfg.Events.AsyncTimeout)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Endpoint != "collector:4318" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "modhost.yaml", `
log:
  level: warn
mods:
  dir: ./plugins
  exec_timeout: 750ms
  reloads_per_minute: 5
events:
  async_timeout: 1m
`)

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Mods.Dir != "./plugins" {
		t.Errorf("Mods.Dir = %q", cfg.Mods.Dir)
	}
	if cfg.Mods.ExecTimeout.Std() != 750*time.Millisecond {
		t.Errorf("Mods.ExecTimeout = %v", cfg.Mods.ExecTimeout)
	}
	if cfg.Mods.ReloadsPerMinute != 5 {
		t.Errorf("Mods.ReloadsPerMinute = %d, want 5", cfg.Mods.ReloadsPerMinute)
	}
	if cfg.Events.AsyncTimeout.Std() != time.Minute {
		t.Errorf("Events.AsyncTimeout = %v", cfg.Events.AsyncTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "modhost.toml", "[mods]\ndir = \"from-file\"\n")

	t.Setenv("MODHOST_MODS_DIR", "from-env")
	t.Setenv("MODHOST_MODS_DISABLED", "a,b")
	t.Setenv("MODHOST_EVENTS_ASYNC_TIMEOUT", "3s")
	t.Setenv("MODHOST_LOG_LEVEL", "trace")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mods.Dir != "from-env" {
		t.Errorf("Mods.Dir = %q, want from-env", cfg.Mods.Dir)
	}
	if len(cfg.Mods.Disabled) != 2 || cfg.Mods.Disabled[1] != "b" {
		t.Errorf("Mods.Disabled = %v, want [a b]", cfg.Mods.Disabled)
	}
	if cfg.Events.AsyncTimeout.Std() != 3*time.Second {
		t.Errorf("Events.AsyncTimeout = %v, want 3s", cfg.Events.AsyncTimeout)
	}
	if cfg.Log.Level != "trace" {
		t.Errorf("Log.Level = %q, want trace", cfg.Log.Level)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, "test.env", "MODHOST_TRACING_SERVICE_NAME=from-dotenv\n")
	// godotenv sets the variable in the process; t.Setenv restores it.
	t.Setenv("MODHOST_TRACING_SERVICE_NAME", "")
	os.Unsetenv("MODHOST_TRACING_SERVICE_NAME")

	cfg, err := Load("", envFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tracing.ServiceName != "from-dotenv" {
		t.Errorf("Tracing.ServiceName = %q, want from-dotenv", cfg.Tracing.ServiceName)
	}
}

func TestLoad_Errors(t *testing.T) {
	missingEnv := filepath.Join(t.TempDir(), "missing.env")

	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml"), missingEnv); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("missing file error = %v, want ErrFileNotFound", err)
	}

	ini := writeFile(t, "modhost.ini", "x=1")
	if _, err := Load(ini, missingEnv); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ini error = %v, want ErrUnsupportedFormat", err)
	}

	bad := writeFile(t, "bad.toml", "[mods\n")
	_, err := Load(bad, missingEnv)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("bad toml error = %v, want ParseError", err)
	}

	badDuration := writeFile(t, "dur.yaml", "mods:\n  debounce: soon\n")
	if _, err := Load(badDuration, missingEnv); !errors.As(err, &pe) {
		t.Errorf("bad duration error = %v, want ParseError", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"mods dir", func(c *Config) { c.Mods.Dir = " " }, "mods.dir"},
		{"debounce", func(c *Config) { c.Mods.Debounce = -1 }, "mods.debounce"},
		{"async timeout", func(c *Config) { c.Events.AsyncTimeout = -1 }, "events.async_timeout"},
		{"tracing endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Endpoint = "" }, "tracing.endpoint"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("Validate() error = %v, want ErrValidationFailed", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("Validate() field = %v, want %s", ve, tt.field)
			}
		})
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Std() = %v, want 1m30s", d.Std())
	}
	text, _ := d.MarshalText()
	if string(text) != "1m30s" {
		t.Errorf("MarshalText() = %q", text)
	}
	if err := d.UnmarshalText([]byte("later")); err == nil {
		t.Error("UnmarshalText(later) error = nil")
	}
}
