package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	plua "github.com/dshills/modhost/internal/plugin/lua"
)

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		wantErr  error
	}{
		{
			name:     "valid",
			manifest: Manifest{Name: "auto-save", Version: "1.0.0", Main: "init.lua"},
		},
		{
			name:     "single letter name",
			manifest: Manifest{Name: "a", Version: "1.0.0", Main: "init.lua"},
		},
		{
			name:     "prerelease version",
			manifest: Manifest{Name: "a", Version: "1.0.0-beta.1+build", Main: "init.lua"},
		},
		{
			name:     "missing name",
			manifest: Manifest{Version: "1.0.0", Main: "init.lua"},
			wantErr:  ErrMissingName,
		},
		{
			name:     "uppercase name",
			manifest: Manifest{Name: "AutoSave", Version: "1.0.0", Main: "init.lua"},
			wantErr:  ErrInvalidName,
		},
		{
			name:     "trailing hyphen",
			manifest: Manifest{Name: "auto-", Version: "1.0.0", Main: "init.lua"},
			wantErr:  ErrInvalidName,
		},
		{
			name:     "missing version",
			manifest: Manifest{Name: "a", Main: "init.lua"},
			wantErr:  ErrMissingVersion,
		},
		{
			name:     "bad version",
			manifest: Manifest{Name: "a", Version: "v1", Main: "init.lua"},
			wantErr:  ErrInvalidVersion,
		},
		{
			name:     "main escapes mod dir",
			manifest: Manifest{Name: "a", Version: "1.0.0", Main: "../evil.lua"},
			wantErr:  ErrInvalidMain,
		},
		{
			name:     "main not lua",
			manifest: Manifest{Name: "a", Version: "1.0.0", Main: "init.js"},
			wantErr:  ErrInvalidMain,
		},
		{
			name: "unknown capability",
			manifest: Manifest{Name: "a", Version: "1.0.0", Main: "init.lua",
				Capabilities: []plua.Capability{"network"}},
			wantErr: ErrInvalidCapability,
		},
		{
			name: "bad config type",
			manifest: Manifest{Name: "a", Version: "1.0.0", Main: "init.lua",
				ConfigSchema: map[string]ConfigProperty{"x": {Type: "integer"}}},
			wantErr: ErrInvalidConfigType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.manifest.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	data := `{
    "name": "auto-save",
    "displayName": "Auto Save",
    "capabilities": ["event", "env"],
    "configSchema": {
        "interval": {"type": "number", "default": 30},
        "label": {"type": "string"}
    }
}`
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifestFromDir(dir)
	if err != nil {
		t.Fatalf("LoadManifestFromDir() error = %v", err)
	}

	if m.Version != "0.0.0" || m.Main != DefaultMain {
		t.Errorf("defaults not applied: version %q main %q", m.Version, m.Main)
	}
	if m.Path() != dir {
		t.Errorf("Path() = %q, want %q", m.Path(), dir)
	}
	if m.MainPath() != filepath.Join(dir, DefaultMain) {
		t.Errorf("MainPath() = %q", m.MainPath())
	}
	if !m.HasCapability(plua.CapabilityEnv) || m.HasCapability(plua.CapabilityUnsafe) {
		t.Errorf("HasCapability() wrong for %v", m.Capabilities)
	}
	if m.String() != "Auto Save v0.0.0" {
		t.Errorf("String() = %q", m.String())
	}

	defaults := m.ConfigDefaults()
	if len(defaults) != 1 || defaults["interval"] != float64(30) {
		t.Errorf("ConfigDefaults() = %v", defaults)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadManifestFromDir(dir); err == nil {
		t.Error("LoadManifestFromDir() on empty dir should fail")
	}

	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifestFromDir(dir); err == nil {
		t.Error("LoadManifestFromDir() with bad JSON should fail")
	}

	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(`{"name": "Bad"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifestFromDir(dir); !errors.Is(err, ErrInvalidName) {
		t.Errorf("LoadManifestFromDir() error = %v, want ErrInvalidName", err)
	}
}

func TestNewManifestMinimal(t *testing.T) {
	m := NewManifestMinimal("tiny", "/mods/tiny")

	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !m.HasCapability(plua.CapabilityEvent) {
		t.Error("minimal manifest lacks the event capability")
	}
	if m.String() != "tiny v0.0.0" {
		t.Errorf("String() = %q", m.String())
	}
}
