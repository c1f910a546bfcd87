package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	plua "github.com/dshills/modhost/internal/plugin/lua"
)

// ManifestFile is the manifest's file name inside a mod directory.
const ManifestFile = "mod.json"

// DefaultMain is the entry point used when a manifest names none.
const DefaultMain = "init.lua"

// Manifest describes a mod's metadata and requirements.
type Manifest struct {
	// Identity
	Name        string `json:"name"`        // Unique identifier (e.g., "auto-save")
	Version     string `json:"version"`     // Semver (e.g., "1.2.0")
	DisplayName string `json:"displayName"` // Human-readable name
	Description string `json:"description"` // Short description
	Author      string `json:"author"`      // Author name or org

	// Entry point
	Main string `json:"main"` // Relative path to main Lua file (default: "init.lua")

	// Capabilities requested
	Capabilities []plua.Capability `json:"capabilities"`

	// Configuration schema
	ConfigSchema map[string]ConfigProperty `json:"configSchema"`

	// Internal: path to the mod directory
	path string
}

// ConfigProperty describes a configuration option.
type ConfigProperty struct {
	Type        string `json:"type"`        // string, number, boolean, array, object
	Default     any    `json:"default"`     // Default value
	Description string `json:"description"` // Property description
}

// Validation errors.
var (
	ErrMissingName       = errors.New("manifest: name is required")
	ErrInvalidName       = errors.New("manifest: name must be lowercase alphanumeric with hyphens")
	ErrMissingVersion    = errors.New("manifest: version is required")
	ErrInvalidVersion    = errors.New("manifest: version must be valid semver")
	ErrInvalidMain       = errors.New("manifest: main must be a relative .lua file")
	ErrInvalidCapability = errors.New("manifest: invalid capability")
	ErrInvalidConfigType = errors.New("manifest: invalid config property type")
)

// namePattern validates mod names.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// validConfigTypes are the allowed configuration property types.
var validConfigTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// LoadManifest loads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.path = filepath.Dir(path)
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// LoadManifestFromDir loads the manifest of a mod directory.
func LoadManifestFromDir(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, ManifestFile))
}

// NewManifestMinimal creates a manifest for a mod without mod.json. Such
// mods get the event capability and nothing else.
func NewManifestMinimal(name, path string) *Manifest {
	return &Manifest{
		Name:         name,
		Version:      "0.0.0",
		Main:         DefaultMain,
		Capabilities: []plua.Capability{plua.CapabilityEvent},
		path:         path,
	}
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = DefaultMain
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, m.Name)
	}

	if m.Version == "" {
		return ErrMissingVersion
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}

	if filepath.Ext(m.Main) != ".lua" || filepath.IsAbs(m.Main) || !filepath.IsLocal(m.Main) {
		return fmt.Errorf("%w: %s", ErrInvalidMain, m.Main)
	}

	for _, c := range m.Capabilities {
		if !c.IsKnown() {
			return fmt.Errorf("%w: %s", ErrInvalidCapability, c)
		}
	}

	for name, prop := range m.ConfigSchema {
		if prop.Type != "" && !validConfigTypes[prop.Type] {
			return fmt.Errorf("%w: %s.%s has type %q", ErrInvalidConfigType, m.Name, name, prop.Type)
		}
	}

	return nil
}

// Path returns the path to the mod directory.
func (m *Manifest) Path() string {
	return m.path
}

// MainPath returns the full path to the main Lua file.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.path, m.Main)
}

// HasCapability returns true if the mod requests the capability.
func (m *Manifest) HasCapability(c plua.Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// ConfigDefaults returns the default value of every config property that
// declares one.
func (m *Manifest) ConfigDefaults() map[string]any {
	defaults := make(map[string]any)
	for key, prop := range m.ConfigSchema {
		if prop.Default != nil {
			defaults[key] = prop.Default
		}
	}
	return defaults
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	display := m.DisplayName
	if display == "" {
		display = m.Name
	}
	return fmt.Sprintf("%s v%s", display, m.Version)
}
