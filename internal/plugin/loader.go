package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader discovers mods in a single directory. Each mod is either a
// subdirectory (with mod.json or init.lua) or a single name.lua file.
type Loader struct {
	dir string
}

// ModInfo describes a discovered mod.
type ModInfo struct {
	Name     string
	Path     string
	Manifest *Manifest
	Err      error
}

// NewLoader creates a loader for dir. Relative directories are made
// absolute so paths reported by a file watcher can be mapped back.
func NewLoader(dir string) *Loader {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Loader{dir: dir}
}

// Dir returns the directory the loader searches.
func (l *Loader) Dir() string {
	return l.dir
}

// Discover lists the mods in the directory, sorted by name. A missing
// directory yields no mods. Mods with invalid manifests are returned with
// Err set.
func (l *Loader) Discover() ([]*ModInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read mods dir: %w", err)
	}

	found := make(map[string]*ModInfo)
	for _, entry := range entries {
		if entry.IsDir() {
			info := l.inspectDir(entry.Name(), filepath.Join(l.dir, entry.Name()))
			found[info.Name] = info
		}
	}
	// Directory mods win over single files of the same name.
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".lua")
		if _, exists := found[name]; !exists {
			found[name] = l.singleFile(name)
		}
	}

	mods := make([]*ModInfo, 0, len(found))
	for _, info := range found {
		mods = append(mods, info)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })
	return mods, nil
}

// Find locates one mod by name.
func (l *Loader) Find(name string) (*ModInfo, error) {
	dir := filepath.Join(l.dir, name)
	if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
		info := l.inspectDir(name, dir)
		if info.Err != nil {
			return nil, fmt.Errorf("mod %q: %w", name, info.Err)
		}
		return info, nil
	}

	if _, err := os.Stat(filepath.Join(l.dir, name+".lua")); err == nil {
		return l.singleFile(name), nil
	}

	// The manifest name may differ from the directory name.
	mods, err := l.Discover()
	if err != nil {
		return nil, err
	}
	for _, info := range mods {
		if info.Name == name && info.Err == nil {
			return info, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrModNotFound, name)
}

// ModFor maps a path inside the directory to the name of the mod that owns
// it. Reports false for paths outside any mod.
func (l *Loader) ModFor(path string) (string, bool) {
	rel, err := filepath.Rel(l.dir, path)
	if err != nil || rel == "." || !filepath.IsLocal(rel) {
		return "", false
	}
	first, rest, nested := strings.Cut(filepath.ToSlash(rel), "/")
	if nested && rest != "" {
		return first, true
	}
	if filepath.Ext(first) == ".lua" {
		return strings.TrimSuffix(first, ".lua"), true
	}
	return first, true
}

func (l *Loader) inspectDir(name, path string) *ModInfo {
	info := &ModInfo{Name: name, Path: path}

	if _, err := os.Stat(filepath.Join(path, ManifestFile)); err == nil {
		manifest, err := LoadManifestFromDir(path)
		if err != nil {
			info.Err = fmt.Errorf("invalid manifest: %w", err)
			return info
		}
		info.Manifest = manifest
		info.Name = manifest.Name
		return info
	}

	if _, err := os.Stat(filepath.Join(path, DefaultMain)); err == nil {
		info.Manifest = NewManifestMinimal(name, path)
		if err := info.Manifest.Validate(); err != nil {
			info.Err = err
			info.Manifest = nil
		}
		return info
	}

	info.Err = ErrNoEntryPoint
	return info
}

func (l *Loader) singleFile(name string) *ModInfo {
	manifest := NewManifestMinimal(name, l.dir)
	manifest.Main = name + ".lua"
	info := &ModInfo{Name: name, Path: l.dir, Manifest: manifest}
	if err := manifest.Validate(); err != nil {
		info.Err = err
		info.Manifest = nil
	}
	return info
}
