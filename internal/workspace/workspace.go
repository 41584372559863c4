// Package workspace binds the descriptor pipeline to the filesystem: it
// recovers state from default.nix, renders it back through the merge engine,
// generator and assembler, and writes the result under a lock.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gemologic/mica/internal/config"
	"github.com/gemologic/mica/internal/logbook"
	"github.com/gemologic/mica/internal/preset"
)

var (
	// ErrNoProject reports a project directory without a managed descriptor.
	ErrNoProject = errors.New("workspace: no default.nix found (run mica init)")
	// ErrProjectExists reports an init over an existing descriptor.
	ErrProjectExists = errors.New("workspace: default.nix already exists")
	// ErrNoProfile reports a missing global profile.
	ErrNoProfile = errors.New("workspace: no profile found (run mica -g init)")
	// ErrProfileExists reports an init over an existing profile.
	ErrProfileExists = errors.New("workspace: profile already exists")
)

// Workspace is one project directory plus the user configuration.
type Workspace struct {
	dir        string
	cfg        *config.Config
	log        *logbook.Logbook
	now        func() time.Time
	name       string
	presetDirs []string
	catalog    *preset.Catalog
}

// Option customizes a Workspace during construction.
type Option func(*Workspace)

// WithClock overrides the clock used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(w *Workspace) {
		if clock != nil {
			w.now = clock
		}
	}
}

// WithLogbook records operations to book.
func WithLogbook(book *logbook.Logbook) Option {
	return func(w *Workspace) {
		w.log = book
	}
}

// WithProjectName overrides the descriptor's name attribute, which defaults
// to the directory name.
func WithProjectName(name string) Option {
	return func(w *Workspace) {
		if name != "" {
			w.name = name
		}
	}
}

// WithPresetDirs replaces the preset search path.
func WithPresetDirs(dirs ...string) Option {
	return func(w *Workspace) {
		w.presetDirs = dirs
	}
}

// Open prepares a workspace rooted at dir.
func Open(dir string, cfg *config.Config, opts ...Option) (*Workspace, error) {
	if cfg == nil {
		return nil, fmt.Errorf("workspace: nil config")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve %s: %w", dir, err)
	}
	w := &Workspace{
		dir:        abs,
		cfg:        cfg,
		now:        time.Now,
		name:       filepath.Base(abs),
		presetDirs: cfg.PresetDirs(abs),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Config returns the loaded configuration.
func (w *Workspace) Config() *config.Config { return w.cfg }

// Logbook returns the operation log, which may be nil.
func (w *Workspace) Logbook() *logbook.Logbook { return w.log }

// Now returns the workspace clock reading.
func (w *Workspace) Now() time.Time { return w.now() }

// ProjectPath returns the managed descriptor location.
func (w *Workspace) ProjectPath() string {
	return filepath.Join(w.dir, config.ProjectFile)
}

// Presets loads the catalog once: built-ins, then ./presets, then the
// configured extra directories.
func (w *Workspace) Presets() (*preset.Catalog, error) {
	if w.catalog != nil {
		return w.catalog, nil
	}
	catalog, err := preset.LoadCatalog(w.presetDirs...)
	if err != nil {
		return nil, fmt.Errorf("workspace: load presets: %w", err)
	}
	w.catalog = catalog
	return catalog, nil
}

func (w *Workspace) resolvePresets(active []string) ([]preset.Preset, error) {
	catalog, err := w.Presets()
	if err != nil {
		return nil, err
	}
	return catalog.Resolve(active)
}

// readOptional returns the file content and whether it existed.
func readOptional(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("workspace: read %s: %w", path, err)
	}
	return string(data), true, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("workspace: stat %s: %w", path, err)
}
