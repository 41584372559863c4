// internal/config/config.go
//
// This package handles the user configuration directory (~/.config/mica by
// default) and the paths mica reads and writes inside it and inside a
// project directory.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DirEnv overrides the configuration directory.
	DirEnv = "MICA_CONFIG_DIR"
	// RepoEnv overrides the default nixpkgs repository for init.
	RepoEnv = "MICA_NIXPKGS_REPO"

	// ProjectFile is the managed descriptor inside a project directory.
	ProjectFile = "default.nix"
	// ProjectPresetDir holds project-local presets.
	ProjectPresetDir = "presets"

	configFile       = "config.yaml"
	profileStateFile = "profile.yaml"
	profileNixFile   = "profile.nix"
	logFile          = "mica.log"

	defaultNixpkgsURL = "https://github.com/jpetrucciani/nix"
	defaultBranch     = "main"
)

const defaultConfigYAML = `# mica configuration
version: 1

nixpkgs:
  # Repository used by "mica init" when --repo is not given.
  default_url: https://github.com/jpetrucciani/nix
  default_branch: main

presets:
  # Additional preset directories, searched after ./presets.
  extra_dirs: []
  # extra_dirs:
  #   - ~/my-presets

diff:
  # Show the full line diff instead of the section summary by default.
  full: false
`

// NixpkgsConfig holds defaults for new pins.
type NixpkgsConfig struct {
	DefaultURL    string `yaml:"default_url"`
	DefaultBranch string `yaml:"default_branch"`
}

// PresetsConfig lists extra preset search directories.
type PresetsConfig struct {
	ExtraDirs []string `yaml:"extra_dirs"`
}

// DiffConfig holds diff display preferences.
type DiffConfig struct {
	Full bool `yaml:"full"`
}

// Settings models config.yaml.
type Settings struct {
	Version int           `yaml:"version"`
	Nixpkgs NixpkgsConfig `yaml:"nixpkgs"`
	Presets PresetsConfig `yaml:"presets"`
	Diff    DiffConfig    `yaml:"diff"`
}

// Config holds the runtime configuration for mica.
type Config struct {
	// Dir is the configuration directory.
	Dir string

	// Home is used to expand "~/" in configured paths.
	Home string

	Settings Settings
}

// DefaultDir returns $MICA_CONFIG_DIR or ~/.config/mica.
func DefaultDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(DirEnv)); dir != "" {
		return filepath.Clean(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mica"), nil
}

// Load reads the configuration from the default directory.
func Load() (*Config, error) {
	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return LoadDir(dir)
}

// LoadDir reads dir/config.yaml. A missing file yields the defaults.
func LoadDir(dir string) (*Config, error) {
	home, _ := os.UserHomeDir()
	cfg := &Config{
		Dir:      dir,
		Home:     home,
		Settings: defaultSettings(),
	}
	if err := cfg.load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitConfigDir creates the configuration directory and writes a commented
// default config.yaml when none exists.
func InitConfigDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Path returns the config file location.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, configFile)
}

// ProfileStatePath returns the global profile state file.
func (c *Config) ProfileStatePath() string {
	return filepath.Join(c.Dir, profileStateFile)
}

// ProfileNixPath returns the global profile descriptor.
func (c *Config) ProfileNixPath() string {
	return filepath.Join(c.Dir, profileNixFile)
}

// LogPath returns the logbook file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Dir, logFile)
}

// PresetDirs returns the preset search path for a project: ./presets first,
// then the configured extra directories.
func (c *Config) PresetDirs(projectDir string) []string {
	dirs := []string{filepath.Join(projectDir, ProjectPresetDir)}
	return append(dirs, c.Settings.Presets.ExtraDirs...)
}

// ResolveRepo picks the repository for a new pin: the explicit argument,
// then $MICA_NIXPKGS_REPO, then the configured default.
func (c *Config) ResolveRepo(arg string) string {
	if trimmed := strings.TrimSpace(arg); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv(RepoEnv)); env != "" {
		return env
	}
	return c.Settings.Nixpkgs.DefaultURL
}

// DefaultBranch returns the configured branch for new pins.
func (c *Config) DefaultBranch() string {
	return c.Settings.Nixpkgs.DefaultBranch
}

func (c *Config) load() error {
	path := c.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed Settings
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.Home)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Settings = parsed
	return nil
}

func defaultSettings() Settings {
	return Settings{
		Version: 1,
		Nixpkgs: NixpkgsConfig{
			DefaultURL:    defaultNixpkgsURL,
			DefaultBranch: defaultBranch,
		},
	}
}

func (s *Settings) applyDefaults() {
	if s.Version == 0 {
		s.Version = 1
	}
	if strings.TrimSpace(s.Nixpkgs.DefaultURL) == "" {
		s.Nixpkgs.DefaultURL = defaultNixpkgsURL
	}
	if strings.TrimSpace(s.Nixpkgs.DefaultBranch) == "" {
		s.Nixpkgs.DefaultBranch = defaultBranch
	}
}

func (s *Settings) normalize(home string) {
	s.Nixpkgs.DefaultURL = strings.TrimSuffix(strings.TrimSpace(s.Nixpkgs.DefaultURL), "/")
	s.Nixpkgs.DefaultBranch = strings.TrimSpace(s.Nixpkgs.DefaultBranch)
	dirs := make([]string, 0, len(s.Presets.ExtraDirs))
	for _, dir := range s.Presets.ExtraDirs {
		if expanded := expandHome(home, dir); expanded != "" && !contains(dirs, expanded) {
			dirs = append(dirs, expanded)
		}
	}
	s.Presets.ExtraDirs = dirs
}

func (s *Settings) validate() error {
	if s.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if !strings.Contains(s.Nixpkgs.DefaultURL, "://") {
		return fmt.Errorf("nixpkgs.default_url must be a URL, got %q", s.Nixpkgs.DefaultURL)
	}
	if strings.ContainsAny(s.Nixpkgs.DefaultBranch, " \t\n") {
		return fmt.Errorf("nixpkgs.default_branch must not contain whitespace")
	}
	return nil
}

func expandHome(home, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(trimmed, "~/"); ok && home != "" {
		return filepath.Join(home, rest)
	}
	return filepath.Clean(trimmed)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
