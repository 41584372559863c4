package preset

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

//go:embed builtin/*.yaml
var builtin embed.FS

const presetPattern = "*.{yaml,yml}"

// LoadEmbedded returns the presets compiled into the binary.
func LoadEmbedded() ([]Preset, error) {
	matches, err := doublestar.Glob(builtin, "builtin/"+presetPattern)
	if err != nil {
		return nil, fmt.Errorf("preset: glob embedded: %w", err)
	}
	sort.Strings(matches)
	presets := make([]Preset, 0, len(matches))
	for _, match := range matches {
		data, err := builtin.ReadFile(match)
		if err != nil {
			return nil, fmt.Errorf("preset: read embedded %s: %w", match, err)
		}
		name := strings.TrimSuffix(path.Base(match), path.Ext(match))
		p, err := Parse(data, fmt.Sprintf("<embedded:%s>", name))
		if err != nil {
			return nil, fmt.Errorf("preset: embedded %s: %w", name, err)
		}
		presets = append(presets, p)
	}
	return presets, nil
}

// LoadFile reads one preset file from disk.
func LoadFile(path string) (Preset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Preset{}, fmt.Errorf("preset: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Preset{}, fmt.Errorf("preset: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, fmt.Errorf("preset: read %s: %w", path, err)
	}
	p, err := Parse(data, filepath.Clean(path))
	if err != nil {
		return Preset{}, fmt.Errorf("preset: %s: %w", path, err)
	}
	return p, nil
}

// LoadDir reads every *.yaml / *.yml preset in dir, sorted by path.
// A missing directory yields no presets.
func LoadDir(dir string) ([]Preset, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	info, err := os.Stat(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("preset: stat %s: %w", trimmed, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("preset: %s is not a directory", trimmed)
	}
	matches, err := doublestar.FilepathGlob(filepath.Join(trimmed, presetPattern))
	if err != nil {
		return nil, fmt.Errorf("preset: glob %s: %w", trimmed, err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Strings(matches)
	var presets []Preset
	for _, match := range matches {
		p, err := LoadFile(match)
		if err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}
	return presets, nil
}
