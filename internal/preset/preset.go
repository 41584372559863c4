// Package preset loads reusable package bundles and resolves them into a
// catalog the merge engine consumes.
package preset

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gemologic/mica/internal/state"
)

// Preset is a named, ordered bundle of packages, environment, hooks and raw
// descriptor fragments.
type Preset struct {
	Name        string
	Description string
	// Order is ascending: lower presets merge first and later ones win env
	// conflicts.
	Order     int
	Required  []string
	Optional  []string
	Env       map[string]state.EnvValue
	ShellHook string
	Nix       state.Fragments
	// Source is the file path, or <embedded:NAME> for built-ins.
	Source string
}

// file mirrors the on-disk YAML schema.
type file struct {
	Preset struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description,omitempty"`
		Order       int    `yaml:"order,omitempty"`
	} `yaml:"preset"`
	Packages struct {
		Required []string `yaml:"required,omitempty"`
		Optional []string `yaml:"optional,omitempty"`
	} `yaml:"packages,omitempty"`
	Env   map[string]state.EnvValue `yaml:"env,omitempty"`
	Shell struct {
		Hook string `yaml:"hook,omitempty"`
	} `yaml:"shell,omitempty"`
	Nix state.Fragments `yaml:"nix,omitempty"`
}

// Parse decodes and validates a single preset payload.
func Parse(data []byte, source string) (Preset, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Preset{}, fmt.Errorf("preset: payload is empty")
	}
	var raw file
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Preset{}, fmt.Errorf("preset: decode: %w", err)
	}
	p := Preset{
		Name:        strings.TrimSpace(raw.Preset.Name),
		Description: strings.TrimSpace(raw.Preset.Description),
		Order:       raw.Preset.Order,
		Required:    normalizeNames(raw.Packages.Required),
		Optional:    normalizeNames(raw.Packages.Optional),
		Env:         raw.Env,
		ShellHook:   raw.Shell.Hook,
		Nix:         raw.Nix,
		Source:      source,
	}
	if err := p.Validate(); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// Validate ensures the preset can be merged.
func (p Preset) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("preset: name is required")
	}
	seen := make(map[string]struct{}, len(p.Required))
	for idx, pkg := range p.Required {
		if _, dup := seen[pkg]; dup {
			return fmt.Errorf("preset %s: packages.required[%d]: duplicate package %s", p.Name, idx, pkg)
		}
		seen[pkg] = struct{}{}
	}
	for key := range p.Env {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("preset %s: env key is empty", p.Name)
		}
	}
	return nil
}

// Embedded reports whether the preset ships with the binary.
func (p Preset) Embedded() bool {
	return strings.HasPrefix(p.Source, "<embedded:")
}

func normalizeNames(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
