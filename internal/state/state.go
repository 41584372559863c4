// Package state models the declarative inputs mica renders into descriptors.
//
// A Project lives inside the descriptor it generates (default.nix) and is
// recovered by the parser on every run. A Profile is persisted as YAML next
// to the user's global profile descriptor.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// Version is the schema version recorded in state metadata.
	Version = "0.1.0"

	// ChangeMe marks a pin field that still needs a real value.
	ChangeMe = "CHANGEME"

	defaultBranch = "main"
)

var (
	// ErrIncompletePin reports a pin whose revision or hash is unusable.
	ErrIncompletePin = errors.New("state: pin is incomplete (rev and sha256 are required)")
	// ErrInvalidPinName reports an extra pin name that is not a valid identifier.
	ErrInvalidPinName = errors.New("state: invalid pin name")
	// ErrPinExists reports an attempt to add an extra pin twice.
	ErrPinExists = errors.New("state: pin already exists")
	// ErrPinNotFound reports an unknown extra pin.
	ErrPinNotFound = errors.New("state: pin not found")
	// ErrInvalidEnvKey reports an environment key that cannot be emitted as an attribute.
	ErrInvalidEnvKey = errors.New("state: invalid env key")
	// ErrMultilineExpr reports an env expression spanning several lines.
	// The descriptor holds one env binding per line.
	ErrMultilineExpr = errors.New("state: env expression must fit on one line")
)

// Metadata records schema version and timestamps.
type Metadata struct {
	Version  string    `yaml:"version"`
	Created  time.Time `yaml:"created"`
	Modified time.Time `yaml:"modified"`
}

// Pin is a reproducible source snapshot.
type Pin struct {
	Name    string    `yaml:"name,omitempty"`
	URL     string    `yaml:"url"`
	Rev     string    `yaml:"rev"`
	SHA256  string    `yaml:"sha256"`
	Branch  string    `yaml:"branch,omitempty"`
	Updated time.Time `yaml:"updated,omitempty"`
}

// ArchiveURL returns the tarball location the descriptor fetches.
func (p Pin) ArchiveURL() string {
	return fmt.Sprintf("%s/archive/%s.tar.gz", p.URL, p.Rev)
}

// Incomplete reports whether the pin cannot be rendered yet.
func (p Pin) Incomplete() bool {
	rev := strings.TrimSpace(p.Rev)
	sha := strings.TrimSpace(p.SHA256)
	return rev == "" || sha == "" || rev == ChangeMe || sha == ChangeMe
}

// Complete returns ErrIncompletePin when the pin is not ready for generation.
func (p Pin) Complete() error {
	if p.Incomplete() {
		return fmt.Errorf("%w: %s", ErrIncompletePin, p.URL)
	}
	return nil
}

// PinnedPackage is a package sourced from a snapshot other than the primary pin.
type PinnedPackage struct {
	Version string `yaml:"version"`
	Pin     Pin    `yaml:"pin"`
}

// Packages holds the user's package edits on top of presets.
type Packages struct {
	Added   []string                 `yaml:"added,omitempty"`
	Removed []string                 `yaml:"removed,omitempty"`
	Pinned  map[string]PinnedPackage `yaml:"pinned,omitempty"`
}

// PinnedNames returns the pinned attribute names in sorted order.
func (p Packages) PinnedNames() []string {
	names := make([]string, 0, len(p.Pinned))
	for name := range p.Pinned {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Project is the full state rendered into a project descriptor.
type Project struct {
	Mica      Metadata            `yaml:"mica"`
	Pin       Pin                 `yaml:"pin"`
	Pins      map[string]Pin      `yaml:"pins,omitempty"`
	Presets   []string            `yaml:"presets,omitempty"`
	Packages  Packages            `yaml:"packages"`
	Env       map[string]EnvValue `yaml:"env,omitempty"`
	ShellHook string              `yaml:"shell_hook,omitempty"`
	Nix       Fragments           `yaml:"nix,omitempty"`
}

// NewProject returns an empty project pinned to pin.
func NewProject(pin Pin, now time.Time) *Project {
	now = now.UTC()
	return &Project{
		Mica: Metadata{Version: Version, Created: now, Modified: now},
		Pin:  pin,
		Pins: map[string]Pin{},
		Env:  map[string]EnvValue{},
	}
}

// PinNames returns extra pin names in sorted order.
func (p *Project) PinNames() []string {
	names := make([]string, 0, len(p.Pins))
	for name := range p.Pins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnvKeys returns env keys in sorted order.
func (p *Project) EnvKeys() []string {
	return sortedEnvKeys(p.Env)
}

// Touch records a modification time.
func (p *Project) Touch(now time.Time) {
	p.Mica.Modified = now.UTC()
	if p.Mica.Created.IsZero() {
		p.Mica.Created = p.Mica.Modified
	}
	if p.Mica.Version == "" {
		p.Mica.Version = Version
	}
}

// Profile is the reduced state rendered into the global profile descriptor.
type Profile struct {
	Mica        Metadata     `yaml:"mica"`
	Pin         Pin          `yaml:"pin"`
	Presets     []string     `yaml:"presets,omitempty"`
	Packages    Packages     `yaml:"packages"`
	Generations []Generation `yaml:"generations,omitempty"`
}

// Generation is one recorded install of the profile.
type Generation struct {
	ID        uint64    `yaml:"id"`
	Timestamp time.Time `yaml:"timestamp"`
	Packages  []string  `yaml:"packages"`
}

// NewProfile returns an empty profile pinned to pin.
func NewProfile(pin Pin, now time.Time) *Profile {
	now = now.UTC()
	return &Profile{
		Mica: Metadata{Version: Version, Created: now, Modified: now},
		Pin:  pin,
	}
}

// Touch records a modification time.
func (p *Profile) Touch(now time.Time) {
	p.Mica.Modified = now.UTC()
	if p.Mica.Created.IsZero() {
		p.Mica.Created = p.Mica.Modified
	}
	if p.Mica.Version == "" {
		p.Mica.Version = Version
	}
}

func sortedEnvKeys(env map[string]EnvValue) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
