package state

import (
	"fmt"
	"strings"
	"time"
)

// Add records packages as user additions and clears them from the remove set.
func (p *Packages) Add(names ...string) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !contains(p.Added, name) {
			p.Added = append(p.Added, name)
		}
		p.Removed = without(p.Removed, name)
	}
}

// Remove records packages as removed and clears them from the add set.
func (p *Packages) Remove(names ...string) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !contains(p.Removed, name) {
			p.Removed = append(p.Removed, name)
		}
		p.Added = without(p.Added, name)
	}
}

// PinUpdate describes a change to the primary pin, or to a pinned package
// when Package is set. Empty fields are left unchanged.
type PinUpdate struct {
	Package string
	URL     string
	Rev     string
	SHA256  string
	Branch  string
}

func (u PinUpdate) applyTo(pin *Pin, now time.Time) {
	if v := strings.TrimSpace(u.URL); v != "" {
		pin.URL = v
	}
	if v := strings.TrimSpace(u.Rev); v != "" {
		pin.Rev = v
	}
	if v := strings.TrimSpace(u.SHA256); v != "" {
		pin.SHA256 = v
	}
	if v := strings.TrimSpace(u.Branch); v != "" {
		pin.Branch = v
	}
	pin.Updated = dateOf(now)
}

// Apply updates primary, or the pinned package named by u.Package. A new
// pinned package starts from a copy of primary with a placeholder version.
func (u PinUpdate) Apply(primary *Pin, packages *Packages, now time.Time) {
	name := strings.TrimSpace(u.Package)
	if name == "" {
		u.applyTo(primary, now)
		return
	}
	if packages.Pinned == nil {
		packages.Pinned = map[string]PinnedPackage{}
	}
	entry, ok := packages.Pinned[name]
	if !ok {
		entry = PinnedPackage{Version: ChangeMe, Pin: *primary}
	}
	u.applyTo(&entry.Pin, now)
	packages.Pinned[name] = entry
}

// UpdatePin applies u to the project.
func (p *Project) UpdatePin(u PinUpdate, now time.Time) {
	u.Apply(&p.Pin, &p.Packages, now)
}

// UpdatePin applies u to the profile.
func (p *Profile) UpdatePin(u PinUpdate, now time.Time) {
	u.Apply(&p.Pin, &p.Packages, now)
}

// Unpin drops a pinned package. It reports whether the package was pinned.
func (p *Packages) Unpin(name string) bool {
	if _, ok := p.Pinned[name]; !ok {
		return false
	}
	delete(p.Pinned, name)
	return true
}

// ValidPinName reports whether name can be used as an extra pin parameter:
// a letter or underscore followed by letters, digits, or underscores.
func ValidPinName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// AddExtraPin registers an additional named snapshot.
func (p *Project) AddExtraPin(name string, pin Pin, now time.Time) error {
	name = strings.TrimSpace(name)
	if !ValidPinName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidPinName, name)
	}
	if _, exists := p.Pins[name]; exists {
		return fmt.Errorf("%w: %s", ErrPinExists, name)
	}
	if err := pin.Complete(); err != nil {
		return err
	}
	if strings.TrimSpace(pin.Branch) == "" {
		pin.Branch = p.Pin.Branch
	}
	if strings.TrimSpace(pin.Branch) == "" {
		pin.Branch = defaultBranch
	}
	pin.Name = strings.TrimSpace(pin.Name)
	pin.Updated = dateOf(now)
	if p.Pins == nil {
		p.Pins = map[string]Pin{}
	}
	p.Pins[name] = pin
	return nil
}

// RemoveExtraPin deletes a named snapshot.
func (p *Project) RemoveExtraPin(name string) error {
	if _, ok := p.Pins[name]; !ok {
		return fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	delete(p.Pins, name)
	return nil
}

// SetEnv stores an environment entry.
func (p *Project) SetEnv(key string, value EnvValue) error {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t\n=;#\"") {
		return fmt.Errorf("%w: %q", ErrInvalidEnvKey, key)
	}
	if value.IsExpr() && strings.ContainsAny(value.Text(), "\r\n") {
		return fmt.Errorf("%w: %s", ErrMultilineExpr, key)
	}
	if p.Env == nil {
		p.Env = map[string]EnvValue{}
	}
	p.Env[key] = value
	return nil
}

// UnsetEnv removes an environment entry and reports whether it existed.
func (p *Project) UnsetEnv(key string) bool {
	if _, ok := p.Env[key]; !ok {
		return false
	}
	delete(p.Env, key)
	return true
}

// SetShellHook replaces the user shell hook.
func (p *Project) SetShellHook(hook string) {
	p.ShellHook = hook
}

// ClearShellHook removes the user shell hook.
func (p *Project) ClearShellHook() {
	p.ShellHook = ""
}

// ApplyPresets activates presets, keeping activation order.
func (p *Project) ApplyPresets(names ...string) {
	p.Presets = appendUnique(p.Presets, names...)
}

// UnapplyPresets deactivates presets.
func (p *Project) UnapplyPresets(names ...string) {
	p.Presets = withoutAll(p.Presets, names)
}

// ApplyPresets activates presets, keeping activation order.
func (p *Profile) ApplyPresets(names ...string) {
	p.Presets = appendUnique(p.Presets, names...)
}

// UnapplyPresets deactivates presets.
func (p *Profile) UnapplyPresets(names ...string) {
	p.Presets = withoutAll(p.Presets, names)
}

// RecordGeneration appends a generation snapshot of the installed packages.
func (p *Profile) RecordGeneration(packages []string, now time.Time) Generation {
	var next uint64 = 1
	if last, ok := p.LastGeneration(); ok {
		next = last.ID + 1
	}
	snapshot := make([]string, len(packages))
	copy(snapshot, packages)
	gen := Generation{ID: next, Timestamp: now.UTC(), Packages: snapshot}
	p.Generations = append(p.Generations, gen)
	return gen
}

// LastGeneration returns the most recent generation, if any.
func (p *Profile) LastGeneration() (Generation, bool) {
	if len(p.Generations) == 0 {
		return Generation{}, false
	}
	return p.Generations[len(p.Generations)-1], true
}

func dateOf(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func appendUnique(values []string, names ...string) []string {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || contains(values, name) {
			continue
		}
		values = append(values, name)
	}
	return values
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func without(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func withoutAll(values []string, targets []string) []string {
	for _, target := range targets {
		values = without(values, strings.TrimSpace(target))
	}
	return values
}
