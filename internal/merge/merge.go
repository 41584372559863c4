// Package merge folds active presets and user state into one canonical
// result for the generator.
package merge

import (
	"sort"
	"strings"

	"github.com/gemologic/mica/internal/preset"
	"github.com/gemologic/mica/internal/state"
)

// Group is the set of packages one preset contributed after dedup and
// removal filtering.
type Group struct {
	Preset   string
	Packages []string
}

// Blocks holds raw fragments per slot, presets first then state.
type Blocks map[state.Slot][]string

// Get returns the blocks collected for slot.
func (b Blocks) Get(slot state.Slot) []string {
	return b[slot]
}

// Result is the merged view of a project.
type Result struct {
	PresetGroups []Group
	UserPackages []string
	Env          map[string]state.EnvValue
	ShellHooks   []string
	AllPackages  []string
	Blocks       Blocks
}

// EnvKeys returns merged env keys in sorted order.
func (r Result) EnvKeys() []string {
	keys := make([]string, 0, len(r.Env))
	for key := range r.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ProfileResult is the merged view of a profile.
type ProfileResult struct {
	PresetGroups []Group
	UserPackages []string
	AllPackages  []string
}

// Project merges presets with project state. Presets are applied in
// ascending order; ties keep their input order.
func Project(presets []preset.Preset, st *state.Project) Result {
	ordered := sortByOrder(presets)
	packages := mergePackages(ordered, st.Packages)

	env := map[string]state.EnvValue{}
	for _, p := range ordered {
		for key, value := range p.Env {
			env[key] = value
		}
	}
	for key, value := range st.Env {
		env[key] = value
	}

	var hooks []string
	for _, p := range ordered {
		if p.ShellHook != "" {
			hooks = append(hooks, p.ShellHook)
		}
	}
	if st.ShellHook != "" {
		hooks = append(hooks, st.ShellHook)
	}

	blocks := Blocks{}
	for _, slot := range state.Slots {
		for _, p := range ordered {
			blocks.push(slot, p.Nix.Get(slot))
		}
		blocks.push(slot, st.Nix.Get(slot))
	}

	return Result{
		PresetGroups: packages.groups,
		UserPackages: packages.user,
		Env:          env,
		ShellHooks:   hooks,
		AllPackages:  packages.all.items,
		Blocks:       blocks,
	}
}

// Profile merges presets with profile state. Only packages participate.
func Profile(presets []preset.Preset, st *state.Profile) ProfileResult {
	packages := mergePackages(sortByOrder(presets), st.Packages)
	return ProfileResult{
		PresetGroups: packages.groups,
		UserPackages: packages.user,
		AllPackages:  packages.all.items,
	}
}

type mergedPackages struct {
	groups []Group
	user   []string
	all    *orderedSet
}

func mergePackages(ordered []preset.Preset, pkgs state.Packages) mergedPackages {
	removed := make(map[string]struct{}, len(pkgs.Removed))
	for _, name := range pkgs.Removed {
		removed[name] = struct{}{}
	}
	all := newOrderedSet()
	var groups []Group
	for _, p := range ordered {
		group := Group{Preset: p.Name}
		for _, pkg := range p.Required {
			if _, skip := removed[pkg]; skip {
				continue
			}
			if all.add(pkg) {
				group.Packages = append(group.Packages, pkg)
			}
		}
		if len(group.Packages) > 0 {
			groups = append(groups, group)
		}
	}
	var user []string
	for _, pkg := range pkgs.Added {
		if _, skip := removed[pkg]; skip {
			continue
		}
		if all.add(pkg) {
			user = append(user, pkg)
		}
	}
	return mergedPackages{groups: groups, user: user, all: all}
}

func sortByOrder(presets []preset.Preset) []preset.Preset {
	seen := make(map[string]struct{}, len(presets))
	ordered := make([]preset.Preset, 0, len(presets))
	for _, p := range presets {
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		ordered = append(ordered, p)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	return ordered
}

func (b Blocks) push(slot state.Slot, block string) {
	trimmed := strings.TrimSpace(block)
	if trimmed == "" {
		return
	}
	b[slot] = append(b[slot], trimmed)
}

// orderedSet keeps first-occurrence order.
type orderedSet struct {
	index map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: map[string]struct{}{}}
}

func (s *orderedSet) add(item string) bool {
	if _, ok := s.index[item]; ok {
		return false
	}
	s.index[item] = struct{}{}
	s.items = append(s.items, item)
	return true
}
