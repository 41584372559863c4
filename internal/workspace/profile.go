package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/gemologic/mica/internal/assemble"
	"github.com/gemologic/mica/internal/merge"
	"github.com/gemologic/mica/internal/nixgen"
	"github.com/gemologic/mica/internal/nixparse"
	"github.com/gemologic/mica/internal/state"
)

// LoadProfile reads the global profile state.
func (w *Workspace) LoadProfile() (*state.Profile, error) {
	st, err := state.LoadProfile(w.cfg.ProfileStatePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoProfile
		}
		return nil, err
	}
	return st, nil
}

// InitProfile creates the global profile pinned to pin.
func (w *Workspace) InitProfile(pin state.Pin) (*state.Profile, error) {
	found, err := exists(w.cfg.ProfileStatePath())
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ErrProfileExists
	}
	if pin.Branch == "" {
		pin.Branch = w.cfg.DefaultBranch()
	}
	st := state.NewProfile(pin, w.now())
	if _, err := w.SaveProfile(st); err != nil {
		return nil, err
	}
	return st, nil
}

// RenderProfile generates profile.nix for st.
func (w *Workspace) RenderProfile(st *state.Profile) (string, merge.ProfileResult, error) {
	if err := st.Pin.Complete(); err != nil {
		return "", merge.ProfileResult{}, err
	}
	presets, err := w.resolvePresets(st.Presets)
	if err != nil {
		return "", merge.ProfileResult{}, err
	}
	merged := merge.Profile(presets, st)
	return nixgen.Profile(st, merged, w.now()), merged, nil
}

// SaveProfile writes profile.nix and the profile state. A generation is
// recorded when the installed package set differs from the last one (the
// first non-empty set starts the history); it is returned, or nil when
// nothing changed.
func (w *Workspace) SaveProfile(st *state.Profile) (*state.Generation, error) {
	var recorded *state.Generation
	nixPath := w.cfg.ProfileNixPath()
	err := w.withLock(nixPath, func() error {
		text, merged, err := w.RenderProfile(st)
		if err != nil {
			return err
		}
		prevGenerations := st.Generations
		st.Touch(w.now())
		installed := installedPackages(merged, st.Packages)
		if last, ok := st.LastGeneration(); (ok && !sameSet(last.Packages, installed)) || (!ok && len(installed) > 0) {
			gen := st.RecordGeneration(installed, w.now())
			recorded = &gen
		}
		rollback := func() {
			st.Generations = prevGenerations
			recorded = nil
		}
		data, err := state.MarshalProfile(st)
		if err != nil {
			rollback()
			return err
		}
		previous, hadPrevious, err := readOptional(nixPath)
		if err != nil {
			rollback()
			return err
		}
		// profile.nix goes first so the state never records a generation
		// that was not rendered.
		if err := writeAtomic(nixPath, []byte(text)); err != nil {
			rollback()
			return err
		}
		if err := writeAtomic(w.cfg.ProfileStatePath(), data); err != nil {
			rollback()
			var restoreErr error
			if hadPrevious {
				restoreErr = writeAtomic(nixPath, []byte(previous))
			} else if rmErr := os.Remove(nixPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				restoreErr = rmErr
			}
			return errors.Join(err, restoreErr)
		}
		return nil
	})
	if err != nil {
		w.log.Error("write %s: %v", nixPath, err)
		return nil, err
	}
	if recorded != nil {
		w.log.Info("wrote %s (generation %d)", nixPath, recorded.ID)
	} else {
		w.log.Info("wrote %s", nixPath)
	}
	return recorded, nil
}

// RefreshProfileFromNix replaces st's pin, presets and packages with what
// profile.nix currently holds.
func (w *Workspace) RefreshProfileFromNix(st *state.Profile) error {
	text, found, err := readOptional(w.cfg.ProfileNixPath())
	if err != nil {
		return err
	}
	if !found {
		return ErrNoProfile
	}
	parsed, err := nixparse.ParseProfile(text)
	if err != nil {
		return fmt.Errorf("workspace: parse %s: %w", w.cfg.ProfileNixPath(), err)
	}
	presets, err := w.resolvePresets(parsed.Presets)
	if err != nil {
		return err
	}
	pin := parsed.Pin
	if pin.URL == st.Pin.URL {
		pin.Branch = st.Pin.Branch
		if pin.Rev == st.Pin.Rev {
			pin.Updated = st.Pin.Updated
		}
	}
	st.Pin = pin
	st.Presets = append([]string(nil), parsed.Presets...)
	added, removed := subtractPackages(parsed.Packages, presets)
	st.Packages = state.Packages{Added: added, Removed: removed}
	if len(parsed.Pinned) > 0 {
		st.Packages.Pinned = parsed.Pinned
	}
	st.Touch(w.now())
	return nil
}

// DiffProfile compares what a save would write with profile.nix.
func (w *Workspace) DiffProfile(st *state.Profile) ([]assemble.SectionChange, error) {
	existing, found, err := readOptional(w.cfg.ProfileNixPath())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoProfile
	}
	text, _, err := w.RenderProfile(st)
	if err != nil {
		return nil, err
	}
	return assemble.ProfileSectionDiff(text, existing)
}

// PreviewProfile returns the line diff from profile.nix to what a save would
// write.
func (w *Workspace) PreviewProfile(st *state.Profile) ([]assemble.DiffLine, error) {
	existing, _, err := readOptional(w.cfg.ProfileNixPath())
	if err != nil {
		return nil, err
	}
	text, _, err := w.RenderProfile(st)
	if err != nil {
		return nil, err
	}
	return assemble.LineDiff(existing, text), nil
}

// installedPackages lists merged packages followed by pinned ones as
// NAME@VERSION.
func installedPackages(merged merge.ProfileResult, pkgs state.Packages) []string {
	out := append([]string(nil), merged.AllPackages...)
	for _, name := range pkgs.PinnedNames() {
		out = append(out, name+"@"+pkgs.Pinned[name].Version)
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
