package workspace

import (
	"fmt"
	"strings"

	"github.com/gemologic/mica/internal/assemble"
	"github.com/gemologic/mica/internal/merge"
	"github.com/gemologic/mica/internal/nixgen"
	"github.com/gemologic/mica/internal/nixparse"
	"github.com/gemologic/mica/internal/preset"
	"github.com/gemologic/mica/internal/state"
)

// Rendered is the text a save would write.
type Rendered struct {
	Text    string
	Outcome assemble.Outcome
	// Reason explains a fallback to the fresh render.
	Reason error
	// Normalized is false when cleanup was reverted by the sanity check.
	Normalized bool
}

// LoadProject recovers project state from default.nix. Preset contributions
// written into the file are subtracted again so the state only carries the
// user's own edits.
func (w *Workspace) LoadProject() (*state.Project, error) {
	text, ok, err := readOptional(w.ProjectPath())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoProject
	}
	parsed, err := nixparse.ParseProject(text)
	if err != nil {
		return nil, fmt.Errorf("workspace: parse %s: %w", w.ProjectPath(), err)
	}
	presets, err := w.resolvePresets(parsed.Presets)
	if err != nil {
		return nil, err
	}
	st := projectFromParsed(parsed, presets)
	if st.Pin.Branch == "" {
		st.Pin.Branch = w.cfg.DefaultBranch()
	}
	return st, nil
}

// InitProject writes a new descriptor pinned to pin.
func (w *Workspace) InitProject(pin state.Pin) (*state.Project, error) {
	found, err := exists(w.ProjectPath())
	if err != nil {
		return nil, err
	}
	if found {
		return nil, ErrProjectExists
	}
	if pin.Branch == "" {
		pin.Branch = w.cfg.DefaultBranch()
	}
	st := state.NewProject(pin, w.now())
	if _, err := w.SaveProject(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Render merges st with its presets, generates the descriptor and assembles
// it against the file on disk.
func (w *Workspace) Render(st *state.Project) (Rendered, error) {
	if err := st.Pin.Complete(); err != nil {
		return Rendered{}, err
	}
	presets, err := w.resolvePresets(st.Presets)
	if err != nil {
		return Rendered{}, err
	}
	fresh := nixgen.Project(st, merge.Project(presets, st), w.name, w.now())
	existing, found, err := readOptional(w.ProjectPath())
	if err != nil {
		return Rendered{}, err
	}
	res, err := assemble.Assemble(fresh, existing, found)
	if err != nil {
		return Rendered{}, fmt.Errorf("workspace: assemble: %w", err)
	}
	if res.Outcome == assemble.OutcomeFallback {
		w.log.Info("existing %s not reusable, regenerating: %v", w.ProjectPath(), res.Reason)
	}
	text, ok := assemble.Normalize(res.Text)
	if !ok {
		w.log.Info("cleanup of %s reverted: unbalanced output", w.ProjectPath())
	}
	return Rendered{Text: text, Outcome: res.Outcome, Reason: res.Reason, Normalized: ok}, nil
}

// SaveProject renders st and replaces default.nix.
func (w *Workspace) SaveProject(st *state.Project) (Rendered, error) {
	var rendered Rendered
	err := w.withLock(w.ProjectPath(), func() error {
		st.Touch(w.now())
		var err error
		rendered, err = w.Render(st)
		if err != nil {
			return err
		}
		return writeAtomic(w.ProjectPath(), []byte(rendered.Text))
	})
	if err != nil {
		w.log.Error("write %s: %v", w.ProjectPath(), err)
		return Rendered{}, err
	}
	w.log.Info("wrote %s (%s)", w.ProjectPath(), rendered.Outcome)
	return rendered, nil
}

// DiffProject compares what a save would write with default.nix, section by
// section.
func (w *Workspace) DiffProject(st *state.Project) ([]assemble.SectionChange, error) {
	existing, found, err := readOptional(w.ProjectPath())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoProject
	}
	rendered, err := w.Render(st)
	if err != nil {
		return nil, err
	}
	return assemble.SectionDiff(rendered.Text, existing)
}

// PreviewProject returns the line diff from default.nix to what a save would
// write.
func (w *Workspace) PreviewProject(st *state.Project) ([]assemble.DiffLine, error) {
	existing, _, err := readOptional(w.ProjectPath())
	if err != nil {
		return nil, err
	}
	rendered, err := w.Render(st)
	if err != nil {
		return nil, err
	}
	return assemble.LineDiff(existing, rendered.Text), nil
}

// projectFromParsed turns parsed descriptor contents back into user state.
func projectFromParsed(parsed *nixparse.ParsedProject, presets []preset.Preset) *state.Project {
	base := merge.Project(presets, &state.Project{})

	st := &state.Project{
		Mica:    state.Metadata{Version: state.Version},
		Pin:     parsed.Pin,
		Pins:    map[string]state.Pin{},
		Presets: append([]string(nil), parsed.Presets...),
		Env:     map[string]state.EnvValue{},
	}

	added, removed := subtractPackages(parsed.Packages, presets)
	st.Packages = state.Packages{Added: added, Removed: removed}
	if len(parsed.Pinned) > 0 {
		st.Packages.Pinned = parsed.Pinned
	}

	for key, value := range parsed.Env {
		if inherited, ok := base.Env[key]; ok && nixgen.RenderEnvValue(inherited) == nixgen.RenderEnvValue(value) {
			continue
		}
		st.Env[key] = value
	}

	st.ShellHook = subtractHooks(parsed.ShellHook, base.ShellHooks)

	presetPins, rawPinBlocks := splitPresetPinBlocks(base.Blocks.Get(state.SlotPins))
	for name, pin := range parsed.Pins {
		if inherited, ok := presetPins[name]; ok && inherited == pin {
			continue
		}
		st.Pins[name] = pin
	}
	for _, slot := range state.Slots {
		text := parsed.Nix.Get(slot)
		blocks := base.Blocks.Get(slot)
		if slot == state.SlotPins {
			blocks = rawPinBlocks
		}
		st.Nix.Set(slot, stripLeadingBlocks(text, blocks))
	}
	return st
}

// subtractPackages splits the packages found in a descriptor into user
// additions and removed preset packages.
func subtractPackages(found []string, presets []preset.Preset) (added, removed []string) {
	present := make(map[string]struct{}, len(found))
	for _, name := range found {
		present[name] = struct{}{}
	}
	required := map[string]struct{}{}
	for _, p := range presets {
		for _, name := range p.Required {
			if _, seen := required[name]; seen {
				continue
			}
			required[name] = struct{}{}
			if _, ok := present[name]; !ok {
				removed = append(removed, name)
			}
		}
	}
	for _, name := range found {
		if _, ok := required[name]; !ok {
			added = append(added, name)
		}
	}
	return added, removed
}

// subtractHooks drops the preset hooks the generator placed in front of the
// user's hook.
func subtractHooks(hook string, presetHooks []string) string {
	prefix := nixgen.JoinShellHooks(presetHooks)
	if prefix == "" || hook == "" {
		return hook
	}
	// the parsed hook lacks the newline closing the last hook
	body := hook + "\n"
	if !strings.HasPrefix(body, prefix) {
		return hook
	}
	rest := strings.TrimPrefix(body[len(prefix):], "\n")
	return strings.TrimSuffix(rest, "\n")
}

// splitPresetPinBlocks separates preset pin blocks the parser recognizes as
// pins from the leftovers it keeps as raw text.
func splitPresetPinBlocks(blocks []string) (map[string]state.Pin, []string) {
	pins := map[string]state.Pin{}
	var raw []string
	for _, block := range blocks {
		found, rest := nixparse.ParsePins(block)
		for name, pin := range found {
			pins[name] = pin
		}
		if rest != "" {
			raw = append(raw, rest)
		}
	}
	return pins, raw
}

// stripLeadingBlocks removes preset blocks from the front of a region body,
// in order, stopping at the first one that is not there.
func stripLeadingBlocks(text string, blocks []string) string {
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		rest, ok := strings.CutPrefix(text, block)
		if !ok || (rest != "" && !strings.HasPrefix(rest, "\n")) {
			break
		}
		text = strings.TrimLeft(rest, "\n")
	}
	return text
}
