package main

import (
	"errors"
	"fmt"

	"github.com/gemologic/mica/internal/assemble"
	"github.com/gemologic/mica/internal/state"
)

var errProjectOnly = errors.New("this command is only available for projects (drop -g)")

// subject is the state a command edits: a project or the global profile.
type subject struct {
	project *state.Project
	profile *state.Profile
}

func (s subject) packages() *state.Packages {
	if s.project != nil {
		return &s.project.Packages
	}
	return &s.profile.Packages
}

func (s subject) presets() []string {
	if s.project != nil {
		return s.project.Presets
	}
	return s.profile.Presets
}

func (s subject) applyPresets(names ...string) {
	if s.project != nil {
		s.project.ApplyPresets(names...)
		return
	}
	s.profile.ApplyPresets(names...)
}

func (s subject) unapplyPresets(names ...string) {
	if s.project != nil {
		s.project.UnapplyPresets(names...)
		return
	}
	s.profile.UnapplyPresets(names...)
}

func (s subject) pin() state.Pin {
	if s.project != nil {
		return s.project.Pin
	}
	return s.profile.Pin
}

func (s subject) updatePin(u state.PinUpdate, a *app) {
	now := a.ws.Now()
	if s.project != nil {
		s.project.UpdatePin(u, now)
		return
	}
	s.profile.UpdatePin(u, now)
}

// load reads the current subject without writing anything.
func (a *app) load() (subject, error) {
	ws, err := a.open()
	if err != nil {
		return subject{}, err
	}
	if a.global {
		profile, err := ws.LoadProfile()
		return subject{profile: profile}, err
	}
	project, err := ws.LoadProject()
	return subject{project: project}, err
}

// edit loads the subject, applies fn and writes the descriptor back.
func (a *app) edit(fn func(subject) error) error {
	s, err := a.load()
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	return a.save(s)
}

// editProject is edit for commands that have no profile form.
func (a *app) editProject(fn func(*state.Project) error) error {
	if a.global {
		return errProjectOnly
	}
	return a.edit(func(s subject) error { return fn(s.project) })
}

func (a *app) save(s subject) error {
	if s.project != nil {
		rendered, err := a.ws.SaveProject(s.project)
		if err != nil {
			return err
		}
		a.reportRender(rendered.Outcome, rendered.Reason, rendered.Normalized)
		a.printf("updated %s\n", a.ws.ProjectPath())
		return nil
	}
	gen, err := a.ws.SaveProfile(s.profile)
	if err != nil {
		return err
	}
	if gen != nil {
		a.printf("updated %s (generation %d)\n", a.ws.Config().ProfileNixPath(), gen.ID)
	} else {
		a.printf("updated %s\n", a.ws.Config().ProfileNixPath())
	}
	return nil
}

func (a *app) reportRender(outcome assemble.Outcome, reason error, normalized bool) {
	if outcome == assemble.OutcomeFallback {
		a.warnf("existing descriptor could not be reused (%v); regenerated from state\n", reason)
	}
	if !normalized {
		a.warnf("cleanup skipped: generated text failed the bracket check\n")
	}
}

func pinLabel(pin state.Pin) string {
	label := fmt.Sprintf("%s @ %s", pin.URL, pin.Rev)
	if pin.Branch != "" {
		label += " (" + pin.Branch + ")"
	}
	return label
}
