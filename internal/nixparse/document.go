// Package nixparse recovers mica state from descriptor text by locating
// marker regions. It understands only the subset of the language the
// generator emits inside those regions.
package nixparse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gemologic/mica/internal/nixexpr"
)

var (
	// ErrNotManaged reports text without the mica signature line.
	ErrNotManaged = errors.New("nixparse: not a mica-managed nix file")
	// ErrMissingMarker is matched by MissingMarkerError.
	ErrMissingMarker = errors.New("nixparse: missing marker")
)

// MissingMarkerError names the marker that could not be found.
type MissingMarkerError struct {
	Marker string
}

func (e *MissingMarkerError) Error() string {
	return fmt.Sprintf("nixparse: missing marker: %s", e.Marker)
}

// Is lets errors.Is match ErrMissingMarker.
func (e *MissingMarkerError) Is(target error) bool {
	return target == ErrMissingMarker
}

// Section is the text of one marker region. Present is false when an
// optional region has neither marker.
type Section struct {
	Text    string
	Present bool
}

// Document is a project descriptor split into its regions.
type Document struct {
	Preamble          string
	Pin               Section
	Pins              Section
	Let               Section
	Scripts           Section
	Packages          Section
	PackagesRaw       Section
	Env               Section
	EnvRaw            Section
	ShellHook         Section
	Override          Section
	OverrideShellHook Section
	OverrideMerge     Section
	Postamble         string
}

// HasOverrides reports whether any override-related region exists.
func (d *Document) HasOverrides() bool {
	return d.Override.Present || d.OverrideShellHook.Present || d.OverrideMerge.Present
}

// ProfileDocument is a profile descriptor split into its regions.
type ProfileDocument struct {
	Preamble  string
	Pins      Section
	Paths     Section
	Postamble string
}

// ParseDocument splits project descriptor text into regions.
func ParseDocument(content string) (*Document, error) {
	if !strings.HasPrefix(content, nixexpr.SignaturePrefix) {
		return nil, ErrNotManaged
	}
	doc := &Document{}
	var err error
	if doc.Preamble, err = beforeMarker(content, nixexpr.RegionPin.Begin()); err != nil {
		return nil, err
	}
	required := []struct {
		region nixexpr.Region
		dst    *Section
	}{
		{nixexpr.RegionPin, &doc.Pin},
		{nixexpr.RegionPackages, &doc.Packages},
		{nixexpr.RegionEnv, &doc.Env},
		{nixexpr.RegionShellHook, &doc.ShellHook},
	}
	for _, r := range required {
		if *r.dst, err = between(content, r.region); err != nil {
			return nil, err
		}
	}
	optional := []struct {
		region nixexpr.Region
		dst    *Section
	}{
		{nixexpr.RegionPins, &doc.Pins},
		{nixexpr.RegionLet, &doc.Let},
		{nixexpr.RegionPackagesRaw, &doc.PackagesRaw},
		{nixexpr.RegionScripts, &doc.Scripts},
		{nixexpr.RegionEnvRaw, &doc.EnvRaw},
		{nixexpr.RegionOverride, &doc.Override},
		{nixexpr.RegionOverrideShellHook, &doc.OverrideShellHook},
		{nixexpr.RegionOverrideMerge, &doc.OverrideMerge},
	}
	for _, r := range optional {
		if *r.dst, err = betweenOptional(content, r.region); err != nil {
			return nil, err
		}
	}
	if doc.Postamble, err = postamble(content); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseProfileDocument splits profile descriptor text into regions.
func ParseProfileDocument(content string) (*ProfileDocument, error) {
	if !strings.HasPrefix(content, nixexpr.SignaturePrefix) {
		return nil, ErrNotManaged
	}
	doc := &ProfileDocument{}
	var err error
	if doc.Preamble, err = beforeMarker(content, nixexpr.RegionPins.Begin()); err != nil {
		return nil, err
	}
	if doc.Pins, err = between(content, nixexpr.RegionPins); err != nil {
		return nil, err
	}
	if doc.Paths, err = between(content, nixexpr.RegionPaths); err != nil {
		return nil, err
	}
	if doc.Postamble, err = afterMarker(content, nixexpr.RegionPaths.End()); err != nil {
		return nil, err
	}
	return doc, nil
}

// postamble returns the text after the most specific terminal marker
// present, so descriptors written before the override regions existed still
// parse.
func postamble(content string) (string, error) {
	switch {
	case strings.Contains(content, nixexpr.RegionOverrideMerge.End()):
		post, err := afterMarker(content, nixexpr.RegionOverrideMerge.End())
		if err != nil {
			return "", err
		}
		return stripScriptsMerge(post), nil
	case strings.Contains(content, nixexpr.RegionOverrideShellHook.End()):
		return afterMarker(content, nixexpr.RegionOverrideShellHook.End())
	case strings.Contains(content, nixexpr.RegionOverride.End()):
		return afterMarker(content, nixexpr.RegionOverride.End())
	default:
		return afterMarker(content, nixexpr.RegionShellHook.End())
	}
}

// stripScriptsMerge drops the generator-owned merge line when it is the
// first non-blank line of the postamble.
func stripScriptsMerge(value string) string {
	lines := strings.Split(value, "\n")
	for idx, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if strings.TrimSpace(l) != nixexpr.ScriptsMerge {
			return value
		}
		out := append(append([]string{}, lines[:idx]...), lines[idx+1:]...)
		return strings.Join(out, "\n")
	}
	return value
}

func markerBounds(content, marker string) (start, end int, ok bool) {
	idx := strings.Index(content, marker)
	if idx < 0 {
		return 0, 0, false
	}
	start = strings.LastIndex(content[:idx], "\n") + 1
	if nl := strings.Index(content[idx:], "\n"); nl >= 0 {
		end = idx + nl + 1
	} else {
		end = len(content)
	}
	return start, end, true
}

func between(content string, region nixexpr.Region) (Section, error) {
	_, startEnd, ok := markerBounds(content, region.Begin())
	if !ok {
		return Section{}, &MissingMarkerError{Marker: region.Begin()}
	}
	endStart, _, ok := markerBounds(content, region.End())
	if !ok {
		return Section{}, &MissingMarkerError{Marker: region.End()}
	}
	return slice(content, startEnd, endStart), nil
}

func betweenOptional(content string, region nixexpr.Region) (Section, error) {
	_, startEnd, hasStart := markerBounds(content, region.Begin())
	endStart, _, hasEnd := markerBounds(content, region.End())
	switch {
	case !hasStart && !hasEnd:
		return Section{}, nil
	case !hasEnd:
		return Section{}, &MissingMarkerError{Marker: region.End()}
	case !hasStart:
		return Section{}, &MissingMarkerError{Marker: region.Begin()}
	}
	return slice(content, startEnd, endStart), nil
}

func slice(content string, from, to int) Section {
	if to <= from {
		return Section{Present: true}
	}
	return Section{Text: stripTrailingStub(content[from:to]), Present: true}
}

func beforeMarker(content, marker string) (string, error) {
	start, _, ok := markerBounds(content, marker)
	if !ok {
		return "", &MissingMarkerError{Marker: marker}
	}
	return stripTrailingStub(content[:start]), nil
}

func afterMarker(content, marker string) (string, error) {
	_, end, ok := markerBounds(content, marker)
	if !ok {
		return "", &MissingMarkerError{Marker: marker}
	}
	return stripTrailingStub(content[end:]), nil
}

// stripTrailingStub removes trailing lines that are blank or made only of
// '#' characters so repeated read/write cycles do not accumulate blank lines.
func stripTrailingStub(value string) string {
	if isStubLine(value) {
		return ""
	}
	out := value
	for {
		idx := strings.LastIndex(out, "\n")
		if idx < 0 {
			return out
		}
		if !isStubLine(out[idx+1:]) {
			return out
		}
		out = out[:idx]
	}
}

func isStubLine(value string) bool {
	return strings.Trim(strings.TrimSpace(value), "#") == ""
}
