package nixparse

import (
	"errors"
	"strings"

	"github.com/gemologic/mica/internal/nixexpr"
	"github.com/gemologic/mica/internal/state"
)

var (
	ErrMissingPinURL = errors.New("nixparse: missing pin url")
	ErrMissingPinSHA = errors.New("nixparse: missing pin sha256")
	ErrMissingPinRev = errors.New("nixparse: missing pin rev")
)

// ParsedProject is the state recovered from a project descriptor. Package
// and env data are as written, with preset contributions still folded in.
type ParsedProject struct {
	Pin       state.Pin
	Pins      map[string]state.Pin
	Presets   []string
	Packages  []string
	Pinned    map[string]state.PinnedPackage
	Env       map[string]state.EnvValue
	ShellHook string
	Nix       state.Fragments
	Document  *Document
}

// ParsedProfile is the state recovered from a profile descriptor.
type ParsedProfile struct {
	Pin      state.Pin
	Presets  []string
	Packages []string
	Pinned   map[string]state.PinnedPackage
	Document *ProfileDocument
}

// ParseProject recovers project state from descriptor text.
func ParseProject(content string) (*ParsedProject, error) {
	doc, err := ParseDocument(content)
	if err != nil {
		return nil, err
	}
	pin, err := parsePin(doc.Pin.Text)
	if err != nil {
		return nil, err
	}
	pins, rawPins := ParsePins(doc.Pins.Text)
	list := parsePackageList(doc.Packages.Text, pins)
	for name := range pins {
		if strings.HasPrefix(name, nixexpr.PinnedPrefix) {
			delete(pins, name)
		}
	}
	return &ParsedProject{
		Pin:       pin,
		Pins:      pins,
		Presets:   list.presets,
		Packages:  list.packages,
		Pinned:    list.pinned,
		Env:       parseEnv(doc.Env.Text),
		ShellHook: parseShellHook(doc.ShellHook.Text),
		Nix: state.Fragments{
			Let:               normalizeBlock(doc.Let.Text),
			Pins:              rawPins,
			PackagesRaw:       normalizeBlock(doc.PackagesRaw.Text),
			Scripts:           normalizeBlock(doc.Scripts.Text),
			EnvRaw:            normalizeBlock(doc.EnvRaw.Text),
			Override:          normalizeBlock(doc.Override.Text),
			OverrideMerge:     normalizeBlock(doc.OverrideMerge.Text),
			OverrideShellHook: parseOverrideShellHook(doc.OverrideShellHook),
		},
		Document: doc,
	}, nil
}

// ParseProfile recovers profile state from descriptor text.
func ParseProfile(content string) (*ParsedProfile, error) {
	doc, err := ParseProfileDocument(content)
	if err != nil {
		return nil, err
	}
	pin, err := parsePin(primaryBinding(doc.Pins.Text))
	if err != nil {
		return nil, err
	}
	pins := parseProfilePins(doc.Pins.Text)
	list := parseProfilePaths(doc.Paths.Text, pins)
	return &ParsedProfile{
		Pin:      pin,
		Presets:  list.presets,
		Packages: list.packages,
		Pinned:   list.pinned,
		Document: doc,
	}, nil
}

// ParseEnvValue classifies the right-hand side of an env line. Quoted
// strings without live interpolation become literals; everything else is
// kept verbatim as an expression.
func ParseEnvValue(value string) state.EnvValue {
	trimmed := strings.TrimSpace(value)
	quoted := nixexpr.IsQuoted(trimmed)
	switch {
	case quoted && nixexpr.HasUnescapedInterpolation(trimmed):
		return state.Expr(trimmed)
	case nixexpr.IsIndentedString(trimmed):
		return state.Expr(trimmed)
	case !quoted && trimmed != "":
		return state.Expr(trimmed)
	case quoted:
		return state.Literal(nixexpr.Unescape(trimmed[1 : len(trimmed)-1]))
	default:
		return state.Literal("")
	}
}

func parsePin(section string) (state.Pin, error) {
	url, ok := attrValue(section, "url")
	if !ok {
		return state.Pin{}, ErrMissingPinURL
	}
	sha, ok := attrValue(section, "sha256")
	if !ok {
		return state.Pin{}, ErrMissingPinSHA
	}
	base, rev, ok := splitArchiveURL(url)
	if !ok {
		return state.Pin{}, ErrMissingPinRev
	}
	pin := state.Pin{URL: base, Rev: rev, SHA256: sha}
	if name, ok := attrValue(section, "name"); ok {
		pin.Name = nixexpr.Unescape(name)
	}
	return pin, nil
}

// attrValue finds the first uncommented "key = value;" line in section.
func attrValue(section, key string) (string, bool) {
	for _, l := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if value, ok := fieldValue(trimmed, key); ok {
			return value, true
		}
	}
	return "", false
}

func fieldValue(trimmed, key string) (string, bool) {
	rest, ok := strings.CutPrefix(trimmed, key+" =")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ";"))
	return trimQuotes(rest), true
}

func trimQuotes(value string) string {
	if nixexpr.IsQuoted(value) {
		return value[1 : len(value)-1]
	}
	return value
}

// splitArchiveURL splits ".../archive/REV.tar.gz" into base and rev.
func splitArchiveURL(url string) (string, string, bool) {
	base, rest, ok := strings.Cut(url, "/archive/")
	if !ok {
		return "", "", false
	}
	rev := strings.TrimSuffix(rest, ".tar.gz")
	if rev == "" {
		return "", "", false
	}
	return base, rev, true
}

type pinBlock struct {
	name  string
	lines []string
	url   string
	sha   string
	label string
}

func (b *pinBlock) observe(trimmed string) {
	if v, ok := fieldValue(trimmed, "url"); ok {
		b.url = v
	} else if v, ok := fieldValue(trimmed, "sha256"); ok {
		b.sha = v
	} else if v, ok := fieldValue(trimmed, "name"); ok {
		b.label = nixexpr.Unescape(v)
	}
}

func (b *pinBlock) pin() (state.Pin, bool) {
	if b.url == "" || b.sha == "" {
		return state.Pin{}, false
	}
	base, rev, ok := splitArchiveURL(b.url)
	if !ok {
		return state.Pin{}, false
	}
	return state.Pin{Name: b.label, URL: base, Rev: rev, SHA256: b.sha}, true
}

// ParsePins recovers "NAME ? import (fetchTarball {...})" parameters from a
// pins region.
// Lines that do not form a complete pin block are returned as raw text.
func ParsePins(section string) (map[string]state.Pin, string) {
	pins := map[string]state.Pin{}
	var raw []string
	var current *pinBlock
	for _, l := range strings.Split(section, "\n") {
		if current == nil {
			if name, ok := nixexpr.PinParamName(l); ok {
				current = &pinBlock{name: name, lines: []string{l}}
				if strings.Contains(l, "})") {
					raw = append(raw, current.lines...)
					current = nil
				}
				continue
			}
			raw = append(raw, l)
			continue
		}
		current.lines = append(current.lines, l)
		trimmed := strings.TrimSpace(l)
		if strings.Contains(trimmed, "})") {
			if pin, ok := current.pin(); ok {
				pins[current.name] = pin
			} else {
				raw = append(raw, current.lines...)
			}
			current = nil
			continue
		}
		current.observe(trimmed)
	}
	if current != nil {
		raw = append(raw, current.lines...)
	}
	return pins, normalizeBlock(strings.Join(raw, "\n"))
}

type packageList struct {
	presets  []string
	packages []string
	pinned   map[string]state.PinnedPackage
}

func (l *packageList) addPinned(pins map[string]state.Pin, item, comment string) bool {
	param, attr, ok := strings.Cut(item, ".")
	if !ok || !strings.HasPrefix(param, nixexpr.PinnedPrefix) {
		return false
	}
	pin, ok := pins[param]
	if !ok {
		return false
	}
	version := strings.TrimSpace(comment)
	if version == "" {
		version = "unknown"
	}
	l.pinned[normalizePackage(attr)] = state.PinnedPackage{Version: version, Pin: pin}
	return true
}

func parsePackageList(section string, pins map[string]state.Pin) packageList {
	list := packageList{pinned: map[string]state.PinnedPackage{}}
	inRaw := false
	for _, l := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(l)
		switch {
		case strings.Contains(trimmed, nixexpr.RegionPackagesRaw.Begin()):
			inRaw = true
			continue
		case strings.Contains(trimmed, nixexpr.RegionPackagesRaw.End()):
			inRaw = false
			continue
		case inRaw || trimmed == "":
			continue
		}
		if name, ok := strings.CutPrefix(trimmed, "# Preset: "); ok {
			list.presets = append(list.presets, strings.TrimSpace(name))
			continue
		}
		if strings.HasPrefix(trimmed, "#") || structuralListLine(trimmed) {
			continue
		}
		item, comment, _ := strings.Cut(strings.TrimSpace(strings.TrimSuffix(trimmed, ",")), "#")
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if list.addPinned(pins, item, comment) {
			continue
		}
		list.packages = append(list.packages, normalizePackage(item))
	}
	return list
}

func structuralListLine(trimmed string) bool {
	return strings.Contains(trimmed, "packages =") ||
		strings.HasPrefix(trimmed, "tools =") ||
		strings.Contains(trimmed, "= with pkgs; [") ||
		trimmed == "[" || trimmed == "];" ||
		strings.HasPrefix(trimmed, "] ++")
}

func normalizePackage(name string) string {
	if rest, ok := strings.CutPrefix(name, "nixos."); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(name, "pkgs."); ok {
		return rest
	}
	return name
}

func parseEnv(section string) map[string]state.EnvValue {
	env := map[string]state.EnvValue{}
	inRaw := false
	for _, l := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(l)
		switch {
		case strings.Contains(trimmed, nixexpr.RegionEnvRaw.Begin()):
			inRaw = true
			continue
		case strings.Contains(trimmed, nixexpr.RegionEnvRaw.End()):
			inRaw = false
			continue
		case inRaw || trimmed == "" || strings.HasPrefix(trimmed, "#"):
			continue
		}
		key, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSuffix(strings.TrimSpace(value), ";")
		env[key] = ParseEnvValue(value)
	}
	return env
}

// parseShellHook returns the body of the shellHook string without the
// final newline the generator adds after the last hook.
func parseShellHook(section string) string {
	var b strings.Builder
	inside := false
	for _, l := range strings.Split(section, "\n") {
		if !inside {
			if strings.Contains(l, "shellHook = ''") {
				inside = true
			}
			continue
		}
		if strings.Contains(l, "'';") {
			break
		}
		b.WriteString(l)
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func parseOverrideShellHook(section Section) string {
	if !section.Present {
		return ""
	}
	var kept []string
	for _, l := range strings.Split(parseShellHook(section.Text), "\n") {
		if strings.TrimSpace(l) == nixexpr.PrevShellHook {
			continue
		}
		kept = append(kept, l)
	}
	return normalizeBlock(strings.Join(kept, "\n"))
}

// normalizeBlock trims surrounding newlines and removes the common
// indentation of non-blank lines.
func normalizeBlock(text string) string {
	trimmed := strings.Trim(text, "\n")
	if strings.TrimSpace(trimmed) == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	indent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, l := range lines {
		if len(l) >= indent {
			lines[i] = l[indent:]
		} else {
			lines[i] = ""
		}
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// primaryBinding returns the part of a profile pins region before the
// first pinned-package binding.
func primaryBinding(section string) string {
	lines := strings.Split(section, "\n")
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), nixexpr.PinnedPrefix) {
			return strings.Join(lines[:i], "\n")
		}
	}
	return section
}

// parseProfilePins collects "pkgs-NAME = import (fetchTarball {" bindings.
func parseProfilePins(section string) map[string]state.Pin {
	pins := map[string]state.Pin{}
	var current *pinBlock
	for _, l := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(l)
		if current == nil {
			if strings.HasPrefix(trimmed, nixexpr.PinnedPrefix) && strings.Contains(trimmed, "= import (fetchTarball") {
				name, _, _ := strings.Cut(trimmed, "=")
				current = &pinBlock{name: strings.TrimSpace(name)}
			}
			continue
		}
		if strings.HasPrefix(trimmed, "})") {
			if pin, ok := current.pin(); ok {
				pins[current.name] = pin
			}
			current = nil
			continue
		}
		current.observe(trimmed)
	}
	return pins
}

func parseProfilePaths(section string, pins map[string]state.Pin) packageList {
	list := packageList{pinned: map[string]state.PinnedPackage{}}
	for _, l := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		if name, ok := strings.CutPrefix(trimmed, "# Preset: "); ok {
			list.presets = append(list.presets, strings.TrimSpace(name))
			continue
		}
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "paths =") || trimmed == "[" || trimmed == "];" {
			continue
		}
		item, comment, _ := strings.Cut(trimmed, "#")
		item = strings.TrimSpace(item)
		if item == "" || list.addPinned(pins, item, comment) {
			continue
		}
		list.packages = append(list.packages, normalizePackage(item))
	}
	return list
}
