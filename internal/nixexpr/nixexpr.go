// Package nixexpr holds the small lexical vocabulary shared by the descriptor
// generator and parser: region marker names, string escaping, and identifier
// sanitization.
package nixexpr

import (
	"fmt"
	"strings"
)

const (
	// SignaturePrefix begins every managed descriptor.
	SignaturePrefix = "# Managed by Mica"
	// Signature is the full first line written by this version.
	Signature = SignaturePrefix + " v0.1.0"

	// ScriptsMerge is the structural line that follows the override-merge
	// region in project descriptors.
	ScriptsMerge = "// { inherit scripts; }"

	// PrevShellHook chains the base environment's hook inside the override
	// shell hook region.
	PrevShellHook = `${prev.shellHook or ""}`

	// FallbackIdentifier is used when sanitization leaves nothing behind.
	FallbackIdentifier = "_pin"

	// PinnedPrefix prefixes parameters that carry pinned packages.
	PinnedPrefix = "pkgs-"
)

// Region names a marker-delimited section.
type Region string

const (
	RegionPin               Region = "pin"
	RegionPins              Region = "pins"
	RegionLet               Region = "let"
	RegionScripts           Region = "scripts"
	RegionPackages          Region = "packages"
	RegionPackagesRaw       Region = "packages-raw"
	RegionEnv               Region = "env"
	RegionEnvRaw            Region = "env-raw"
	RegionShellHook         Region = "shellhook"
	RegionOverride          Region = "override"
	RegionOverrideShellHook Region = "override-shellhook"
	RegionOverrideMerge     Region = "override-merge"
	RegionPaths             Region = "paths"
)

// Begin returns the start marker token, e.g. "mica:pin:begin".
func (r Region) Begin() string { return fmt.Sprintf("mica:%s:begin", r) }

// End returns the end marker token, e.g. "mica:pin:end".
func (r Region) End() string { return fmt.Sprintf("mica:%s:end", r) }

// BeginLine returns the indented start marker comment line.
func (r Region) BeginLine(indent string) string { return indent + "# " + r.Begin() }

// EndLine returns the indented end marker comment line.
func (r Region) EndLine(indent string) string { return indent + "# " + r.End() }

// MarkerComment matches any marker comment line.
const MarkerComment = "# mica:"

// Escape makes value safe inside a double-quoted descriptor string.
func Escape(value string) string {
	out := strings.ReplaceAll(value, `\`, `\\`)
	out = strings.ReplaceAll(out, `"`, `\"`)
	out = strings.ReplaceAll(out, "\n", `\n`)
	out = strings.ReplaceAll(out, "\r", `\r`)
	out = strings.ReplaceAll(out, "\t", `\t`)
	return strings.ReplaceAll(out, "${", `\${`)
}

// Quote escapes and wraps value in double quotes.
func Quote(value string) string {
	return `"` + Escape(value) + `"`
}

// Unescape reverses Escape for the body of a double-quoted string.
// Unknown escapes keep the escaped character.
func Unescape(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch != '\\' || i+1 >= len(value) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch value[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(value[i])
		}
	}
	return b.String()
}

// HasUnescapedInterpolation reports whether value contains a "${" that is
// not preceded by an odd run of backslashes.
func HasUnescapedInterpolation(value string) bool {
	for i := 0; i+1 < len(value); i++ {
		if value[i] != '$' || value[i+1] != '{' {
			continue
		}
		slashes := 0
		for j := i - 1; j >= 0 && value[j] == '\\'; j-- {
			slashes++
		}
		if slashes%2 == 0 {
			return true
		}
	}
	return false
}

// IsQuoted reports whether value is a complete double-quoted string token.
func IsQuoted(value string) bool {
	return len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)
}

// IsIndentedString reports whether value is a complete ''...'' string token.
func IsIndentedString(value string) bool {
	return len(value) >= 4 && strings.HasPrefix(value, "''") && strings.HasSuffix(value, "''")
}

// Sanitize maps name onto a valid identifier: characters outside
// [A-Za-z0-9_] become underscores and a leading digit gets an underscore
// prefix.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return FallbackIdentifier
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// Namer hands out sanitized identifiers that are unique within one document.
type Namer struct {
	used map[string]struct{}
}

// NewNamer returns an empty Namer.
func NewNamer() *Namer {
	return &Namer{used: map[string]struct{}{}}
}

// Name sanitizes name and appends _2, _3, ... until it is unused.
func (n *Namer) Name(name string) string {
	base := Sanitize(name)
	candidate := base
	for idx := 2; ; idx++ {
		if _, taken := n.used[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s_%d", base, idx)
	}
	n.used[candidate] = struct{}{}
	return candidate
}

// PinParamName extracts NAME from a pin parameter line of the form
// ", NAME ? import (fetchTarball {".
func PinParamName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, ",") || !strings.Contains(trimmed, "? import (fetchTarball") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimLeft(trimmed, ","))
	name, _, ok := strings.Cut(rest, "?")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(name), true
}

// BlockPinName returns the parameter name declared by the first pin line in block.
func BlockPinName(block string) (string, bool) {
	for _, line := range strings.Split(block, "\n") {
		if name, ok := PinParamName(line); ok {
			return name, true
		}
	}
	return "", false
}
