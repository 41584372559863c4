// Package nixgen renders merged state as descriptor text with mica marker
// regions.
package nixgen

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gemologic/mica/internal/merge"
	"github.com/gemologic/mica/internal/nixexpr"
	"github.com/gemologic/mica/internal/state"
)

// ProfileName is the buildEnv name of the global profile.
const ProfileName = "mica-profile"

// Project renders a project descriptor. Output depends only on its inputs;
// the timestamp comment is the only line that varies between runs.
func Project(st *state.Project, merged merge.Result, name string, at time.Time) string {
	var b strings.Builder
	b.WriteString(nixexpr.Signature + "\n")
	b.WriteString("# Do not edit sections between mica: markers\n")
	b.WriteString("# Manual additions outside markers will be preserved\n")
	fmt.Fprintf(&b, "# Last generated: %s\n\n", at.UTC().Format(time.RFC3339))

	b.WriteString("{ pkgs ? import (fetchTarball {\n")
	line(&b, nixexpr.RegionPin.BeginLine("    "))
	writeFetchFields(&b, "    ", st.Pin)
	line(&b, nixexpr.RegionPin.EndLine("    "))
	b.WriteString("  }) {}\n")

	params := PinnedParams(st.Packages.Pinned)
	line(&b, nixexpr.RegionPins.BeginLine("  "))
	for _, pinName := range st.PinNames() {
		fmt.Fprintf(&b, "  , %s ? import (fetchTarball {\n", nixexpr.Sanitize(pinName))
		writeFetchFields(&b, "      ", st.Pins[pinName])
		b.WriteString("    }) {}\n")
	}
	for _, attr := range st.Packages.PinnedNames() {
		fmt.Fprintf(&b, "  , %s%s ? import (fetchTarball {\n", nixexpr.PinnedPrefix, params[attr])
		writeFetchFields(&b, "      ", st.Packages.Pinned[attr].Pin)
		b.WriteString("    }) {}\n")
	}
	writeBlocks(&b, "  ", presetPinBlocks(merged.Blocks.Get(state.SlotPins), st.Pins))
	line(&b, nixexpr.RegionPins.EndLine("  "))
	b.WriteString("}:\n\n")

	b.WriteString("let\n")
	fmt.Fprintf(&b, "  name = %s;\n\n", nixexpr.Quote(name))
	line(&b, nixexpr.RegionLet.BeginLine("  "))
	writeBlocks(&b, "  ", merged.Blocks.Get(state.SlotLet))
	line(&b, nixexpr.RegionLet.EndLine("  "))
	b.WriteString("\n")

	b.WriteString("  scripts = with pkgs; {\n")
	line(&b, nixexpr.RegionScripts.BeginLine("    "))
	writeBlocks(&b, "    ", merged.Blocks.Get(state.SlotScripts))
	line(&b, nixexpr.RegionScripts.EndLine("    "))
	b.WriteString("  };\n\n")

	line(&b, nixexpr.RegionPackages.BeginLine("  "))
	b.WriteString("  tools = with pkgs; [\n")
	for _, group := range merged.PresetGroups {
		fmt.Fprintf(&b, "    # Preset: %s\n", group.Preset)
		for _, pkg := range group.Packages {
			fmt.Fprintf(&b, "    %s\n", pkg)
		}
		b.WriteString("\n")
	}
	if len(merged.UserPackages) > 0 {
		b.WriteString("    # User additions\n")
		for _, pkg := range merged.UserPackages {
			fmt.Fprintf(&b, "    %s\n", pkg)
		}
	}
	if len(st.Packages.Pinned) > 0 {
		b.WriteString("    # Pinned packages\n")
		for _, attr := range st.Packages.PinnedNames() {
			fmt.Fprintf(&b, "    %s%s.%s  # %s\n", nixexpr.PinnedPrefix, params[attr], attr, st.Packages.Pinned[attr].Version)
		}
	}
	line(&b, nixexpr.RegionPackagesRaw.BeginLine("    "))
	writeBlocks(&b, "    ", merged.Blocks.Get(state.SlotPackagesRaw))
	line(&b, nixexpr.RegionPackagesRaw.EndLine("    "))
	b.WriteString("  ] ++ (pkgs.lib.attrsets.attrValues scripts);\n")
	line(&b, nixexpr.RegionPackages.EndLine("  "))
	b.WriteString("\n")

	b.WriteString("  paths = pkgs.lib.flatten [ tools ];\n")
	b.WriteString("  env = pkgs.buildEnv {\n")
	b.WriteString("    inherit name paths; buildInputs = paths;\n")
	line(&b, nixexpr.RegionEnv.BeginLine("    "))
	for _, key := range merged.EnvKeys() {
		fmt.Fprintf(&b, "    %s = %s;\n", key, RenderEnvValue(merged.Env[key]))
	}
	line(&b, nixexpr.RegionEnvRaw.BeginLine("    "))
	writeBlocks(&b, "    ", merged.Blocks.Get(state.SlotEnvRaw))
	line(&b, nixexpr.RegionEnvRaw.EndLine("    "))
	line(&b, nixexpr.RegionEnv.EndLine("    "))
	b.WriteString("\n")

	line(&b, nixexpr.RegionShellHook.BeginLine("    "))
	b.WriteString("    shellHook = ''\n")
	b.WriteString(JoinShellHooks(merged.ShellHooks))
	b.WriteString("    '';\n")
	line(&b, nixexpr.RegionShellHook.EndLine("    "))
	b.WriteString("  };\n")
	b.WriteString("in\n")

	b.WriteString("env.overrideAttrs (prev: {\n")
	line(&b, nixexpr.RegionOverride.BeginLine("  "))
	writeBlocks(&b, "  ", merged.Blocks.Get(state.SlotOverride))
	line(&b, nixexpr.RegionOverride.EndLine("  "))
	if hooks := merged.Blocks.Get(state.SlotOverrideShellHook); len(hooks) > 0 {
		line(&b, nixexpr.RegionOverrideShellHook.BeginLine("  "))
		b.WriteString("  shellHook = ''\n")
		line(&b, "    "+nixexpr.PrevShellHook)
		writeBlocks(&b, "    ", hooks)
		b.WriteString("  '';\n")
		line(&b, nixexpr.RegionOverrideShellHook.EndLine("  "))
	}
	b.WriteString("}\n")
	line(&b, nixexpr.RegionOverrideMerge.BeginLine("  "))
	writeBlocks(&b, "  ", merged.Blocks.Get(state.SlotOverrideMerge))
	line(&b, nixexpr.RegionOverrideMerge.EndLine("  "))
	line(&b, "  "+nixexpr.ScriptsMerge)
	b.WriteString(")\n")
	return b.String()
}

// Profile renders the global profile descriptor.
func Profile(st *state.Profile, merged merge.ProfileResult, at time.Time) string {
	var b strings.Builder
	b.WriteString(nixexpr.Signature + "\n")
	b.WriteString("# Global user profile - install with: nix-env -if ~/.config/mica/profile.nix\n")
	fmt.Fprintf(&b, "# Last generated: %s\n\n", at.UTC().Format(time.RFC3339))

	b.WriteString("let\n")
	line(&b, nixexpr.RegionPins.BeginLine("  "))
	b.WriteString("  # Primary nixpkgs\n")
	b.WriteString("  pkgs = import (fetchTarball {\n")
	writeFetchFields(&b, "    ", st.Pin)
	b.WriteString("  }) {};\n")
	params := PinnedParams(st.Packages.Pinned)
	for _, attr := range st.Packages.PinnedNames() {
		fmt.Fprintf(&b, "\n  # Pin for %s\n", attr)
		fmt.Fprintf(&b, "  %s%s = import (fetchTarball {\n", nixexpr.PinnedPrefix, params[attr])
		writeFetchFields(&b, "    ", st.Packages.Pinned[attr].Pin)
		b.WriteString("  }) {};\n")
	}
	line(&b, nixexpr.RegionPins.EndLine("  "))
	b.WriteString("\n")

	b.WriteString("in pkgs.buildEnv {\n")
	fmt.Fprintf(&b, "  name = %s;\n\n", nixexpr.Quote(ProfileName))
	line(&b, nixexpr.RegionPaths.BeginLine("  "))
	b.WriteString("  paths = [\n")
	for _, group := range merged.PresetGroups {
		fmt.Fprintf(&b, "    # Preset: %s\n", group.Preset)
		for _, pkg := range group.Packages {
			fmt.Fprintf(&b, "    pkgs.%s\n", pkg)
		}
		b.WriteString("\n")
	}
	if len(merged.UserPackages) > 0 {
		b.WriteString("    # User additions\n")
		for _, pkg := range merged.UserPackages {
			fmt.Fprintf(&b, "    pkgs.%s\n", pkg)
		}
	}
	for _, attr := range st.Packages.PinnedNames() {
		fmt.Fprintf(&b, "    %s%s.%s  # %s\n", nixexpr.PinnedPrefix, params[attr], attr, st.Packages.Pinned[attr].Version)
	}
	b.WriteString("  ];\n")
	line(&b, nixexpr.RegionPaths.EndLine("  "))
	b.WriteString("\n")
	b.WriteString("  pathsToLink = [ \"/bin\" \"/share\" ];\n")
	b.WriteString("  extraOutputsToInstall = [ \"man\" \"doc\" ];\n")
	b.WriteString("}\n")
	return b.String()
}

// RenderEnvValue renders one env entry's right-hand side.
func RenderEnvValue(v state.EnvValue) string {
	if !v.IsExpr() {
		return nixexpr.Quote(v.Text())
	}
	trimmed := strings.TrimSpace(v.Text())
	switch {
	case trimmed == "":
		return `""`
	case strings.HasPrefix(trimmed, "${"):
		// A bare interpolation is only legal inside a string.
		return `"` + trimmed + `"`
	default:
		return trimmed
	}
}

// PinnedParams assigns each pinned attribute a collision-free identifier,
// visiting attributes in sorted order.
func PinnedParams(pinned map[string]state.PinnedPackage) map[string]string {
	attrs := make([]string, 0, len(pinned))
	for attr := range pinned {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)
	namer := nixexpr.NewNamer()
	params := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		params[attr] = namer.Name(attr)
	}
	return params
}

// JoinShellHooks lays out hook texts as the body of the shellHook string:
// each hook ends with a newline and hooks are separated by a blank line.
func JoinShellHooks(hooks []string) string {
	var b strings.Builder
	for idx, hook := range hooks {
		if idx > 0 {
			b.WriteString("\n")
		}
		b.WriteString(hook)
		if !strings.HasSuffix(hook, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// JoinBlocks lays out raw fragments the way a region body holds them,
// before indentation: blocks separated by one blank line.
func JoinBlocks(blocks []string) string {
	return strings.Join(blocks, "\n\n")
}

func presetPinBlocks(blocks []string, pins map[string]state.Pin) []string {
	var out []string
	for _, block := range blocks {
		if name, ok := nixexpr.BlockPinName(block); ok {
			if _, shadowed := pins[name]; shadowed {
				continue
			}
		}
		out = append(out, block)
	}
	return out
}

func writeFetchFields(b *strings.Builder, indent string, pin state.Pin) {
	if pin.Name != "" {
		fmt.Fprintf(b, "%sname = %s;\n", indent, nixexpr.Quote(pin.Name))
	}
	fmt.Fprintf(b, "%surl = \"%s\";\n", indent, pin.ArchiveURL())
	fmt.Fprintf(b, "%ssha256 = \"%s\";\n", indent, pin.SHA256)
}

func writeBlocks(b *strings.Builder, indent string, blocks []string) {
	for idx, block := range blocks {
		if idx > 0 {
			b.WriteString("\n")
		}
		for _, l := range strings.Split(block, "\n") {
			b.WriteString(indent)
			b.WriteString(l)
			b.WriteString("\n")
		}
	}
}

func line(b *strings.Builder, text string) {
	b.WriteString(text)
	b.WriteString("\n")
}
