package nixgen

import (
	"strings"
	"testing"
	"time"

	"github.com/gemologic/mica/internal/merge"
	"github.com/gemologic/mica/internal/preset"
	"github.com/gemologic/mica/internal/state"
)

var generatedAt = time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)

func basePin() state.Pin {
	return state.Pin{
		URL:    "https://github.com/NixOS/nixpkgs",
		Rev:    "deadbeef",
		SHA256: "0123456789abcdef0123456789abcdef0123456789abcdef0123",
		Branch: "main",
	}
}

func collidingPinned() map[string]state.PinnedPackage {
	return map[string]state.PinnedPackage{
		"foo-bar": {Version: "1.0.0", Pin: basePin()},
		"foo_bar": {Version: "2.0.0", Pin: basePin()},
	}
}

func projectWithEnv(key string, value state.EnvValue) string {
	st := state.NewProject(basePin(), generatedAt)
	st.Env[key] = value
	return Project(st, merge.Project(nil, st), "demo", generatedAt)
}

func TestProjectUsesUniqueParamsForCollidingPinnedAttrs(t *testing.T) {
	st := state.NewProject(basePin(), generatedAt)
	st.Packages.Pinned = collidingPinned()
	output := Project(st, merge.Project(nil, st), "demo", generatedAt)
	for _, want := range []string{
		"  , pkgs-foo_bar ? import (fetchTarball {",
		"  , pkgs-foo_bar_2 ? import (fetchTarball {",
		"    pkgs-foo_bar.foo-bar  # 1.0.0",
		"    pkgs-foo_bar_2.foo_bar  # 2.0.0",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
}

func TestProfileUsesUniqueParamsForCollidingPinnedAttrs(t *testing.T) {
	profile := state.NewProfile(basePin(), generatedAt)
	profile.Packages.Pinned = collidingPinned()
	output := Profile(profile, merge.Profile(nil, profile), generatedAt)
	for _, want := range []string{
		"  pkgs-foo_bar = import (fetchTarball {",
		"  pkgs-foo_bar_2 = import (fetchTarball {",
		"    pkgs-foo_bar.foo-bar  # 1.0.0",
		"    pkgs-foo_bar_2.foo_bar  # 2.0.0",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
}

func TestEnvRendering(t *testing.T) {
	cases := []struct {
		name  string
		value state.EnvValue
		want  string
	}{
		{"literal escapes interpolation", state.Literal("${HOME}/mica"), `MICA_TEST = "\${HOME}/mica";`},
		{"literal escapes quotes", state.Literal(`say "hi"`), `MICA_TEST = "say \"hi\"";`},
		{"quoted expression kept", state.Expr(`"${pkgs.path}/meme"`), `MICA_TEST = "${pkgs.path}/meme";`},
		{"raw expression verbatim", state.Expr(` pkgs.path + "/meme" `), `MICA_TEST = pkgs.path + "/meme";`},
		{"bare interpolation wrapped", state.Expr("${pkgs.path}/meme"), `MICA_TEST = "${pkgs.path}/meme";`},
		{"empty expression", state.Expr("  "), `MICA_TEST = "";`},
	}
	for _, tc := range cases {
		output := projectWithEnv("MICA_TEST", tc.value)
		if !strings.Contains(output, tc.want) {
			t.Fatalf("%s: output missing %q", tc.name, tc.want)
		}
	}
}

func TestProjectIsDeterministic(t *testing.T) {
	presets := []preset.Preset{
		{Name: "base", Required: []string{"git"}, Env: map[string]state.EnvValue{"Z": state.Literal("z"), "A": state.Literal("a")}},
	}
	st := state.NewProject(basePin(), generatedAt)
	st.Pins["unstable"] = basePin()
	st.Pins["alpha"] = basePin()
	st.Packages.Pinned = collidingPinned()
	first := Project(st, merge.Project(presets, st), "demo", generatedAt)
	second := Project(st, merge.Project(presets, st), "demo", generatedAt)
	if first != second {
		t.Fatalf("generation must be deterministic")
	}
	if strings.Index(first, ", alpha ?") > strings.Index(first, ", unstable ?") {
		t.Fatalf("extra pins must be emitted in sorted order")
	}
	if strings.Index(first, "    A = ") > strings.Index(first, "    Z = ") {
		t.Fatalf("env must be emitted in sorted order")
	}
}

func TestProjectLayout(t *testing.T) {
	presets := []preset.Preset{
		{Name: "base", Required: []string{"git", "curl"}, ShellHook: "echo base"},
	}
	st := state.NewProject(basePin(), generatedAt)
	st.Packages.Add("ripgrep")
	st.SetShellHook("echo user\n")
	st.Nix.OverrideShellHook = "echo override"
	output := Project(st, merge.Project(presets, st), `my "app"`, generatedAt)

	for _, want := range []string{
		"# Managed by Mica v0.1.0\n",
		"# Last generated: 2026-02-06T00:00:00Z\n",
		"    url = \"https://github.com/NixOS/nixpkgs/archive/deadbeef.tar.gz\";\n",
		"  name = \"my \\\"app\\\"\";\n",
		"    # Preset: base\n    git\n    curl\n\n    # User additions\n    ripgrep\n",
		"    shellHook = ''\necho base\n\necho user\n    '';\n",
		"  shellHook = ''\n    ${prev.shellHook or \"\"}\n    echo override\n  '';\n",
		"  # mica:override-merge:end\n  // { inherit scripts; }\n)\n",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
}

func TestOverrideShellHookRegionOmittedWhenEmpty(t *testing.T) {
	st := state.NewProject(basePin(), generatedAt)
	output := Project(st, merge.Project(nil, st), "demo", generatedAt)
	if strings.Contains(output, "mica:override-shellhook") {
		t.Fatalf("override shellhook region should be omitted without blocks")
	}
	if !strings.Contains(output, "    shellHook = ''\n    '';\n") {
		t.Fatalf("empty shell hook should still be emitted")
	}
}

func TestPresetPinBlocksShadowedByStatePins(t *testing.T) {
	block := ", unstable ? import (fetchTarball {\n    url = \"https://example.com/archive/x.tar.gz\";\n    sha256 = \"y\";\n  }) {}"
	presets := []preset.Preset{{Name: "p", Nix: state.Fragments{Pins: block}}}
	st := state.NewProject(basePin(), generatedAt)
	output := Project(st, merge.Project(presets, st), "demo", generatedAt)
	if !strings.Contains(output, "  , unstable ? import") {
		t.Fatalf("preset pin block should be emitted")
	}
	st.Pins["unstable"] = basePin()
	output = Project(st, merge.Project(presets, st), "demo", generatedAt)
	if strings.Count(output, ", unstable ? import") != 1 {
		t.Fatalf("state pin must shadow preset pin block:\n%s", output)
	}
}

func TestJoinShellHooks(t *testing.T) {
	if got := JoinShellHooks([]string{"a", "b\n"}); got != "a\n\nb\n" {
		t.Fatalf("join = %q", got)
	}
	if JoinShellHooks(nil) != "" {
		t.Fatalf("no hooks should yield empty body")
	}
}
