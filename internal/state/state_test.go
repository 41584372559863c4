package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

var testNow = time.Date(2026, 2, 6, 15, 4, 5, 0, time.UTC)

func testPin() Pin {
	return Pin{
		URL:    "https://github.com/NixOS/nixpkgs",
		Rev:    "deadbeef",
		SHA256: "0123456789abcdef0123456789abcdef0123456789abcdef0123",
		Branch: "main",
	}
}

func TestPinArchiveURL(t *testing.T) {
	got := testPin().ArchiveURL()
	want := "https://github.com/NixOS/nixpkgs/archive/deadbeef.tar.gz"
	if got != want {
		t.Fatalf("archive url = %q, want %q", got, want)
	}
}

func TestPinIncomplete(t *testing.T) {
	cases := []struct {
		name string
		pin  Pin
		want bool
	}{
		{"complete", testPin(), false},
		{"empty rev", Pin{URL: "u", SHA256: "s"}, true},
		{"empty sha", Pin{URL: "u", Rev: "r"}, true},
		{"placeholder rev", Pin{URL: "u", Rev: ChangeMe, SHA256: "s"}, true},
		{"placeholder sha", Pin{URL: "u", Rev: "r", SHA256: ChangeMe}, true},
	}
	for _, tc := range cases {
		if got := tc.pin.Incomplete(); got != tc.want {
			t.Fatalf("%s: incomplete = %v, want %v", tc.name, got, tc.want)
		}
		err := tc.pin.Complete()
		if tc.want && !errors.Is(err, ErrIncompletePin) {
			t.Fatalf("%s: expected ErrIncompletePin, got %v", tc.name, err)
		}
		if !tc.want && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestEnvValueEncodeDecode(t *testing.T) {
	cases := []struct {
		raw  string
		want EnvValue
	}{
		{"hello", Literal("hello")},
		{ExprSentinel + `pkgs.path + "/meme"`, Expr(`pkgs.path + "/meme"`)},
		{`"${pkgs.path}/meme"`, Expr(`"${pkgs.path}/meme"`)},
		{"''multi''", Expr("''multi''")},
	}
	for _, tc := range cases {
		got := DecodeEnvValue(tc.raw)
		if got != tc.want {
			t.Fatalf("decode %q = %v, want %v", tc.raw, got, tc.want)
		}
	}
	if enc := Expr("x").Encode(); enc != ExprSentinel+"x" {
		t.Fatalf("unexpected encoding %q", enc)
	}
}

func TestEnvValueYAML(t *testing.T) {
	input := "A: hello\nB: \"" + ExprSentinel + "pkgs.hello\"\nC: 1\n"
	var env map[string]EnvValue
	if err := yaml.Unmarshal([]byte(input), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env["A"] != Literal("hello") {
		t.Fatalf("A = %v", env["A"])
	}
	if env["B"] != Expr("pkgs.hello") {
		t.Fatalf("B = %v", env["B"])
	}
	if env["C"] != Literal("1") {
		t.Fatalf("C = %v", env["C"])
	}
	out, err := yaml.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var again map[string]EnvValue
	if err := yaml.Unmarshal(out, &again); err != nil {
		t.Fatalf("unmarshal again: %v", err)
	}
	if again["B"] != env["B"] || again["A"] != env["A"] {
		t.Fatalf("yaml round trip changed values: %v", again)
	}
}

func TestPackagesAddRemoveStayDisjoint(t *testing.T) {
	var pkgs Packages
	pkgs.Add("ripgrep", "jq", " ", "ripgrep")
	pkgs.Remove("jq", "curl")
	if len(pkgs.Added) != 1 || pkgs.Added[0] != "ripgrep" {
		t.Fatalf("unexpected added %v", pkgs.Added)
	}
	if len(pkgs.Removed) != 2 || pkgs.Removed[0] != "jq" || pkgs.Removed[1] != "curl" {
		t.Fatalf("unexpected removed %v", pkgs.Removed)
	}
	pkgs.Add("curl")
	if len(pkgs.Removed) != 1 || pkgs.Removed[0] != "jq" {
		t.Fatalf("add should clear removal, got %v", pkgs.Removed)
	}
}

func TestUpdatePinCreatesPinnedStub(t *testing.T) {
	project := NewProject(testPin(), testNow)
	project.UpdatePin(PinUpdate{Package: "nodejs", Rev: "cafe"}, testNow)
	entry, ok := project.Packages.Pinned["nodejs"]
	if !ok {
		t.Fatalf("expected pinned entry")
	}
	if entry.Version != ChangeMe {
		t.Fatalf("expected placeholder version, got %q", entry.Version)
	}
	if entry.Pin.Rev != "cafe" || entry.Pin.SHA256 != testPin().SHA256 {
		t.Fatalf("unexpected pinned pin %+v", entry.Pin)
	}
	if project.Pin.Rev != "deadbeef" {
		t.Fatalf("primary pin must not change, got %s", project.Pin.Rev)
	}
	project.UpdatePin(PinUpdate{Rev: "feed"}, testNow)
	if project.Pin.Rev != "feed" {
		t.Fatalf("primary pin rev = %s", project.Pin.Rev)
	}
	if !project.Pin.Updated.Equal(time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("updated date = %v", project.Pin.Updated)
	}
}

func TestValidPinName(t *testing.T) {
	valid := []string{"unstable", "_x", "pin_2", "A"}
	invalid := []string{"", "2pin", "foo-bar", "foo bar", "é"}
	for _, name := range valid {
		if !ValidPinName(name) {
			t.Fatalf("%q should be valid", name)
		}
	}
	for _, name := range invalid {
		if ValidPinName(name) {
			t.Fatalf("%q should be invalid", name)
		}
	}
}

func TestAddExtraPin(t *testing.T) {
	project := NewProject(testPin(), testNow)
	extra := Pin{URL: "https://github.com/NixOS/nixpkgs", Rev: "abc", SHA256: "sha"}
	if err := project.AddExtraPin("unstable", extra, testNow); err != nil {
		t.Fatalf("add pin: %v", err)
	}
	if project.Pins["unstable"].Branch != "main" {
		t.Fatalf("branch should default from primary pin, got %q", project.Pins["unstable"].Branch)
	}
	if err := project.AddExtraPin("unstable", extra, testNow); !errors.Is(err, ErrPinExists) {
		t.Fatalf("expected ErrPinExists, got %v", err)
	}
	if err := project.AddExtraPin("bad-name", extra, testNow); !errors.Is(err, ErrInvalidPinName) {
		t.Fatalf("expected ErrInvalidPinName, got %v", err)
	}
	if err := project.AddExtraPin("other", Pin{URL: "u"}, testNow); !errors.Is(err, ErrIncompletePin) {
		t.Fatalf("expected ErrIncompletePin, got %v", err)
	}
	if err := project.RemoveExtraPin("unstable"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := project.RemoveExtraPin("unstable"); !errors.Is(err, ErrPinNotFound) {
		t.Fatalf("expected ErrPinNotFound, got %v", err)
	}
}

func TestSetEnvRejectsBadKeys(t *testing.T) {
	project := NewProject(testPin(), testNow)
	if err := project.SetEnv("GOOD_KEY", Literal("v")); err != nil {
		t.Fatalf("set env: %v", err)
	}
	for _, key := range []string{"", "BAD KEY", "A=B"} {
		if err := project.SetEnv(key, Literal("v")); !errors.Is(err, ErrInvalidEnvKey) {
			t.Fatalf("key %q: expected ErrInvalidEnvKey, got %v", key, err)
		}
	}
	if err := project.SetEnv("HOOK", Expr("''\n  a\n''")); !errors.Is(err, ErrMultilineExpr) {
		t.Fatalf("multi-line expr: expected ErrMultilineExpr, got %v", err)
	}
	if _, ok := project.Env["HOOK"]; ok {
		t.Fatalf("rejected expr must not be stored")
	}
	if err := project.SetEnv("NOTE", Literal("a\nb")); err != nil {
		t.Fatalf("multi-line literal is escaped and allowed: %v", err)
	}
	if !project.UnsetEnv("GOOD_KEY") || project.UnsetEnv("GOOD_KEY") {
		t.Fatalf("unset should report presence exactly once")
	}
}

func TestPresetActivationKeepsOrder(t *testing.T) {
	project := NewProject(testPin(), testNow)
	project.ApplyPresets("rust", "go", "rust")
	project.ApplyPresets("python")
	project.UnapplyPresets("go")
	if len(project.Presets) != 2 || project.Presets[0] != "rust" || project.Presets[1] != "python" {
		t.Fatalf("unexpected presets %v", project.Presets)
	}
}

func TestFragmentsSlots(t *testing.T) {
	var frags Fragments
	if !frags.IsZero() {
		t.Fatalf("new fragments should be zero")
	}
	for i, slot := range Slots {
		frags.Set(slot, slot.String())
		if frags.Get(slot) != slot.String() {
			t.Fatalf("slot %d round trip failed", i)
		}
	}
	if frags.OverrideShellHook != "override_shellhook" || frags.Let != "let" {
		t.Fatalf("slot fields not wired: %+v", frags)
	}
}

func TestProfileSaveLoadAndGenerations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mica", "profile.yaml")
	profile := NewProfile(testPin(), testNow)
	profile.ApplyPresets("base")
	profile.Packages.Add("ripgrep")
	profile.Packages.Remove("git")
	first := profile.RecordGeneration([]string{"ripgrep"}, testNow)
	second := profile.RecordGeneration([]string{"ripgrep", "jq"}, testNow.Add(time.Hour))
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("unexpected generation ids %d %d", first.ID, second.ID)
	}
	data, err := MarshalProfile(profile)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Pin.Rev != "deadbeef" || loaded.Presets[0] != "base" {
		t.Fatalf("unexpected profile %+v", loaded)
	}
	if len(loaded.Generations) != 2 || loaded.Generations[1].Packages[1] != "jq" {
		t.Fatalf("unexpected generations %+v", loaded.Generations)
	}
	if !loaded.Mica.Created.Equal(testNow) {
		t.Fatalf("created = %v", loaded.Mica.Created)
	}
}

func TestLoadProfileMissing(t *testing.T) {
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing profile")
	}
}
