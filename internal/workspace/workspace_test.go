package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gemologic/mica/internal/assemble"
	"github.com/gemologic/mica/internal/config"
	"github.com/gemologic/mica/internal/logbook"
	"github.com/gemologic/mica/internal/preset"
	"github.com/gemologic/mica/internal/state"
)

var fixedNow = time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC)

func testPin() state.Pin {
	return state.Pin{
		URL:    "https://github.com/NixOS/nixpkgs",
		Rev:    "deadbeef",
		SHA256: "0123456789abcdef",
	}
}

func newWorkspace(t *testing.T) (*Workspace, *logbook.Logbook) {
	t.Helper()
	cfg, err := config.LoadDir(filepath.Join(t.TempDir(), "config"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	book, err := logbook.New(cfg.LogPath())
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	w, err := Open(t.TempDir(), cfg,
		WithClock(func() time.Time { return fixedNow }),
		WithLogbook(book),
		WithProjectName("demo"),
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return w, book
}

func logContains(book *logbook.Logbook, needle string) bool {
	lines, _ := book.Tail(50)
	for _, l := range lines {
		if strings.Contains(l, needle) {
			return true
		}
	}
	return false
}

func TestInitAndLoadProject(t *testing.T) {
	w, _ := newWorkspace(t)
	if _, err := w.LoadProject(); !errors.Is(err, ErrNoProject) {
		t.Fatalf("expected ErrNoProject, got %v", err)
	}
	if _, err := w.InitProject(testPin()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := w.InitProject(testPin()); !errors.Is(err, ErrProjectExists) {
		t.Fatalf("second init should fail, got %v", err)
	}
	st, err := w.LoadProject()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.Pin.URL != testPin().URL || st.Pin.Rev != "deadbeef" || st.Pin.SHA256 != "0123456789abcdef" {
		t.Fatalf("pin = %+v", st.Pin)
	}
	if st.Pin.Branch != "main" {
		t.Fatalf("branch should default from config, got %q", st.Pin.Branch)
	}
	if _, err := os.Stat(w.ProjectPath() + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("lock file should be released")
	}
}

func TestLoadProjectSubtractsPresets(t *testing.T) {
	w, _ := newWorkspace(t)
	st, err := w.InitProject(testPin())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	st.ApplyPresets("python", "go")
	st.Packages.Add("ripgrep")
	st.Packages.Remove("gotools")
	if err := st.SetEnv("EDITOR", state.Literal("vim")); err != nil {
		t.Fatalf("set env: %v", err)
	}
	st.SetShellHook("echo hi\n")
	if _, err := w.SaveProject(st); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := w.LoadProject()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := []string{"go", "python"}; !reflect.DeepEqual(loaded.Presets, want) {
		t.Fatalf("presets = %v, want %v", loaded.Presets, want)
	}
	if !reflect.DeepEqual(loaded.Packages.Added, []string{"ripgrep"}) {
		t.Fatalf("added = %v", loaded.Packages.Added)
	}
	if !reflect.DeepEqual(loaded.Packages.Removed, []string{"gotools"}) {
		t.Fatalf("removed = %v", loaded.Packages.Removed)
	}
	if len(loaded.Env) != 1 || loaded.Env["EDITOR"] != state.Literal("vim") {
		t.Fatalf("preset env should be subtracted, got %v", loaded.Env)
	}
	if loaded.ShellHook != "echo hi" {
		t.Fatalf("shell hook = %q", loaded.ShellHook)
	}

	changes, err := w.DiffProject(loaded)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if assemble.Drifted(changes) {
		t.Fatalf("reloaded state should not drift:\n%s", assemble.Summary(changes))
	}
}

func TestEnvAndShellHookSurviveRepeatedSaves(t *testing.T) {
	w, _ := newWorkspace(t)
	st, err := w.InitProject(testPin())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	st.ApplyPresets("python")
	if err := st.SetEnv("FOO", state.Expr("''\n  a\n''")); !errors.Is(err, state.ErrMultilineExpr) {
		t.Fatalf("multi-line expr should be rejected, got %v", err)
	}
	if err := st.SetEnv("SRC", state.Expr("./src")); err != nil {
		t.Fatalf("set expr: %v", err)
	}
	if err := st.SetEnv("NOTE", state.Literal("two\nlines")); err != nil {
		t.Fatalf("set literal: %v", err)
	}
	st.SetShellHook("echo one\necho two")

	for round := 1; round <= 2; round++ {
		rendered, err := w.SaveProject(st)
		if err != nil {
			t.Fatalf("round %d save: %v", round, err)
		}
		if !rendered.Normalized {
			t.Fatalf("round %d: output should pass the bracket check", round)
		}
		st, err = w.LoadProject()
		if err != nil {
			t.Fatalf("round %d load: %v", round, err)
		}
		want := map[string]state.EnvValue{
			"SRC":  state.Expr("./src"),
			"NOTE": state.Literal("two\nlines"),
		}
		if !reflect.DeepEqual(st.Env, want) {
			t.Fatalf("round %d env = %v", round, st.Env)
		}
		if st.ShellHook != "echo one\necho two" {
			t.Fatalf("round %d shell hook = %q", round, st.ShellHook)
		}
	}
}

func TestSaveProjectKeepsUserEdits(t *testing.T) {
	w, book := newWorkspace(t)
	st, err := w.InitProject(testPin())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	data, err := os.ReadFile(w.ProjectPath())
	if err != nil {
		t.Fatal(err)
	}
	edited := "# keep me\n" + string(data)
	if err := os.WriteFile(w.ProjectPath(), []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}

	st.Packages.Add("jq")
	lines, err := w.PreviewProject(st)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	var added []string
	for _, l := range assemble.ChangesOnly(lines) {
		if l.Op == assemble.OpAdd {
			added = append(added, strings.TrimSpace(l.Text))
		}
	}
	if want := []string{"# User additions", "jq"}; !reflect.DeepEqual(added, want) {
		t.Fatalf("preview additions = %v", added)
	}

	rendered, err := w.SaveProject(st)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rendered.Outcome != assemble.OutcomeAssembled || !rendered.Normalized {
		t.Fatalf("outcome = %s normalized=%v", rendered.Outcome, rendered.Normalized)
	}
	out, err := os.ReadFile(w.ProjectPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(out), "# keep me\n") {
		t.Fatalf("user preamble lost:\n%s", out)
	}
	if !logContains(book, "(assembled)") {
		t.Fatalf("write should be logged with its outcome")
	}
}

func TestSaveProjectFallsBackOverUnmanagedFile(t *testing.T) {
	w, book := newWorkspace(t)
	if err := os.WriteFile(w.ProjectPath(), []byte("{ pkgs ? import <nixpkgs> {} }: pkgs.mkShell {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rendered, err := w.SaveProject(state.NewProject(testPin(), fixedNow))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rendered.Outcome != assemble.OutcomeFallback || rendered.Reason == nil {
		t.Fatalf("expected fallback, got %s", rendered.Outcome)
	}
	if !logContains(book, "not reusable") {
		t.Fatalf("fallback should be logged")
	}
	if _, err := w.LoadProject(); err != nil {
		t.Fatalf("regenerated file should load: %v", err)
	}
}

func TestRenderRejectsBadInput(t *testing.T) {
	w, _ := newWorkspace(t)
	incomplete := state.NewProject(state.Pin{URL: testPin().URL, Rev: state.ChangeMe, SHA256: "x"}, fixedNow)
	if _, err := w.Render(incomplete); !errors.Is(err, state.ErrIncompletePin) {
		t.Fatalf("expected ErrIncompletePin, got %v", err)
	}
	unknown := state.NewProject(testPin(), fixedNow)
	unknown.ApplyPresets("no-such-preset")
	if _, err := w.Render(unknown); !errors.Is(err, preset.ErrPresetNotFound) {
		t.Fatalf("expected ErrPresetNotFound, got %v", err)
	}
}

func TestProjectPresetDirectory(t *testing.T) {
	w, _ := newWorkspace(t)
	dir := filepath.Join(w.dir, config.ProjectPresetDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := "preset:\n  name: local\n  order: 50\npackages:\n  required: [hello]\n"
	if err := os.WriteFile(filepath.Join(dir, "local.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	catalog, err := w.Presets()
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	if _, ok := catalog.Lookup("local"); !ok {
		t.Fatalf("project preset not loaded")
	}
	if _, ok := catalog.Lookup("base"); !ok {
		t.Fatalf("built-in presets missing")
	}
}

func TestLockContention(t *testing.T) {
	w, book := newWorkspace(t)
	lock, err := AcquireLock(w.ProjectPath())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := w.SaveProject(state.NewProject(testPin(), fixedNow)); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if !logContains(book, "WARN") {
		t.Fatalf("lock contention should be logged as a warning")
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := w.SaveProject(state.NewProject(testPin(), fixedNow)); err != nil {
		t.Fatalf("save after release: %v", err)
	}
}

func TestReleaseRefusesForeignLock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "default.nix")
	lock, err := AcquireLock(target)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := os.WriteFile(lockPath(target), []byte("someone-else\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err == nil {
		t.Fatalf("release should refuse a replaced lock")
	}
	if _, err := os.Stat(lockPath(target)); err != nil {
		t.Fatalf("foreign lock must stay in place: %v", err)
	}
}

func TestWriteAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.txt")
	for _, body := range []string{"first\n", "second\n"} {
		if err := writeAtomic(path, []byte(body)); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil || string(got) != body {
			t.Fatalf("content = %q, %v", got, err)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestSaveProfileFailureKeepsStateAndDescriptor(t *testing.T) {
	w, _ := newWorkspace(t)
	st, err := w.InitProfile(testPin())
	if err != nil {
		t.Fatalf("init profile: %v", err)
	}
	nixPath := w.Config().ProfileNixPath()
	before, err := os.ReadFile(nixPath)
	if err != nil {
		t.Fatalf("read profile.nix: %v", err)
	}
	statePath := w.Config().ProfileStatePath()
	if err := os.Remove(statePath); err != nil {
		t.Fatal(err)
	}
	// a directory in place of profile.yaml makes the state rename fail
	if err := os.Mkdir(statePath, 0o755); err != nil {
		t.Fatal(err)
	}

	st.Packages.Add("htop")
	if gen, err := w.SaveProfile(st); err == nil || gen != nil {
		t.Fatalf("save should fail, got %+v %v", gen, err)
	}
	if len(st.Generations) != 0 {
		t.Fatalf("failed save must not keep a generation: %+v", st.Generations)
	}
	after, err := os.ReadFile(nixPath)
	if err != nil {
		t.Fatalf("read profile.nix: %v", err)
	}
	if string(after) != string(before) {
		t.Fatalf("profile.nix should be restored after a failed save")
	}
}

func TestProfileLifecycle(t *testing.T) {
	w, _ := newWorkspace(t)
	if _, err := w.LoadProfile(); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
	st, err := w.InitProfile(testPin())
	if err != nil {
		t.Fatalf("init profile: %v", err)
	}
	if len(st.Generations) != 0 {
		t.Fatalf("empty profile should have no generations")
	}
	if _, err := w.InitProfile(testPin()); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("second init should fail, got %v", err)
	}

	st.Packages.Add("htop")
	gen, err := w.SaveProfile(st)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if gen == nil || gen.ID != 1 || !reflect.DeepEqual(gen.Packages, []string{"htop"}) {
		t.Fatalf("generation = %+v", gen)
	}
	if again, err := w.SaveProfile(st); err != nil || again != nil {
		t.Fatalf("unchanged save should not record a generation: %+v %v", again, err)
	}

	loaded, err := w.LoadProfile()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Generations) != 1 || !reflect.DeepEqual(loaded.Packages.Added, []string{"htop"}) {
		t.Fatalf("loaded profile = %+v", loaded)
	}
	changes, err := w.DiffProfile(loaded)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if assemble.Drifted(changes) {
		t.Fatalf("saved profile should not drift: %+v", changes)
	}
	loaded.Packages.Add("jq")
	changes, err = w.DiffProfile(loaded)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if want := []assemble.SectionChange{{Name: "pins"}, {Name: "paths", Changed: true}}; !reflect.DeepEqual(changes, want) {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestRefreshProfileFromNix(t *testing.T) {
	w, _ := newWorkspace(t)
	st, err := w.InitProfile(testPin())
	if err != nil {
		t.Fatalf("init profile: %v", err)
	}
	st.ApplyPresets("base")
	st.Packages.Add("htop")
	st.Packages.Remove("curl")
	if _, err := w.SaveProfile(st); err != nil {
		t.Fatalf("save: %v", err)
	}

	stale := state.NewProfile(testPin(), fixedNow)
	if err := w.RefreshProfileFromNix(stale); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !reflect.DeepEqual(stale.Presets, []string{"base"}) {
		t.Fatalf("presets = %v", stale.Presets)
	}
	if !reflect.DeepEqual(stale.Packages.Added, []string{"htop"}) || !reflect.DeepEqual(stale.Packages.Removed, []string{"curl"}) {
		t.Fatalf("packages = %+v", stale.Packages)
	}
	if stale.Pin.Rev != "deadbeef" {
		t.Fatalf("pin = %+v", stale.Pin)
	}
}
