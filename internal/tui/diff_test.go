package tui

import (
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gemologic/mica/internal/assemble"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m *DiffModel, msg tea.Msg) (*DiffModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(*DiffModel)
	if !ok {
		t.Fatalf("expected *DiffModel, got %T", next)
	}
	return model, cmd
}

func TestToggleChangesOnly(t *testing.T) {
	m := NewDiffModel("default.nix", assemble.LineDiff("a\nb\n", "a\nc\n"))
	if !strings.Contains(m.View(), "  a") {
		t.Fatalf("full view should show kept lines:\n%s", m.View())
	}
	m, _ = update(t, m, runes("f"))
	if !m.ChangesOnly() {
		t.Fatalf("f should switch to changes only")
	}
	view := m.View()
	if strings.Contains(view, "  a") || !strings.Contains(view, "- b") || !strings.Contains(view, "+ c") {
		t.Fatalf("changes-only view:\n%s", view)
	}
	m, _ = update(t, m, runes("f"))
	if m.ChangesOnly() {
		t.Fatalf("second f should return to the full view")
	}
}

func TestNoChangesMessage(t *testing.T) {
	m := NewDiffModel("default.nix", assemble.LineDiff("same\n", "same\n"))
	m, _ = update(t, m, runes("f"))
	if !strings.Contains(m.View(), "No changes") {
		t.Fatalf("expected No changes:\n%s", m.View())
	}
}

func TestScrollKeys(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	m := NewDiffModel("default.nix", assemble.LineDiff("", strings.Join(lines, "\n")))
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 40, Height: 8})
	m, _ = update(t, m, runes("j"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.viewport.YOffset != 2 {
		t.Fatalf("offset after two downs = %d", m.viewport.YOffset)
	}
	m, _ = update(t, m, runes("k"))
	if m.viewport.YOffset != 1 {
		t.Fatalf("offset after up = %d", m.viewport.YOffset)
	}
}

func TestQuitKeys(t *testing.T) {
	for _, msg := range []tea.KeyMsg{runes("q"), {Type: tea.KeyEsc}} {
		m := NewDiffModel("default.nix", nil)
		_, cmd := update(t, m, msg)
		if cmd == nil {
			t.Fatalf("%s should quit", msg)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%s should produce tea.QuitMsg", msg)
		}
	}
}

func TestRenderLines(t *testing.T) {
	out := RenderLines(assemble.LineDiff("x\n", "y\n"), false)
	if !strings.Contains(out, "- x") || !strings.Contains(out, "+ y") {
		t.Fatalf("rendered = %q", out)
	}
	if got := RenderLines(nil, true); !strings.Contains(got, "No changes") {
		t.Fatalf("empty render = %q", got)
	}
}
