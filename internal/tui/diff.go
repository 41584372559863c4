// internal/tui/diff.go
//
// The diff preview is a small bubbletea program: a scrolling viewport over
// the line diff between the descriptor on disk and what a save would write.
// Pressing f switches between the full diff and only the changed lines.

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gemologic/mica/internal/assemble"
)

const (
	defaultWidth  = 80
	defaultHeight = 20
	// title and footer rows
	chromeHeight = 3
)

var (
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	keepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
)

type keyMap struct {
	Toggle key.Binding
	Down   key.Binding
	Up     key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Down, k.Up, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Toggle: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "full/changes")),
	Down:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	Up:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// DiffModel is the bubbletea model for the diff preview.
type DiffModel struct {
	title       string
	lines       []assemble.DiffLine
	changesOnly bool
	viewport    viewport.Model
	help        help.Model
}

// NewDiffModel builds a preview over lines, starting in the full view.
func NewDiffModel(title string, lines []assemble.DiffLine) *DiffModel {
	m := &DiffModel{
		title:    title,
		lines:    lines,
		viewport: viewport.New(defaultWidth, defaultHeight-chromeHeight),
		help:     help.New(),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *DiffModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *DiffModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-chromeHeight)
		m.help.Width = msg.Width
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Toggle):
			m.changesOnly = !m.changesOnly
			m.refresh()
			m.viewport.GotoTop()
			return m, nil
		case key.Matches(msg, keys.Down):
			m.viewport.LineDown(1)
			return m, nil
		case key.Matches(msg, keys.Up):
			m.viewport.LineUp(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *DiffModel) View() string {
	mode := "full"
	if m.changesOnly {
		mode = "changes only"
	}
	header := titleStyle.Render(fmt.Sprintf("%s (%s)", m.title, mode))
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), m.help.View(keys))
}

// ChangesOnly reports the current view mode.
func (m *DiffModel) ChangesOnly() bool {
	return m.changesOnly
}

func (m *DiffModel) refresh() {
	m.viewport.SetContent(RenderLines(m.lines, m.changesOnly))
}

// RenderLines colours a line diff. With changesOnly, kept lines are dropped
// and an empty result reads "No changes".
func RenderLines(lines []assemble.DiffLine, changesOnly bool) string {
	if changesOnly {
		lines = assemble.ChangesOnly(lines)
	}
	if len(lines) == 0 {
		return noteStyle.Render("No changes")
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, styleFor(l.Op).Render(l.String()))
	}
	return strings.Join(out, "\n")
}

func styleFor(op assemble.Op) lipgloss.Style {
	switch op {
	case assemble.OpAdd:
		return addStyle
	case assemble.OpRemove:
		return removeStyle
	default:
		return keepStyle
	}
}

// RunDiff shows lines in the terminal until the user quits.
func RunDiff(title string, lines []assemble.DiffLine) error {
	program := tea.NewProgram(NewDiffModel(title, lines), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: diff preview: %w", err)
	}
	return nil
}
