package assemble

import (
	"fmt"
	"strings"

	"github.com/gemologic/mica/internal/nixparse"
)

// SectionChange reports whether one managed region differs.
type SectionChange struct {
	Name    string
	Changed bool
}

// SectionDiff compares the managed regions of two project descriptors.
// A missing optional region compares equal to an empty one.
func SectionDiff(fresh, existing string) ([]SectionChange, error) {
	a, err := nixparse.ParseDocument(fresh)
	if err != nil {
		return nil, fmt.Errorf("assemble: parse generated text: %w", err)
	}
	b, err := nixparse.ParseDocument(existing)
	if err != nil {
		return nil, fmt.Errorf("assemble: parse existing file: %w", err)
	}
	return []SectionChange{
		{"pin", a.Pin.Text != b.Pin.Text},
		{"let", a.Let.Text != b.Let.Text},
		{"packages", a.Packages.Text != b.Packages.Text},
		{"env", a.Env.Text != b.Env.Text},
		{"shellHook", a.ShellHook.Text != b.ShellHook.Text},
		{"override", a.Override.Text != b.Override.Text},
		{"override shellHook", a.OverrideShellHook.Text != b.OverrideShellHook.Text},
		{"override merge", a.OverrideMerge.Text != b.OverrideMerge.Text},
	}, nil
}

// ProfileSectionDiff compares the managed regions of two profile descriptors.
func ProfileSectionDiff(fresh, existing string) ([]SectionChange, error) {
	a, err := nixparse.ParseProfileDocument(fresh)
	if err != nil {
		return nil, fmt.Errorf("assemble: parse generated text: %w", err)
	}
	b, err := nixparse.ParseProfileDocument(existing)
	if err != nil {
		return nil, fmt.Errorf("assemble: parse existing file: %w", err)
	}
	return []SectionChange{
		{"pins", a.Pins.Text != b.Pins.Text},
		{"paths", a.Paths.Text != b.Paths.Text},
	}, nil
}

// Drifted reports whether any section changed.
func Drifted(changes []SectionChange) bool {
	for _, c := range changes {
		if c.Changed {
			return true
		}
	}
	return false
}

// Summary renders changes as the drift report printed by the CLI.
func Summary(changes []SectionChange) string {
	if !Drifted(changes) {
		return "no drift detected\n"
	}
	var b strings.Builder
	b.WriteString("drift detected:\n")
	for _, c := range changes {
		status := "ok"
		if c.Changed {
			status = "changed"
		}
		fmt.Fprintf(&b, "  %s: %s\n", c.Name, status)
	}
	return b.String()
}

// Op is the kind of a diff line.
type Op int

const (
	OpKeep Op = iota
	OpRemove
	OpAdd
)

// DiffLine is one line of a line diff.
type DiffLine struct {
	Op   Op
	Text string
}

func (l DiffLine) String() string {
	switch l.Op {
	case OpRemove:
		return "- " + l.Text
	case OpAdd:
		return "+ " + l.Text
	default:
		return "  " + l.Text
	}
}

// LineDiff computes a longest-common-subsequence diff from before to after.
// When both directions are equally good, removals are emitted first.
func LineDiff(before, after string) []DiffLine {
	a, b := splitLines(before), splitLines(after)
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}

	out := make([]DiffLine, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, DiffLine{OpKeep, a[i]})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			out = append(out, DiffLine{OpRemove, a[i]})
			i++
		default:
			out = append(out, DiffLine{OpAdd, b[j]})
			j++
		}
	}
	for ; i < len(a); i++ {
		out = append(out, DiffLine{OpRemove, a[i]})
	}
	for ; j < len(b); j++ {
		out = append(out, DiffLine{OpAdd, b[j]})
	}
	return out
}

// ChangesOnly drops unchanged lines.
func ChangesOnly(lines []DiffLine) []DiffLine {
	var out []DiffLine
	for _, l := range lines {
		if l.Op != OpKeep {
			out = append(out, l)
		}
	}
	return out
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for idx, l := range lines {
		lines[idx] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
