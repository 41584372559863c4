package assemble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gemologic/mica/internal/nixexpr"
)

// ErrUnbalanced reports a descriptor that fails the lexical sanity check.
var ErrUnbalanced = errors.New("assemble: unbalanced descriptor")

// collapsible regions are dropped entirely when their body is blank.
var collapsible = []nixexpr.Region{
	nixexpr.RegionLet,
	nixexpr.RegionPins,
	nixexpr.RegionPackagesRaw,
	nixexpr.RegionScripts,
	nixexpr.RegionEnvRaw,
	nixexpr.RegionOverride,
	nixexpr.RegionOverrideShellHook,
	nixexpr.RegionOverrideMerge,
}

// Normalize tidies assembled text: empty optional regions are removed,
// blank runs after marker lines collapse to one, and trailing blank lines
// and whitespace are trimmed. When the tidied text fails SanityCheck the
// input is returned unchanged and ok is false.
func Normalize(text string) (string, bool) {
	trailingNewline := strings.HasSuffix(text, "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for idx, l := range lines {
		lines[idx] = strings.TrimRight(l, " \t\r")
	}
	for _, region := range collapsible {
		lines = stripEmptyRegion(lines, region)
	}
	lines = collapseAfterMarkers(lines)
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	if err := SanityCheck(out); err != nil {
		return text, false
	}
	return out, true
}

func stripEmptyRegion(lines []string, region nixexpr.Region) []string {
	begin, end := region.Begin(), region.End()
	for i := 0; i < len(lines); i++ {
		if !strings.Contains(lines[i], begin) {
			continue
		}
		j := i + 1
		for j < len(lines) && !strings.Contains(lines[j], end) {
			j++
		}
		if j >= len(lines) || !allBlank(lines[i+1:j]) {
			continue
		}
		k := j + 1
		for k < len(lines) && strings.TrimSpace(lines[k]) == "" {
			k++
		}
		lines = append(lines[:i], lines[k:]...)
		i--
	}
	return lines
}

func collapseAfterMarkers(lines []string) []string {
	for i := 0; i < len(lines); i++ {
		if !strings.Contains(lines[i], nixexpr.MarkerComment) {
			continue
		}
		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		if j > i+2 {
			lines = append(lines[:i+2], lines[j:]...)
		}
	}
	return lines
}

func allBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// lexer contexts
const (
	ctxDouble = '"'
	ctxIndent = '\''
	ctxInterp = '$'
)

// SanityCheck is a lexical well-formedness check: brackets balance, strings
// and block comments terminate, and interpolations close.
func SanityCheck(text string) error {
	var stack []byte
	line := 1
	top := func() byte {
		if len(stack) == 0 {
			return 0
		}
		return stack[len(stack)-1]
	}
	pop := func(want byte, got byte) error {
		if top() != want {
			return fmt.Errorf("%w: unexpected %q on line %d", ErrUnbalanced, got, line)
		}
		stack = stack[:len(stack)-1]
		return nil
	}
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch == '\n' {
			line++
		}
		switch top() {
		case ctxDouble:
			switch {
			case ch == '\\':
				i++
				if i < len(text) && text[i] == '\n' {
					line++
				}
			case ch == '"':
				stack = stack[:len(stack)-1]
			case ch == '$' && i+1 < len(text) && text[i+1] == '{':
				stack = append(stack, ctxInterp)
				i++
			}
			continue
		case ctxIndent:
			switch {
			case strings.HasPrefix(text[i:], "'''"), strings.HasPrefix(text[i:], "''$"):
				i += 2
			case strings.HasPrefix(text[i:], `''\`):
				i += 3
			case strings.HasPrefix(text[i:], "''"):
				stack = stack[:len(stack)-1]
				i++
			case ch == '$' && i+1 < len(text) && text[i+1] == '{':
				stack = append(stack, ctxInterp)
				i++
			}
			continue
		}
		switch {
		case ch == '#':
			for i+1 < len(text) && text[i+1] != '\n' {
				i++
			}
		case strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return fmt.Errorf("%w: unterminated comment on line %d", ErrUnbalanced, line)
			}
			line += strings.Count(text[i:i+2+end], "\n")
			i += end + 3
		case ch == '"':
			stack = append(stack, ctxDouble)
		case strings.HasPrefix(text[i:], "''"):
			stack = append(stack, ctxIndent)
			i++
		case ch == '{' || ch == '(' || ch == '[':
			stack = append(stack, ch)
		case ch == '}':
			if top() == ctxInterp {
				stack = stack[:len(stack)-1]
				continue
			}
			if err := pop('{', ch); err != nil {
				return err
			}
		case ch == ')':
			if err := pop('(', ch); err != nil {
				return err
			}
		case ch == ']':
			if err := pop('[', ch); err != nil {
				return err
			}
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("%w: %d unclosed at end of input", ErrUnbalanced, len(stack))
	}
	return nil
}
