// Package assemble splices freshly generated descriptor text into an
// existing file, normalizes the result, and reports drift between the two.
package assemble

import (
	"fmt"
	"strings"

	"github.com/gemologic/mica/internal/nixexpr"
	"github.com/gemologic/mica/internal/nixparse"
)

// Outcome says how the written text was produced.
type Outcome int

const (
	// OutcomeFresh means there was no existing file.
	OutcomeFresh Outcome = iota
	// OutcomeAssembled means the existing preamble and postamble were kept.
	OutcomeAssembled
	// OutcomeFallback means the existing file could not be parsed and the
	// fresh text was used unmodified.
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAssembled:
		return "assembled"
	case OutcomeFallback:
		return "fallback"
	default:
		return "fresh"
	}
}

// Result is the assembled text before normalization.
type Result struct {
	Text    string
	Outcome Outcome
	// Reason is the existing file's parse error when Outcome is OutcomeFallback.
	Reason error
}

const lastGeneratedPrefix = "# Last generated:"

// Assemble combines fresh generator output with the existing file text.
// hasExisting is false when no file exists yet. A fresh text that does not
// parse is a generator bug and is returned as an error.
func Assemble(fresh, existing string, hasExisting bool) (Result, error) {
	freshDoc, err := nixparse.ParseDocument(fresh)
	if err != nil {
		return Result{}, fmt.Errorf("assemble: parse generated text: %w", err)
	}
	if !hasExisting {
		return Result{Text: fresh, Outcome: OutcomeFresh}, nil
	}
	existingDoc, err := nixparse.ParseDocument(existing)
	if err != nil {
		return Result{Text: fresh, Outcome: OutcomeFallback, Reason: err}, nil
	}

	var b strings.Builder
	b.WriteString(refreshTimestamp(existingDoc.Preamble, freshDoc.Preamble))
	if !strings.HasSuffix(existingDoc.Preamble, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(managedBody(fresh))
	b.WriteString("  " + nixexpr.ScriptsMerge + "\n")
	post := freshDoc.Postamble
	if existingDoc.HasOverrides() {
		post = existingTail(existingDoc)
	}
	b.WriteString(post)
	if post != "" && !strings.HasSuffix(post, "\n") {
		b.WriteString("\n")
	}
	return Result{Text: b.String(), Outcome: OutcomeAssembled}, nil
}

// managedBody returns fresh from the start of the pin begin line through the
// end of the override-merge end line.
func managedBody(fresh string) string {
	begin := strings.Index(fresh, nixexpr.RegionPin.Begin())
	begin = strings.LastIndex(fresh[:begin], "\n") + 1
	end := strings.Index(fresh, nixexpr.RegionOverrideMerge.End())
	if nl := strings.Index(fresh[end:], "\n"); nl >= 0 {
		end += nl + 1
	} else {
		end = len(fresh)
	}
	return fresh[begin:end]
}

// existingTail is the existing postamble minus any structural lines a file
// without an override-merge region still carries before the merge line.
func existingTail(doc *nixparse.Document) string {
	if doc.OverrideMerge.Present {
		return doc.Postamble
	}
	lines := strings.Split(doc.Postamble, "\n")
	for idx, l := range lines {
		if strings.TrimSpace(l) == nixexpr.ScriptsMerge {
			return strings.Join(lines[idx+1:], "\n")
		}
	}
	return doc.Postamble
}

// refreshTimestamp swaps the generation timestamp line of the kept preamble
// for the fresh one.
func refreshTimestamp(preamble, freshPreamble string) string {
	var stamp string
	for _, l := range strings.Split(freshPreamble, "\n") {
		if strings.HasPrefix(l, lastGeneratedPrefix) {
			stamp = l
			break
		}
	}
	if stamp == "" {
		return preamble
	}
	lines := strings.Split(preamble, "\n")
	for idx, l := range lines {
		if strings.HasPrefix(l, lastGeneratedPrefix) {
			lines[idx] = stamp
			return strings.Join(lines, "\n")
		}
	}
	return preamble
}
