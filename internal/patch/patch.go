// Package patch rewrites file content from validated line-range proposals.
//
// Edits are applied in descending StartLine order. An edit only changes
// lines at or after its own StartLine, so every edit still pending (all of
// which start lower) keeps pointing at unmodified text.
package patch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ojfbot/daily-logger/internal/stale"
)

var (
	// ErrOutOfRange indicates an edit range outside the current file.
	ErrOutOfRange = errors.New("edit range outside file")

	// ErrOverlap indicates two edits in one batch share a line.
	ErrOverlap = errors.New("overlapping edits")
)

// Apply returns lines with every proposal applied. The input slice is not
// modified. Proposals must all target the same file; ranges are checked
// against the original numbering before anything is rewritten.
func Apply(lines []string, proposals []stale.Proposal) ([]string, error) {
	ordered := Descending(proposals)

	for i, p := range ordered {
		if p.StartLine < 1 || p.EndLine < p.StartLine || p.EndLine > len(lines) {
			return nil, fmt.Errorf("%w: %s in %d lines", ErrOutOfRange, p.Location(), len(lines))
		}
		// Sorted descending, so only neighbours can overlap.
		if i > 0 && p.EndLine >= ordered[i-1].StartLine {
			return nil, fmt.Errorf("%w: %s and %s", ErrOverlap, p.Location(), ordered[i-1].Location())
		}
	}

	out := make([]string, len(lines))
	copy(out, lines)
	for _, p := range ordered {
		out = splice(out, p.StartLine, p.EndLine, replacementLines(p.Replacement))
	}
	return out, nil
}

// ApplyContent applies proposals to a whole file body, preserving the
// file's line terminator and a trailing newline if the original had one.
func ApplyContent(content string, proposals []stale.Proposal) (string, error) {
	trailing := strings.HasSuffix(content, "\n")
	eol := LineEnding(content)
	lines := SplitLines(content)

	out, err := Apply(lines, proposals)
	if err != nil {
		return "", err
	}

	result := strings.Join(out, eol)
	if trailing && len(out) > 0 {
		result += eol
	}
	return result, nil
}

// LineEnding reports the terminator of the first line: "\r\n" or "\n".
func LineEnding(content string) string {
	if i := strings.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

// Descending returns a copy of proposals sorted by StartLine, highest first.
func Descending(proposals []stale.Proposal) []stale.Proposal {
	ordered := make([]stale.Proposal, len(proposals))
	copy(ordered, proposals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartLine > ordered[j].StartLine
	})
	return ordered
}

// ByFile groups proposals by file path, keeping first-seen order of files
// and the relative order of proposals within each file.
func ByFile(proposals []stale.Proposal) (paths []string, groups map[string][]stale.Proposal) {
	groups = make(map[string][]stale.Proposal)
	for _, p := range proposals {
		if _, ok := groups[p.FilePath]; !ok {
			paths = append(paths, p.FilePath)
		}
		groups[p.FilePath] = append(groups[p.FilePath], p)
	}
	return paths, groups
}

// SplitLines splits file content into lines without line terminators.
// A single trailing newline does not produce an empty final line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// replacementLines splits a replacement; the empty string is a deletion.
func replacementLines(replacement string) []string {
	if replacement == "" {
		return nil
	}
	return SplitLines(replacement)
}

// splice keeps lines before start, inserts repl, then keeps lines after end.
func splice(lines []string, start, end int, repl []string) []string {
	out := make([]string, 0, len(lines)-(end-start+1)+len(repl))
	out = append(out, lines[:start-1]...)
	out = append(out, repl...)
	out = append(out, lines[end:]...)
	return out
}
