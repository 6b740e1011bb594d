// Package ignore converts gitignore-style files into doublestar patterns so
// a repository can opt paths out of the tag sweep.
package ignore

import (
	"bufio"
	"strings"
)

// FileName is the per-repository ignore file read at the default branch.
const FileName = ".cleanerignore"

// Parse returns the doublestar patterns for an ignore file's content, in
// file order and without duplicates. Comments, blank lines and negations
// produce nothing.
func Parse(content string) []string {
	seen := make(map[string]bool)
	var patterns []string

	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		p := parseLine(sc.Text())
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		patterns = append(patterns, p)
	}
	return patterns
}

func parseLine(line string) string {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	// Negations would need ordered evaluation; skipped.
	if strings.HasPrefix(line, "!") {
		return ""
	}
	return toGlob(line)
}

// toGlob anchors rooted patterns, lets bare names match at any depth, and
// makes directory patterns recursive.
func toGlob(pattern string) string {
	rooted := strings.HasPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	dir := strings.HasSuffix(pattern, "/")
	pattern = strings.TrimSuffix(pattern, "/")
	if pattern == "" {
		return ""
	}

	if !rooted && !strings.Contains(pattern, "/") {
		pattern = "**/" + pattern
	}
	if dir || looksLikeDir(pattern) {
		pattern += "/**"
	}
	return pattern
}

// looksLikeDir treats a final segment without a dot or glob as a directory.
func looksLikeDir(pattern string) bool {
	last := pattern[strings.LastIndex(pattern, "/")+1:]
	return !strings.ContainsAny(last, ".*?[")
}
