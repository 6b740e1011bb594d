package publish

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/ojfbot/daily-logger/internal/patch"
	"github.com/ojfbot/daily-logger/internal/stale"
)

const bodyNote = "Each edit below was proposed from recent commit activity and validated by a text-reasoning oracle. " +
	"Only high and medium confidence edits are included; please review before merging."

var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"`", "\\`",
	"*", "\\*",
	"_", "\\_",
	"[", "\\[",
	"]", "\\]",
	"#", "\\#",
	"|", "\\|",
	"\r", "",
	"\n", " ",
)

// Body renders the pull request description for one repository's edits.
func Body(date string, proposals []stale.Proposal) string {
	var high, medium []stale.Proposal
	for _, p := range proposals {
		switch p.Confidence {
		case stale.ConfidenceHigh:
			high = append(high, p)
		case stale.ConfidenceMedium:
			medium = append(medium, p)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Stale content cleanup for %s\n\n", date)
	b.WriteString(bodyNote)
	b.WriteString("\n\n")
	writeSection(&b, "High confidence", high)
	writeSection(&b, "Medium confidence", medium)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeSection(b *strings.Builder, title string, proposals []stale.Proposal) {
	fmt.Fprintf(b, "## %s (%d)\n\n", title, len(proposals))
	if len(proposals) == 0 {
		b.WriteString("_None._\n\n")
		return
	}

	sorted := make([]stale.Proposal, len(proposals))
	copy(sorted, proposals)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].FilePath != sorted[j].FilePath {
			return sorted[i].FilePath < sorted[j].FilePath
		}
		return sorted[i].StartLine < sorted[j].StartLine
	})

	for _, p := range sorted {
		fmt.Fprintf(b, "### `%s` %s\n\n", p.FilePath, p.LineRange())
		fmt.Fprintf(b, "- **Action:** %s\n", p.Action())
		fmt.Fprintf(b, "- **Rationale:** %s\n\n", escapeRationale(p.Rationale))
		writeDiff(b, p)
	}
}

// writeDiff emits a fenced preview with - lines for the original range and
// + lines for a non-empty replacement.
func writeDiff(b *strings.Builder, p stale.Proposal) {
	removed := patch.SplitLines(p.Original)
	var added []string
	if p.Replacement != "" {
		added = patch.SplitLines(p.Replacement)
	}

	fence := fenceFor(p.Original + "\n" + p.Replacement)
	b.WriteString(fence + "diff\n")
	for _, l := range removed {
		b.WriteString("-" + l + "\n")
	}
	for _, l := range added {
		b.WriteString("+" + l + "\n")
	}
	b.WriteString(fence + "\n\n")
}

// fenceFor returns a backtick fence longer than any run inside content.
func fenceFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

func escapeRationale(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_No rationale given._"
	}
	return html.EscapeString(markdownEscaper.Replace(s))
}
