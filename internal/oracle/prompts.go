package oracle

import (
	"fmt"
	"strings"
)

const docSystemPrompt = `You review documentation for statements that recent commits have made inaccurate.

You receive a file with every line numbered as "N | text", and a digest of recent commits.
Report only passages the commits clearly contradict. Precision matters more than recall:
if unsure, leave the text alone or answer with confidence "low".

Respond with a JSON array. Each element is an object with:
- "startLine", "endLine": inclusive line numbers from the listing
- "original": the exact text of those lines, without the "N | " prefix
- "replacement": corrected text for the range, or "" to delete it
- "rationale": one sentence naming the commit that makes the text stale
- "confidence": "high", "medium" or "low"

Respond with [] when nothing is stale. Respond ONLY with the JSON array.`

const tagSystemPrompt = `You decide whether a TODO/FIXME comment has been resolved by recent commits.

You receive the tagged line, the lines around it numbered as "N | text", and a digest of
recent commits. A tag is resolved only when a commit plainly does what the tag asks.

Respond with a JSON object:
- "resolved": true or false
- "evidence": the commit and reasoning that shows resolution, or why not
- "replacement": "" to delete the comment line, or rewritten comment text if part of it still applies
- "confidence": "high", "medium" or "low"

Respond ONLY with the JSON object.`

func docUserPrompt(req DocRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\nFile: %s\n\n", req.Repo, req.Path)
	fmt.Fprintf(&b, "Recent commits:\n%s\n\n", orNone(req.Commits))
	fmt.Fprintf(&b, "File content:\n%s\n", req.Numbered)
	return b.String()
}

func tagUserPrompt(req TagRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\nFile: %s\nLine %d (%s): %s\n\n", req.Repo, req.Path, req.Line, req.Kind, req.Text)
	fmt.Fprintf(&b, "Recent commits:\n%s\n\n", orNone(req.Commits))
	fmt.Fprintf(&b, "Surrounding lines:\n%s\n", req.Window)
	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
