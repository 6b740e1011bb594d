package stale

import (
	"fmt"
	"strings"
)

// Kind classifies how a candidate was discovered.
type Kind string

const (
	KindTodo          Kind = "todo"
	KindFixme         Kind = "fixme"
	KindDocFile       Kind = "doc-file"
	KindInlineComment Kind = "inline-comment" // reserved
)

// IsTag reports whether the kind came from a tag marker scan.
func (k Kind) IsTag() bool {
	return k == KindTodo || k == KindFixme
}

// Confidence is the oracle's certainty tier for an edit.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence normalizes an oracle-supplied tier. Unknown values map to low.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Actionable reports whether edits at this tier may be applied.
func (c Confidence) Actionable() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium
}

// rank orders tiers for overlap resolution; higher wins.
func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// Outranks reports whether c is strictly more confident than other.
func (c Confidence) Outranks(other Confidence) bool {
	return c.rank() > other.rank()
}

// Candidate is a unit of text proposed for staleness review.
// StartLine and EndLine are 1-based and inclusive.
type Candidate struct {
	Repo          string `json:"repo"`
	FilePath      string `json:"file_path"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	Original      string `json:"original"`
	Context       string `json:"context"`
	Kind          Kind   `json:"kind"`
	RecentCommits string `json:"recent_commits"`
}

// Location renders repo/path:start-end for logs.
func (c Candidate) Location() string {
	return location(c.Repo, c.FilePath, c.StartLine, c.EndLine)
}

// Proposal is a validated edit derived from exactly one candidate.
// An empty Replacement deletes the range.
type Proposal struct {
	Repo        string     `json:"repo"`
	FilePath    string     `json:"file_path"`
	StartLine   int        `json:"start_line"`
	EndLine     int        `json:"end_line"`
	Original    string     `json:"original"`
	Replacement string     `json:"replacement"`
	Rationale   string     `json:"rationale"`
	Confidence  Confidence `json:"confidence"`
	Kind        Kind       `json:"kind"`
}

// Action is the verb shown for an edit in review output.
type Action string

const (
	ActionUpdated Action = "Updated"
	ActionRemoved Action = "Removed"
)

// Action reports whether the proposal deletes or rewrites its range.
func (p Proposal) Action() Action {
	if p.Replacement == "" {
		return ActionRemoved
	}
	return ActionUpdated
}

// Location renders repo/path:start-end for logs.
func (p Proposal) Location() string {
	return location(p.Repo, p.FilePath, p.StartLine, p.EndLine)
}

// Overlaps reports whether two proposals touch a shared line of the same file.
func (p Proposal) Overlaps(other Proposal) bool {
	if p.Repo != other.Repo || p.FilePath != other.FilePath {
		return false
	}
	return p.StartLine <= other.EndLine && other.StartLine <= p.EndLine
}

// LineRange renders the range as L12 or L12-L20.
func (p Proposal) LineRange() string {
	if p.StartLine == p.EndLine {
		return fmt.Sprintf("L%d", p.StartLine)
	}
	return fmt.Sprintf("L%d-L%d", p.StartLine, p.EndLine)
}

func location(repo, path string, start, end int) string {
	if start == end {
		return fmt.Sprintf("%s/%s:%d", repo, path, start)
	}
	return fmt.Sprintf("%s/%s:%d-%d", repo, path, start, end)
}
