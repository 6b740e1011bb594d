// Package oracle asks a language model whether repository text has gone
// stale. Responses are schema-checked before use; anything that does not
// match is reported as ErrSchema, never as a partially trusted value.
package oracle

import (
	"context"
	"errors"

	"github.com/ojfbot/daily-logger/internal/stale"
)

// ErrSchema indicates a response that does not match the expected shape.
var ErrSchema = errors.New("oracle response does not match schema")

// Oracle judges staleness for documentation files and tag comments.
type Oracle interface {
	ValidateDoc(ctx context.Context, req DocRequest) ([]DocEdit, error)
	ValidateTag(ctx context.Context, req TagRequest) (TagVerdict, error)
}

// DocRequest carries a whole documentation file.
type DocRequest struct {
	Repo     string
	Path     string
	Numbered string // every line as "N | text"
	Commits  string
}

// DocEdit is one edit the oracle proposes for a documentation file.
type DocEdit struct {
	StartLine   int              `json:"startLine"`
	EndLine     int              `json:"endLine"`
	Original    string           `json:"original"`
	Replacement string           `json:"replacement"`
	Rationale   string           `json:"rationale"`
	Confidence  stale.Confidence `json:"confidence"`
}

// TagRequest carries one tagged line and its surrounding window.
type TagRequest struct {
	Repo    string
	Path    string
	Line    int
	Kind    stale.Kind
	Text    string
	Window  string // numbered lines around Line
	Commits string
}

// TagVerdict is the oracle's answer for a tag.
type TagVerdict struct {
	Resolved    bool             `json:"resolved"`
	Evidence    string           `json:"evidence"`
	Replacement string           `json:"replacement"`
	Confidence  stale.Confidence `json:"confidence"`
}
