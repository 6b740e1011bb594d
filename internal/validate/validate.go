// Package validate turns candidates into proposals by consulting the oracle
// and keeping only confident, well-formed, non-overlapping edits.
package validate

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ojfbot/daily-logger/internal/logging"
	"github.com/ojfbot/daily-logger/internal/oracle"
	"github.com/ojfbot/daily-logger/internal/patch"
	"github.com/ojfbot/daily-logger/internal/secrets"
	"github.com/ojfbot/daily-logger/internal/stale"
)

// Scrubber redacts secrets from text bound for the oracle.
type Scrubber interface {
	Scrub(content string) secrets.Result
}

// Stats counts what happened to a batch of candidates.
type Stats struct {
	Candidates   int `json:"candidates"`
	OracleErrors int `json:"oracle_errors"`
	Discarded    int `json:"discarded"` // low confidence, malformed, mismatched or secret-bearing
	Overlaps     int `json:"overlaps"`
	Proposals    int `json:"proposals"`
}

// Validator applies the doc-file and tag policies.
type Validator struct {
	oracle      oracle.Oracle
	scrubber    Scrubber
	concurrency int
}

// Option configures a Validator.
type Option func(*Validator)

// WithScrubber redacts candidate text before each oracle call.
func WithScrubber(s Scrubber) Option {
	return func(v *Validator) { v.scrubber = s }
}

// WithConcurrency bounds parallel oracle calls. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(v *Validator) { v.concurrency = n }
}

// New creates a Validator.
func New(o oracle.Oracle, opts ...Option) *Validator {
	v := &Validator{oracle: o, concurrency: 1}
	for _, opt := range opts {
		opt(v)
	}
	if v.concurrency < 1 {
		v.concurrency = 1
	}
	return v
}

// counters is shared by concurrent candidate workers.
type counters struct {
	oracleErrors atomic.Int64
	discarded    atomic.Int64
}

// Validate returns the proposals for candidates, in candidate order, after
// overlap resolution. A failing candidate contributes nothing.
func (v *Validator) Validate(ctx context.Context, candidates []stale.Candidate) ([]stale.Proposal, Stats) {
	results := make([][]stale.Proposal, len(candidates))
	var cnt counters

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			results[i] = v.validateCandidate(logging.WithRepo(gctx, c.Repo), c, &cnt)
			return nil
		})
	}
	_ = g.Wait()

	var all []stale.Proposal
	for _, r := range results {
		all = append(all, r...)
	}
	kept, overlaps := ResolveOverlaps(all)

	if overlaps > 0 {
		logging.FromContext(ctx).Info(ctx, "dropped overlapping proposals", zap.Int("dropped", overlaps))
	}

	return kept, Stats{
		Candidates:   len(candidates),
		OracleErrors: int(cnt.oracleErrors.Load()),
		Discarded:    int(cnt.discarded.Load()),
		Overlaps:     overlaps,
		Proposals:    len(kept),
	}
}

// ValidateCandidate runs the policy for one candidate's kind.
func (v *Validator) ValidateCandidate(ctx context.Context, c stale.Candidate) []stale.Proposal {
	var cnt counters
	return v.validateCandidate(ctx, c, &cnt)
}

func (v *Validator) validateCandidate(ctx context.Context, c stale.Candidate, cnt *counters) []stale.Proposal {
	if ctx.Err() != nil {
		return nil
	}
	switch {
	case c.Kind == stale.KindDocFile:
		return v.validateDoc(ctx, c, cnt)
	case c.Kind.IsTag():
		return v.validateTag(ctx, c, cnt)
	default:
		return nil
	}
}

func (v *Validator) validateDoc(ctx context.Context, c stale.Candidate, cnt *counters) []stale.Proposal {
	log := logging.FromContext(ctx)

	numbered := v.scrub(c.Context)
	edits, err := v.oracle.ValidateDoc(ctx, oracle.DocRequest{
		Repo:     c.Repo,
		Path:     c.FilePath,
		Numbered: numbered.Text,
		Commits:  v.scrub(c.RecentCommits).Text,
	})
	if err != nil {
		v.oracleFailed(ctx, c, err, cnt)
		return nil
	}

	lines := patch.SplitLines(c.Original)
	var out []stale.Proposal
	for _, e := range edits {
		reason := ""
		switch {
		case !e.Confidence.Actionable():
			reason = "confidence"
		case e.StartLine < 1 || e.EndLine < e.StartLine || e.EndLine > len(lines):
			reason = "range"
		case numbered.HasLine(e.StartLine, e.EndLine):
			reason = "secret"
		}
		actual := ""
		if reason == "" {
			actual = strings.Join(lines[e.StartLine-1:e.EndLine], "\n")
			if e.Original != "" && strings.TrimSpace(e.Original) != strings.TrimSpace(actual) {
				reason = "original mismatch"
			}
		}
		if reason != "" {
			cnt.discarded.Add(1)
			log.Debug(ctx, "discarding doc edit",
				zap.String("path", c.FilePath),
				zap.Int("start_line", e.StartLine),
				zap.Int("end_line", e.EndLine),
				zap.String("reason", reason),
			)
			continue
		}

		out = append(out, stale.Proposal{
			Repo:        c.Repo,
			FilePath:    c.FilePath,
			StartLine:   e.StartLine,
			EndLine:     e.EndLine,
			Original:    actual,
			Replacement: strings.TrimSuffix(e.Replacement, "\n"),
			Rationale:   strings.TrimSpace(e.Rationale),
			Confidence:  e.Confidence,
			Kind:        c.Kind,
		})
	}
	return out
}

func (v *Validator) validateTag(ctx context.Context, c stale.Candidate, cnt *counters) []stale.Proposal {
	log := logging.FromContext(ctx)

	if line := v.scrub(c.Original); !line.Clean() {
		cnt.discarded.Add(1)
		log.Debug(ctx, "skipping tag on a line holding a secret", zap.String("location", c.Location()))
		return nil
	}

	verdict, err := v.oracle.ValidateTag(ctx, oracle.TagRequest{
		Repo:    c.Repo,
		Path:    c.FilePath,
		Line:    c.StartLine,
		Kind:    c.Kind,
		Text:    c.Original,
		Window:  v.scrub(c.Context).Text,
		Commits: v.scrub(c.RecentCommits).Text,
	})
	if err != nil {
		v.oracleFailed(ctx, c, err, cnt)
		return nil
	}
	if !verdict.Resolved || !verdict.Confidence.Actionable() {
		if verdict.Resolved {
			cnt.discarded.Add(1)
		}
		return nil
	}

	rationale := strings.TrimSpace(verdict.Evidence)
	if rationale == "" {
		rationale = "Resolved by recent commits."
	}

	return []stale.Proposal{{
		Repo:        c.Repo,
		FilePath:    c.FilePath,
		StartLine:   c.StartLine,
		EndLine:     c.EndLine,
		Original:    c.Original,
		Replacement: keepIndent(c.Original, verdict.Replacement),
		Rationale:   rationale,
		Confidence:  verdict.Confidence,
		Kind:        c.Kind,
	}}
}

func (v *Validator) scrub(text string) secrets.Result {
	if v.scrubber == nil {
		return secrets.Result{Text: text}
	}
	return v.scrubber.Scrub(text)
}

func (v *Validator) oracleFailed(ctx context.Context, c stale.Candidate, err error, cnt *counters) {
	cnt.oracleErrors.Add(1)
	log := logging.FromContext(ctx)
	fields := []zap.Field{zap.String("location", c.Location()), zap.String("kind", string(c.Kind)), zap.Error(err)}
	if errors.Is(err, oracle.ErrSchema) {
		log.Debug(ctx, "malformed oracle response, no proposals", fields...)
		return
	}
	log.Warn(ctx, "oracle call failed, no proposals", fields...)
}

// keepIndent gives a single-line rewrite the original line's indentation
// when the oracle dropped it.
func keepIndent(original, replacement string) string {
	replacement = strings.TrimSuffix(replacement, "\n")
	if replacement == "" || strings.Contains(replacement, "\n") {
		return replacement
	}
	if strings.TrimLeft(replacement, " \t") != replacement {
		return replacement
	}
	indent := original[:len(original)-len(strings.TrimLeft(original, " \t"))]
	return indent + replacement
}

// ResolveOverlaps keeps, per file, the highest-confidence proposals that do
// not share a line, preferring lower start lines within a tier. The result
// keeps input order.
func ResolveOverlaps(proposals []stale.Proposal) ([]stale.Proposal, int) {
	type key struct{ repo, path string }
	byFile := make(map[key][]int)
	for i, p := range proposals {
		k := key{p.Repo, p.FilePath}
		byFile[k] = append(byFile[k], i)
	}

	drop := make(map[int]bool)
	for _, idx := range byFile {
		if len(idx) < 2 {
			continue
		}
		sort.SliceStable(idx, func(a, b int) bool {
			pa, pb := proposals[idx[a]], proposals[idx[b]]
			if pa.Confidence != pb.Confidence {
				return pa.Confidence.Outranks(pb.Confidence)
			}
			return pa.StartLine < pb.StartLine
		})
		var kept []stale.Proposal
		for _, i := range idx {
			p := proposals[i]
			conflict := false
			for _, k := range kept {
				if p.Overlaps(k) {
					conflict = true
					break
				}
			}
			if conflict {
				drop[i] = true
				continue
			}
			kept = append(kept, p)
		}
	}

	out := make([]stale.Proposal, 0, len(proposals)-len(drop))
	for i, p := range proposals {
		if !drop[i] {
			out = append(out, p)
		}
	}
	return out, len(drop)
}
