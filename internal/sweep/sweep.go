// Package sweep discovers candidate regions for staleness review: whole
// documentation files, and tagged comment lines in recently touched sources.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/ojfbot/daily-logger/internal/activity"
	"github.com/ojfbot/daily-logger/internal/githost"
	"github.com/ojfbot/daily-logger/internal/ignore"
	"github.com/ojfbot/daily-logger/internal/logging"
	"github.com/ojfbot/daily-logger/internal/patch"
	"github.com/ojfbot/daily-logger/internal/stale"
)

// Source reads repository content at the default branch head.
type Source interface {
	CommitFiles(ctx context.Context, repo, sha string) ([]githost.ChangedFile, error)
	ReadFile(ctx context.Context, repo, path string) (string, error)
}

// Options bounds what a sweep looks at.
type Options struct {
	DocFiles      []string
	TagPatterns   []string
	FixMarkers    []string
	MaxCommits    int
	MaxFiles      int
	MinDocLength  int
	MinTagText    int
	ContextRadius int
	SourceGlobs   []string
	IgnoreGlobs   []string
	DigestCommits int
	DigestBytes   int
}

// Sweeper produces candidates from an activity feed.
type Sweeper struct {
	src   Source
	opts  Options
	tagRe *regexp.Regexp
	fix   map[string]bool
}

// New validates opts and compiles the tag pattern.
func New(src Source, opts Options) (*Sweeper, error) {
	if len(opts.TagPatterns) == 0 {
		return nil, fmt.Errorf("at least one tag pattern is required")
	}
	for _, g := range append(append([]string{}, opts.SourceGlobs...), opts.IgnoreGlobs...) {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid glob %q", g)
		}
	}

	markers := make([]string, len(opts.TagPatterns))
	for i, m := range opts.TagPatterns {
		markers[i] = regexp.QuoteMeta(m)
	}
	// MARKER, optional (owner), optional colon, then the free text.
	tagRe := regexp.MustCompile(`\b(` + strings.Join(markers, "|") + `)\b(?:\([^)]*\))?:?\s*(.*\S)`)

	fix := make(map[string]bool, len(opts.FixMarkers))
	for _, m := range opts.FixMarkers {
		fix[m] = true
	}

	return &Sweeper{src: src, opts: opts, tagRe: tagRe, fix: fix}, nil
}

// Sweep returns every candidate across the feed's active repositories.
// A feed without any commits short-circuits to no candidates.
func (s *Sweeper) Sweep(ctx context.Context, feed *activity.Feed) []stale.Candidate {
	log := logging.FromContext(ctx)
	if feed.TotalCommits() == 0 {
		log.Info(ctx, "no recent commits in any repository, nothing to sweep")
		return nil
	}

	var out []stale.Candidate
	for _, repo := range feed.Active() {
		if ctx.Err() != nil {
			break
		}
		out = append(out, s.SweepRepo(logging.WithRepo(ctx, repo.Name), repo)...)
	}
	return out
}

// SweepRepo returns doc-file and tag candidates for one repository.
func (s *Sweeper) SweepRepo(ctx context.Context, repo activity.Repo) []stale.Candidate {
	log := logging.FromContext(ctx)
	if len(repo.Commits) == 0 {
		return nil
	}
	digest := activity.Digest(repo.Commits, s.opts.DigestCommits, s.opts.DigestBytes)

	var out []stale.Candidate
	for _, name := range s.opts.DocFiles {
		content, ok := s.read(ctx, repo.Name, name)
		if !ok {
			continue
		}
		if c, ok := s.DocCandidate(repo.Name, name, content, digest); ok {
			out = append(out, c)
		}
	}
	docs := len(out)

	var extra []string
	if content, ok := s.read(ctx, repo.Name, ignore.FileName); ok {
		extra = ignore.Parse(content)
	}

	for _, path := range s.touchedSources(ctx, repo, extra) {
		content, ok := s.read(ctx, repo.Name, path)
		if !ok {
			continue
		}
		out = append(out, s.TagCandidates(repo.Name, path, content, digest)...)
	}

	log.Debug(ctx, "repository swept",
		zap.Int("doc_candidates", docs),
		zap.Int("tag_candidates", len(out)-docs),
	)
	return out
}

// DocCandidate builds the whole-file candidate for a documentation file,
// or reports false when the file is too short to review.
func (s *Sweeper) DocCandidate(repo, path, content, digest string) (stale.Candidate, bool) {
	if len(strings.TrimSpace(content)) < s.opts.MinDocLength {
		return stale.Candidate{}, false
	}
	lines := patch.SplitLines(content)
	if len(lines) == 0 {
		return stale.Candidate{}, false
	}
	return stale.Candidate{
		Repo:          repo,
		FilePath:      path,
		StartLine:     1,
		EndLine:       len(lines),
		Original:      content,
		Context:       NumberLines(lines, 1),
		Kind:          stale.KindDocFile,
		RecentCommits: digest,
	}, true
}

// TagCandidates scans content line by line for tag markers.
func (s *Sweeper) TagCandidates(repo, path, content, digest string) []stale.Candidate {
	lines := patch.SplitLines(content)

	var out []stale.Candidate
	for i, line := range lines {
		m := s.tagRe.FindStringSubmatch(line)
		if m == nil || len(m[2]) < s.opts.MinTagText {
			continue
		}
		n := i + 1
		start, end := Window(n, len(lines), s.opts.ContextRadius)

		kind := stale.KindTodo
		if s.fix[m[1]] {
			kind = stale.KindFixme
		}
		out = append(out, stale.Candidate{
			Repo:          repo,
			FilePath:      path,
			StartLine:     n,
			EndLine:       n,
			Original:      line,
			Context:       NumberLines(lines[start-1:end], start),
			Kind:          kind,
			RecentCommits: digest,
		})
	}
	return out
}

// touchedSources lists source files changed by the newest commits, in
// commit order, deduplicated and capped. extraIgnore comes from the
// repository's own ignore file.
func (s *Sweeper) touchedSources(ctx context.Context, repo activity.Repo, extraIgnore []string) []string {
	log := logging.FromContext(ctx)

	commits := repo.Commits
	if s.opts.MaxCommits > 0 && len(commits) > s.opts.MaxCommits {
		commits = commits[:s.opts.MaxCommits]
	}

	seen := make(map[string]bool)
	var paths []string
	for _, c := range commits {
		files, err := s.src.CommitFiles(ctx, repo.Name, c.Hash)
		if err != nil {
			log.Debug(ctx, "skipping commit", zap.String("sha", c.Hash), zap.Error(err))
			continue
		}
		for _, f := range files {
			if seen[f.Path] {
				continue
			}
			seen[f.Path] = true
			if f.Removed() || matchAny(extraIgnore, f.Path) || !s.isSource(f.Path) {
				continue
			}
			paths = append(paths, f.Path)
			if s.opts.MaxFiles > 0 && len(paths) == s.opts.MaxFiles {
				return paths
			}
		}
	}
	return paths
}

func (s *Sweeper) isSource(path string) bool {
	return !matchAny(s.opts.IgnoreGlobs, path) && matchAny(s.opts.SourceGlobs, path)
}

// matchAny reports whether path matches any of globs.
func matchAny(globs []string, path string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

func (s *Sweeper) read(ctx context.Context, repo, path string) (string, bool) {
	content, err := s.src.ReadFile(ctx, repo, path)
	if err != nil {
		if !errors.Is(err, githost.ErrNotFound) {
			logging.FromContext(ctx).Debug(ctx, "skipping unreadable file", zap.String("path", path), zap.Error(err))
		}
		return "", false
	}
	return content, true
}

// Window returns the inclusive [start, end] window of radius lines around
// line n, clipped to [1, total].
func Window(n, total, radius int) (start, end int) {
	return max(1, n-radius), min(total, n+radius)
}

// NumberLines renders lines as "N | text", numbering from first.
func NumberLines(lines []string, first int) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d | %s", first+i, line)
	}
	return b.String()
}
