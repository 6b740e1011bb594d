// Package activity collects the per-run commit feed the sweeper works from.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ojfbot/daily-logger/internal/githost"
	"github.com/ojfbot/daily-logger/internal/logging"
)

// DateLayout is the run date format used in feeds and branch names.
const DateLayout = "2006-01-02"

// Commit is one recent commit in a repository.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Repo    string    `json:"repo"`
	When    time.Time `json:"when,omitempty"`
}

// Subject returns the first line of the commit message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(subject)
}

// ShortHash returns the abbreviated hash.
func (c Commit) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}

// Repo is one repository's slice of the feed.
type Repo struct {
	Name    string   `json:"name"`
	Commits []Commit `json:"commits"`
}

// Feed is the read-only activity summary for one run.
type Feed struct {
	Date  string `json:"date"`
	Repos []Repo `json:"repos"`
}

// TotalCommits counts commits across all repositories.
func (f *Feed) TotalCommits() int {
	n := 0
	for _, r := range f.Repos {
		n += len(r.Commits)
	}
	return n
}

// Active returns repositories with at least one commit.
func (f *Feed) Active() []Repo {
	var out []Repo
	for _, r := range f.Repos {
		if len(r.Commits) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Filter keeps only the named repository. An empty name is a no-op.
func (f *Feed) Filter(name string) {
	if name == "" {
		return
	}
	kept := f.Repos[:0]
	for _, r := range f.Repos {
		if r.Name == name {
			kept = append(kept, r)
		}
	}
	f.Repos = kept
}

// Window returns the sweep window [date-lookback, date+1d).
func Window(date time.Time, lookback time.Duration) (since, until time.Time) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return day.Add(-lookback), day.AddDate(0, 0, 1)
}

// CommitLister lists commits in a time range.
type CommitLister interface {
	RecentCommits(ctx context.Context, repo string, since, until time.Time, limit int) ([]githost.Commit, error)
}

// Options bounds live collection.
type Options struct {
	Date     time.Time
	Lookback time.Duration
	Limit    int
}

// Collect builds a feed by listing each repository's commits in the sweep
// window. A repository whose listing fails is kept with no commits.
func Collect(ctx context.Context, lister CommitLister, repos []string, opts Options) *Feed {
	log := logging.FromContext(ctx)
	since, until := Window(opts.Date, opts.Lookback)

	feed := &Feed{Date: opts.Date.Format(DateLayout)}
	for _, name := range repos {
		repo := Repo{Name: name}
		commits, err := lister.RecentCommits(ctx, name, since, until, opts.Limit)
		if err != nil {
			level := log.Warn
			if errors.Is(err, githost.ErrNotFound) {
				level = log.Error
			}
			level(logging.WithRepo(ctx, name), "listing recent commits failed", zap.Error(err))
		}
		for _, c := range commits {
			repo.Commits = append(repo.Commits, Commit{
				Hash:    c.SHA,
				Message: c.Message,
				Repo:    name,
				When:    c.When,
			})
		}
		feed.Repos = append(feed.Repos, repo)
	}

	log.Debug(ctx, "activity collected",
		zap.Int("repos", len(feed.Repos)),
		zap.Int("commits", feed.TotalCommits()),
		zap.Time("since", since),
		zap.Time("until", until),
	)
	return feed
}

// LoadFile reads a feed produced by an upstream sweep.
func LoadFile(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading activity feed: %w", err)
	}

	var feed Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("parsing activity feed %s: %w", path, err)
	}
	if feed.Date != "" {
		if _, err := time.Parse(DateLayout, feed.Date); err != nil {
			return nil, fmt.Errorf("activity feed date %q: %w", feed.Date, err)
		}
	}
	for i := range feed.Repos {
		for j := range feed.Repos[i].Commits {
			if feed.Repos[i].Commits[j].Repo == "" {
				feed.Repos[i].Commits[j].Repo = feed.Repos[i].Name
			}
		}
	}
	return &feed, nil
}

// Digest renders up to maxCommits commits as "- <short-hash> <subject>"
// lines, stopping before the digest would exceed maxBytes.
func Digest(commits []Commit, maxCommits, maxBytes int) string {
	var b strings.Builder
	for i, c := range commits {
		if maxCommits > 0 && i >= maxCommits {
			break
		}
		line := fmt.Sprintf("- %s %s\n", c.ShortHash(), c.Subject())
		if maxBytes > 0 && b.Len()+len(line) > maxBytes {
			break
		}
		b.WriteString(line)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
