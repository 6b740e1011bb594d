package githost

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
)

// Commit is one commit on a repository's default branch.
type Commit struct {
	SHA     string
	Message string
	Author  string
	When    time.Time
}

// ChangedFile is a path touched by a commit.
type ChangedFile struct {
	Path   string
	Status string // added, modified, removed, renamed, ...
}

// Removed reports whether the commit deleted the file.
func (f ChangedFile) Removed() bool {
	return f.Status == "removed"
}

// RecentCommits lists up to limit commits authored in [since, until).
func (c *Client) RecentCommits(ctx context.Context, repo string, since, until time.Time, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := &github.CommitsListOptions{
		Since:       since,
		Until:       until,
		ListOptions: github.ListOptions{PerPage: min(limit, 100)},
	}

	var out []Commit
	for {
		var page []*github.RepositoryCommit
		resp, err := retryOperation(ctx, c.retry, "list_commits", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = c.gh.Repositories.ListCommits(ctx, c.owner, repo, opts)
			return resp, err
		})
		if err != nil {
			if isNotFound(resp, err) {
				return nil, fmt.Errorf("repository %s/%s: %w", c.owner, repo, ErrNotFound)
			}
			return nil, fmt.Errorf("listing commits for %s: %w", repo, err)
		}

		for _, rc := range page {
			commit := rc.GetCommit()
			out = append(out, Commit{
				SHA:     rc.GetSHA(),
				Message: commit.GetMessage(),
				Author:  commit.GetAuthor().GetName(),
				When:    commit.GetAuthor().GetDate().Time,
			})
			if len(out) == limit {
				return out, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// CommitFiles returns the files touched by one commit.
func (c *Client) CommitFiles(ctx context.Context, repo, sha string) ([]ChangedFile, error) {
	var rc *github.RepositoryCommit
	resp, err := retryOperation(ctx, c.retry, "get_commit", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		rc, resp, err = c.gh.Repositories.GetCommit(ctx, c.owner, repo, sha, nil)
		return resp, err
	})
	if err != nil {
		if isNotFound(resp, err) {
			return nil, fmt.Errorf("commit %s@%s: %w", repo, sha, ErrNotFound)
		}
		return nil, fmt.Errorf("getting commit %s@%s: %w", repo, sha, err)
	}

	files := make([]ChangedFile, 0, len(rc.Files))
	for _, f := range rc.Files {
		files = append(files, ChangedFile{Path: f.GetFilename(), Status: f.GetStatus()})
	}
	return files, nil
}

// ReadFile fetches path from repo at the head of its default branch.
// A missing file or a directory returns ErrNotFound.
func (c *Client) ReadFile(ctx context.Context, repo, path string) (string, error) {
	var file *github.RepositoryContent
	resp, err := retryOperation(ctx, c.retry, "get_contents", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		file, _, resp, err = c.gh.Repositories.GetContents(ctx, c.owner, repo, path, nil)
		return resp, err
	})
	if err != nil {
		if isNotFound(resp, err) {
			return "", fmt.Errorf("%s/%s: %w", repo, path, ErrNotFound)
		}
		return "", fmt.Errorf("reading %s/%s: %w", repo, path, err)
	}
	if file == nil {
		return "", fmt.Errorf("%s/%s is a directory: %w", repo, path, ErrNotFound)
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding %s/%s: %w", repo, path, err)
	}
	return content, nil
}

// DefaultBranch returns the repository's default branch name.
func (c *Client) DefaultBranch(ctx context.Context, repo string) (string, error) {
	var r *github.Repository
	resp, err := retryOperation(ctx, c.retry, "get_repo", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		r, resp, err = c.gh.Repositories.Get(ctx, c.owner, repo)
		return resp, err
	})
	if err != nil {
		if isNotFound(resp, err) {
			return "", fmt.Errorf("repository %s/%s: %w", c.owner, repo, ErrNotFound)
		}
		return "", fmt.Errorf("getting repository %s: %w", repo, err)
	}
	if r.GetDefaultBranch() == "" {
		return "main", nil
	}
	return r.GetDefaultBranch(), nil
}

// BranchExists reports whether refs/heads/branch exists upstream.
func (c *Client) BranchExists(ctx context.Context, repo, branch string) (bool, error) {
	ref := "heads/" + strings.TrimPrefix(branch, "refs/heads/")
	resp, err := retryOperation(ctx, c.retry, "get_ref", func() (*github.Response, error) {
		_, resp, err := c.gh.Git.GetRef(ctx, c.owner, repo, ref)
		return resp, err
	})
	if err != nil {
		if isNotFound(resp, err) {
			return false, nil
		}
		return false, fmt.Errorf("checking branch %s on %s: %w", branch, repo, err)
	}
	return true, nil
}
