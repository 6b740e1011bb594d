package githost

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
)

// PullRequest identifies an opened pull request.
type PullRequest struct {
	Number int
	URL    string
	Head   string
	Base   string
}

// NewPullRequest describes a pull request to open.
type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// FindOpenPullRequest returns the open pull request whose head is branch,
// or nil when there is none.
func (c *Client) FindOpenPullRequest(ctx context.Context, repo, branch string) (*PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       "open",
		Head:        c.owner + ":" + branch,
		ListOptions: github.ListOptions{PerPage: 10},
	}

	var prs []*github.PullRequest
	_, err := retryOperation(ctx, c.retry, "list_pulls", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		prs, resp, err = c.gh.PullRequests.List(ctx, c.owner, repo, opts)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing pull requests on %s: %w", repo, err)
	}

	for _, pr := range prs {
		if pr.GetHead().GetRef() == branch {
			return fromGitHub(pr), nil
		}
	}
	return nil, nil
}

// CreatePullRequest opens a pull request. A 422 after retries may mean an
// earlier attempt succeeded upstream, so the open pull request for the head
// is returned when one exists.
func (c *Client) CreatePullRequest(ctx context.Context, repo string, req NewPullRequest) (*PullRequest, error) {
	var pr *github.PullRequest
	resp, err := retryOperation(ctx, c.retry, "create_pull", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		pr, resp, err = c.gh.PullRequests.Create(ctx, c.owner, repo, &github.NewPullRequest{
			Title: github.String(req.Title),
			Head:  github.String(req.Head),
			Base:  github.String(req.Base),
			Body:  github.String(req.Body),
		})
		return resp, err
	})
	if err != nil && isUnprocessable(resp, err) {
		if existing, ferr := c.FindOpenPullRequest(ctx, repo, req.Head); ferr == nil && existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("creating pull request %s -> %s on %s: %w", req.Head, req.Base, repo, err)
	}
	return fromGitHub(pr), nil
}

func fromGitHub(pr *github.PullRequest) *PullRequest {
	return &PullRequest{
		Number: pr.GetNumber(),
		URL:    pr.GetHTMLURL(),
		Head:   pr.GetHead().GetRef(),
		Base:   pr.GetBase().GetRef(),
	}
}
