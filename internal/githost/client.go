// Package githost adapts the GitHub REST API to the operations the cleaner
// needs: recent commits, changed files, remote file reads, branch lookup and
// pull request creation. Every call goes through retryOperation, which backs
// off on 5xx and rate-limit responses.
package githost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// ErrNotFound is returned when a repository, file or ref does not exist.
var ErrNotFound = errors.New("not found")

// Options configures a Client.
type Options struct {
	Owner   string
	Token   string
	BaseURL string // GitHub Enterprise API root; empty for github.com
	Timeout time.Duration
	Retry   *RetryConfig
}

// Client is a GitHub client scoped to one owner (user or organization).
type Client struct {
	gh        *github.Client
	owner     string
	cloneBase string
	retry     *RetryConfig
}

// New creates an authenticated client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("GitHub token not set")
	}
	if opts.Owner == "" {
		return nil, fmt.Errorf("GitHub owner not set")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	tc := oauth2.NewClient(ctx, ts)
	if opts.Timeout > 0 {
		tc.Timeout = opts.Timeout
	}

	gh := github.NewClient(tc)
	cloneBase := "https://github.com"
	if opts.BaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("enterprise base url: %w", err)
		}
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base url: %w", err)
		}
		cloneBase = u.Scheme + "://" + u.Host
	}

	return NewWithClient(gh, opts.Owner, cloneBase, opts.Retry), nil
}

// NewWithClient wraps an existing go-github client.
func NewWithClient(gh *github.Client, owner, cloneBase string, retry *RetryConfig) *Client {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	retry.ApplyDefaults()
	return &Client{
		gh:        gh,
		owner:     owner,
		cloneBase: strings.TrimSuffix(cloneBase, "/"),
		retry:     retry,
	}
}

// CloneURL returns the HTTPS clone URL for repo.
func (c *Client) CloneURL(repo string) string {
	return fmt.Sprintf("%s/%s/%s.git", c.cloneBase, c.owner, repo)
}

// isUnprocessable reports whether a go-github call failed with 422.
func isUnprocessable(resp *github.Response, err error) bool {
	if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusUnprocessableEntity {
		return true
	}
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity
}

// isNotFound reports whether a go-github call failed with 404.
func isNotFound(resp *github.Response, err error) bool {
	if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
