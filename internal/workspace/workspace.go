// Package workspace manages the ephemeral clone used for one repository's
// edit batch: clone, branch, write, commit, push, then removal.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

var (
	// ErrNothingToCommit is returned by Commit when the tree is unchanged.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrUnsafePath is returned for paths that escape the working tree.
	ErrUnsafePath = errors.New("path escapes workspace")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("workspace closed")
)

// Options configures every workspace a Manager hands out.
type Options struct {
	Token       string // HTTPS token; empty for unauthenticated or local remotes
	AuthorName  string
	AuthorEmail string
	TempDir     string // parent for clone directories; os.TempDir() if empty
}

// Manager acquires workspaces.
type Manager struct {
	urlFor func(repo string) string
	opts   Options
}

// NewManager returns a Manager that clones from urlFor(repo).
func NewManager(urlFor func(repo string) string, opts Options) *Manager {
	return &Manager{urlFor: urlFor, opts: opts}
}

// Workspace is an exclusively owned clone of one repository.
type Workspace struct {
	dir    string
	repo   *git.Repository
	wt     *git.Worktree
	auth   transport.AuthMethod
	author object.Signature
	closed bool
}

// Acquire clones base of repo into a fresh directory. On error nothing is
// left on disk; on success the caller must Close the workspace.
func (m *Manager) Acquire(ctx context.Context, repo, base string) (*Workspace, error) {
	dir, err := os.MkdirTemp(m.opts.TempDir, "cleaner-"+filepath.Base(repo)+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace dir: %w", err)
	}

	var auth transport.AuthMethod
	if m.opts.Token != "" {
		auth = &githttp.BasicAuth{Username: "x-access-token", Password: m.opts.Token}
	}

	r, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           m.urlFor(repo),
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(base),
		SingleBranch:  true,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning %s@%s: %w", repo, base, err)
	}

	wt, err := r.Worktree()
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("opening worktree: %w", err)
	}

	return &Workspace{
		dir:    dir,
		repo:   r,
		wt:     wt,
		auth:   auth,
		author: object.Signature{Name: m.opts.AuthorName, Email: m.opts.AuthorEmail},
	}, nil
}

// Dir returns the clone's root directory.
func (w *Workspace) Dir() string {
	return w.dir
}

func (w *Workspace) abs(path string) (string, error) {
	if w.closed {
		return "", ErrClosed
	}
	clean := filepath.FromSlash(path)
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}
	return filepath.Join(w.dir, clean), nil
}

// ReadFile returns the content of path relative to the clone root.
func (w *Workspace) ReadFile(path string) (string, error) {
	p, err := w.abs(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile replaces the content of path, keeping its file mode.
func (w *Workspace) WriteFile(path, content string) error {
	p, err := w.abs(path)
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(p); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(p, []byte(content), mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// CreateBranch creates branch at HEAD and checks it out.
func (w *Workspace) CreateBranch(branch string) error {
	if w.closed {
		return ErrClosed
	}
	err := w.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
		Keep:   true,
	})
	if err != nil {
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return nil
}

// Commit stages all modifications and commits them, returning the hash.
func (w *Workspace) Commit(message string) (string, error) {
	if w.closed {
		return "", ErrClosed
	}
	status, err := w.wt.Status()
	if err != nil {
		return "", fmt.Errorf("reading status: %w", err)
	}
	if status.IsClean() {
		return "", ErrNothingToCommit
	}
	for path := range status {
		if _, err := w.wt.Add(path); err != nil {
			return "", fmt.Errorf("staging %s: %w", path, err)
		}
	}

	author := w.author
	author.When = time.Now()
	hash, err := w.wt.Commit(message, &git.CommitOptions{Author: &author})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return hash.String(), nil
}

// Push publishes branch to origin under the same name.
func (w *Workspace) Push(ctx context.Context, branch string) error {
	if w.closed {
		return ErrClosed
	}
	ref := plumbing.NewBranchReferenceName(branch)
	err := w.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
		Auth:       w.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pushing %s: %w", branch, err)
	}
	return nil
}

// Close removes the clone directory. It is safe to call more than once.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("removing workspace: %w", err)
	}
	return nil
}
