package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ojfbot/daily-logger/internal/githost"
	"github.com/ojfbot/daily-logger/internal/logging"
	"github.com/ojfbot/daily-logger/internal/stale"
	"github.com/ojfbot/daily-logger/internal/telemetry"
)

const runDate = "2026-10-14"

// fakeHost records calls and remembers pushed branches and opened PRs.
type fakeHost struct {
	mu       sync.Mutex
	branches map[string]bool // repo/branch
	prs      map[string]*githost.PullRequest
	created  []githost.NewPullRequest
	prErr    error
	next     int
}

func newFakeHost() *fakeHost {
	return &fakeHost{branches: map[string]bool{}, prs: map[string]*githost.PullRequest{}}
}

func (h *fakeHost) DefaultBranch(context.Context, string) (string, error) {
	return "main", nil
}

func (h *fakeHost) BranchExists(_ context.Context, repo, branch string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.branches[repo+"/"+branch], nil
}

func (h *fakeHost) FindOpenPullRequest(_ context.Context, repo, branch string) (*githost.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prs[repo+"/"+branch], nil
}

func (h *fakeHost) CreatePullRequest(_ context.Context, repo string, req githost.NewPullRequest) (*githost.PullRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.prErr != nil {
		return nil, h.prErr
	}
	h.next++
	pr := &githost.PullRequest{
		Number: h.next,
		URL:    fmt.Sprintf("https://github.com/acme/%s/pull/%d", repo, h.next),
		Head:   req.Head,
		Base:   req.Base,
	}
	h.created = append(h.created, req)
	h.prs[repo+"/"+req.Head] = pr
	return pr, nil
}

func (h *fakeHost) pushed(repo, branch string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.branches[repo+"/"+branch] = true
}

// fakeWorkspaces serves in-memory files per repository.
type fakeWorkspaces struct {
	mu       sync.Mutex
	host     *fakeHost
	files    map[string]map[string]string // repo -> path -> content
	failPush map[string]error
	hangPush map[string]bool
	acquired []string
	closed   []string
	written  map[string]map[string]string
}

func newFakeWorkspaces(host *fakeHost) *fakeWorkspaces {
	return &fakeWorkspaces{
		host:     host,
		files:    map[string]map[string]string{},
		failPush: map[string]error{},
		hangPush: map[string]bool{},
		written:  map[string]map[string]string{},
	}
}

func (f *fakeWorkspaces) Acquire(_ context.Context, repo, base string) (Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired = append(f.acquired, repo)
	files := map[string]string{}
	for k, v := range f.files[repo] {
		files[k] = v
	}
	return &fakeWorkspace{parent: f, repo: repo, files: files, dirty: map[string]bool{}}, nil
}

type fakeWorkspace struct {
	parent *fakeWorkspaces
	repo   string
	branch string
	files  map[string]string
	dirty  map[string]bool
}

func (w *fakeWorkspace) ReadFile(path string) (string, error) {
	c, ok := w.files[path]
	if !ok {
		return "", fmt.Errorf("reading %s: file does not exist", path)
	}
	return c, nil
}

func (w *fakeWorkspace) WriteFile(path, content string) error {
	w.files[path] = content
	w.dirty[path] = true
	return nil
}

func (w *fakeWorkspace) CreateBranch(branch string) error {
	w.branch = branch
	return nil
}

func (w *fakeWorkspace) Commit(string) (string, error) {
	if len(w.dirty) == 0 {
		return "", errors.New("nothing to commit")
	}
	return "0123456789abcdef0123456789abcdef01234567", nil
}

func (w *fakeWorkspace) Push(ctx context.Context, branch string) error {
	w.parent.mu.Lock()
	hang := w.parent.hangPush[w.repo]
	w.parent.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}

	w.parent.mu.Lock()
	err := w.parent.failPush[w.repo]
	if err == nil {
		w.parent.written[w.repo] = w.files
	}
	w.parent.mu.Unlock()
	if err != nil {
		return err
	}
	w.parent.host.pushed(w.repo, branch)
	return nil
}

func (w *fakeWorkspace) Close() error {
	w.parent.mu.Lock()
	defer w.parent.mu.Unlock()
	w.parent.closed = append(w.parent.closed, w.repo)
	return nil
}

func tagProposal(repo, path string, line int, original string) stale.Proposal {
	return stale.Proposal{
		Repo:       repo,
		FilePath:   path,
		StartLine:  line,
		EndLine:    line,
		Original:   original,
		Rationale:  "Resolved by recent commits.",
		Confidence: stale.ConfidenceHigh,
		Kind:       stale.KindTodo,
	}
}

func TestGroup_StableAndLossless(t *testing.T) {
	in := []stale.Proposal{
		tagProposal("b", "x.go", 1, "a"),
		tagProposal("a", "y.go", 2, "b"),
		tagProposal("b", "z.go", 3, "c"),
		tagProposal("a", "y.go", 9, "d"),
	}

	groups := Group(in)
	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].Repo)
	assert.Equal(t, "a", groups[1].Repo)
	assert.Equal(t, []int{1, 3}, []int{groups[0].Proposals[0].StartLine, groups[0].Proposals[1].StartLine})
	assert.Equal(t, []int{2, 9}, []int{groups[1].Proposals[0].StartLine, groups[1].Proposals[1].StartLine})

	total := 0
	for _, g := range groups {
		total += len(g.Proposals)
	}
	assert.Equal(t, len(in), total)
	assert.Empty(t, Group(nil))
}

func TestPublish_FullRun(t *testing.T) {
	host := newFakeHost()
	ws := newFakeWorkspaces(host)
	ws.files["app"] = map[string]string{
		"src/foo.ts": "a\nb\n// TODO: remove fallback once migrated\nc\n",
	}
	tl := logging.NewTestLogger()
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	o := New(host, ws, Options{})
	outs := o.Publish(ctx, runDate, []stale.Proposal{
		tagProposal("app", "src/foo.ts", 3, "// TODO: remove fallback once migrated"),
	})

	require.Len(t, outs, 1)
	out := outs[0]
	require.NoError(t, out.Err)
	assert.Equal(t, StatusDone, out.Status)
	assert.Equal(t, "clean/2026-10-14", out.Branch)
	assert.Equal(t, "https://github.com/acme/app/pull/1", out.PullRequestURL())

	assert.Equal(t, "a\nb\nc\n", ws.written["app"]["src/foo.ts"])
	require.Len(t, host.created, 1)
	assert.Equal(t, "Stale content cleanup 2026-10-14", host.created[0].Title)
	assert.Equal(t, "main", host.created[0].Base)
	assert.Equal(t, []string{"app"}, ws.closed)
	tl.AssertLogged(t, zapcore.InfoLevel, "published repository")
}

func TestPublish_Idempotent(t *testing.T) {
	host := newFakeHost()
	ws := newFakeWorkspaces(host)
	ws.files["app"] = map[string]string{"README.md": "old\nkeep\n"}
	props := []stale.Proposal{tagProposal("app", "README.md", 1, "old")}

	o := New(host, ws, Options{})
	first := o.Publish(context.Background(), runDate, props)
	second := o.Publish(context.Background(), runDate, props)

	assert.Equal(t, StatusDone, first[0].Status)
	assert.Equal(t, StatusSkipped, second[0].Status)
	assert.Equal(t, first[0].PullRequestURL(), second[0].PullRequestURL())
	assert.Len(t, host.created, 1)
	assert.Equal(t, []string{"app"}, ws.acquired)
}

func TestPublish_FaultIsolation(t *testing.T) {
	host := newFakeHost()
	ws := newFakeWorkspaces(host)
	for _, r := range []string{"one", "two", "three"} {
		ws.files[r] = map[string]string{"main.go": "package main\n// TODO: x\n"}
	}
	ws.failPush["two"] = errors.New("remote rejected")

	var props []stale.Proposal
	for _, r := range []string{"one", "two", "three"} {
		props = append(props, tagProposal(r, "main.go", 2, "// TODO: x"))
	}

	outs := New(host, ws, Options{Concurrency: 1}).Publish(context.Background(), runDate, props)
	require.Len(t, outs, 3)

	assert.Equal(t, StatusDone, outs[0].Status)
	assert.Equal(t, StatusFailed, outs[1].Status)
	assert.Equal(t, StepPush, outs[1].FailedStep())
	assert.ErrorContains(t, outs[1].Err, "remote rejected")
	assert.Equal(t, StatusDone, outs[2].Status)

	assert.Len(t, host.created, 2)
	assert.ElementsMatch(t, []string{"one", "two", "three"}, ws.closed)
}

func TestPublish_RepoTimeout(t *testing.T) {
	host := newFakeHost()
	ws := newFakeWorkspaces(host)
	for _, r := range []string{"slow", "fast"} {
		ws.files[r] = map[string]string{"main.go": "package main\n// TODO: x\n"}
	}
	ws.hangPush["slow"] = true

	props := []stale.Proposal{
		tagProposal("slow", "main.go", 2, "// TODO: x"),
		tagProposal("fast", "main.go", 2, "// TODO: x"),
	}

	o := New(host, ws, Options{Concurrency: 1, RepoTimeout: 20 * time.Millisecond})
	outs := o.Publish(context.Background(), runDate, props)
	require.Len(t, outs, 2)

	assert.Equal(t, StatusFailed, outs[0].Status)
	assert.Equal(t, StepPush, outs[0].FailedStep())
	assert.ErrorIs(t, outs[0].Err, context.DeadlineExceeded)
	assert.Nil(t, outs[0].PullRequest)

	assert.Equal(t, StatusDone, outs[1].Status)
	require.Len(t, host.created, 1)
	assert.Equal(t, "clean/2026-10-14", host.created[0].Head)
	assert.ElementsMatch(t, []string{"slow", "fast"}, ws.closed)
}

func TestPublish_Orphaned(t *testing.T) {
	host := newFakeHost()
	host.branches["app/clean/2026-10-14"] = true
	tl := logging.NewTestLogger()
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	ws := newFakeWorkspaces(host)
	outs := New(host, ws, Options{}).Publish(ctx, runDate, []stale.Proposal{tagProposal("app", "a.go", 1, "x")})

	assert.Equal(t, StatusOrphaned, outs[0].Status)
	assert.Empty(t, ws.acquired)
	assert.Empty(t, host.created)
	tl.AssertLogged(t, zapcore.ErrorLevel, "without an open pull request")
}

func TestPublish_PullRequestFailureLeavesOrphan(t *testing.T) {
	host := newFakeHost()
	host.prErr = errors.New("validation failed")
	ws := newFakeWorkspaces(host)
	ws.files["app"] = map[string]string{"a.go": "x\ny\n"}
	props := []stale.Proposal{tagProposal("app", "a.go", 1, "x")}

	o := New(host, ws, Options{})
	out := o.Publish(context.Background(), runDate, props)[0]
	assert.Equal(t, StatusOrphaned, out.Status)
	assert.Equal(t, StepOpenPR, out.FailedStep())

	host.prErr = nil
	again := o.Publish(context.Background(), runDate, props)[0]
	assert.Equal(t, StatusOrphaned, again.Status)
	assert.NoError(t, again.Err)
	assert.Empty(t, host.created)
}

func TestPublish_ApplyFailure(t *testing.T) {
	host := newFakeHost()
	ws := newFakeWorkspaces(host)
	ws.files["app"] = map[string]string{"a.go": "only\n"}

	out := New(host, ws, Options{}).Publish(context.Background(), runDate,
		[]stale.Proposal{tagProposal("app", "a.go", 5, "gone")})[0]

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, StepApply, out.FailedStep())
	assert.Equal(t, []string{"app"}, ws.closed)
	assert.False(t, host.branches["app/clean/2026-10-14"])
}

func TestPublish_DryRun(t *testing.T) {
	host := newFakeHost()
	var preview bytes.Buffer

	o := New(host, nil, Options{DryRun: true, Preview: &preview})
	outs := o.Publish(context.Background(), runDate, []stale.Proposal{
		tagProposal("app", "a.go", 4, "// TODO: drop shim"),
	})

	assert.Equal(t, StatusDryRun, outs[0].Status)
	assert.Empty(t, host.created)
	assert.Contains(t, preview.String(), "==> app: would push clean/2026-10-14 with 1 edit(s)")
	assert.Contains(t, preview.String(), "Title: Stale content cleanup 2026-10-14")
	assert.Contains(t, preview.String(), "-// TODO: drop shim")
}

func TestPublish_Spans(t *testing.T) {
	host := newFakeHost()
	tt := telemetry.NewTestTelemetry()

	o := New(host, nil, Options{DryRun: true, Tracer: tt.Tracer("publish")})
	o.Publish(context.Background(), runDate, []stale.Proposal{tagProposal("app", "a.go", 1, "x")})

	tt.AssertSpanExists(t, "cleaner.publish.repo")
	tt.AssertSpanAttribute(t, "cleaner.publish.repo", "repo", "app")
	tt.AssertSpanAttribute(t, "cleaner.publish.repo", "status", "dry_run")
}

func TestBody_Format(t *testing.T) {
	props := []stale.Proposal{
		{
			Repo: "app", FilePath: "README.md", StartLine: 3, EndLine: 4,
			Original: "Run make legacy.\nThen wait.", Replacement: "Run make build.",
			Rationale: "The legacy target was removed in <abc123> *today*.", Confidence: stale.ConfidenceMedium,
		},
		tagProposal("app", "src/foo.ts", 12, "// TODO: remove fallback once migrated"),
	}

	body := Body(runDate, props)

	assert.True(t, strings.HasPrefix(body, "# Stale content cleanup for 2026-10-14\n"))
	assert.Contains(t, body, "validated by a text-reasoning oracle")
	assert.Contains(t, body, "## High confidence (1)")
	assert.Contains(t, body, "## Medium confidence (1)")
	assert.Less(t, strings.Index(body, "## High confidence"), strings.Index(body, "## Medium confidence"))

	assert.Contains(t, body, "### `src/foo.ts` L12\n")
	assert.Contains(t, body, "- **Action:** Removed")
	assert.Contains(t, body, "```diff\n-// TODO: remove fallback once migrated\n```")

	assert.Contains(t, body, "### `README.md` L3-L4\n")
	assert.Contains(t, body, "- **Action:** Updated")
	assert.Contains(t, body, "```diff\n-Run make legacy.\n-Then wait.\n+Run make build.\n```")
	assert.Contains(t, body, "&lt;abc123&gt; \\*today\\*.")
	assert.NotContains(t, body, "<abc123>")
}

func TestBody_EmptySectionAndFence(t *testing.T) {
	p := tagProposal("app", "doc.md", 1, "```go")
	body := Body(runDate, []stale.Proposal{p})

	assert.Contains(t, body, "## Medium confidence (0)\n\n_None._")
	assert.Contains(t, body, "````diff\n-```go\n````")
}
