// Package publish turns validated proposals into one pull request per
// repository. Each repository runs the same state machine:
//
//	branch exists?  yes: open PR for it? yes: skipped, no: orphaned
//	                no:  clone, branch, apply, commit, push, open PR: done
//
// Any failing step marks that repository failed without affecting others.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ojfbot/daily-logger/internal/githost"
	"github.com/ojfbot/daily-logger/internal/logging"
	"github.com/ojfbot/daily-logger/internal/patch"
	"github.com/ojfbot/daily-logger/internal/stale"
)

// Host is the git hosting API used around the clone.
type Host interface {
	DefaultBranch(ctx context.Context, repo string) (string, error)
	BranchExists(ctx context.Context, repo, branch string) (bool, error)
	FindOpenPullRequest(ctx context.Context, repo, branch string) (*githost.PullRequest, error)
	CreatePullRequest(ctx context.Context, repo string, req githost.NewPullRequest) (*githost.PullRequest, error)
}

// Workspace is an exclusively owned working copy of one repository.
type Workspace interface {
	ReadFile(path string) (string, error)
	WriteFile(path, content string) error
	CreateBranch(branch string) error
	Commit(message string) (string, error)
	Push(ctx context.Context, branch string) error
	Close() error
}

// Workspaces hands out working copies.
type Workspaces interface {
	Acquire(ctx context.Context, repo, base string) (Workspace, error)
}

// AcquireFunc adapts a function to Workspaces.
type AcquireFunc func(ctx context.Context, repo, base string) (Workspace, error)

func (f AcquireFunc) Acquire(ctx context.Context, repo, base string) (Workspace, error) {
	return f(ctx, repo, base)
}

// Options configures an Orchestrator.
type Options struct {
	BranchPrefix  string
	CommitMessage string // %s is the run date
	Title         string // %s is the run date
	Concurrency   int
	RepoTimeout   time.Duration
	DryRun        bool
	Preview       io.Writer // dry-run output; discarded when nil
	Tracer        oteltrace.Tracer
}

// Orchestrator publishes proposal groups.
type Orchestrator struct {
	host       Host
	workspaces Workspaces
	opts       Options

	previewMu sync.Mutex
}

// New returns an Orchestrator. workspaces may be nil in dry-run mode.
func New(host Host, workspaces Workspaces, opts Options) *Orchestrator {
	if opts.BranchPrefix == "" {
		opts.BranchPrefix = "clean/"
	}
	if opts.CommitMessage == "" {
		opts.CommitMessage = "docs: remove stale comments and docs (%s) [skip ci]"
	}
	if opts.Title == "" {
		opts.Title = "Stale content cleanup %s"
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Preview == nil {
		opts.Preview = io.Discard
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Orchestrator{host: host, workspaces: workspaces, opts: opts}
}

// Branch returns the deterministic branch name for a run date.
func (o *Orchestrator) Branch(date string) string {
	return o.opts.BranchPrefix + date
}

// Title returns the pull request title for a run date.
func (o *Orchestrator) Title(date string) string {
	return fmt.Sprintf(o.opts.Title, date)
}

// Publish runs every repository group through the state machine and
// returns one outcome per group in grouping order.
func (o *Orchestrator) Publish(ctx context.Context, date string, proposals []stale.Proposal) []Outcome {
	groups := Group(proposals)
	outcomes := make([]Outcome, len(groups))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, grp := range groups {
		g.Go(func() error {
			outcomes[i] = o.PublishRepo(ctx, date, grp.Repo, grp.Proposals)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// PublishRepo runs one repository through the state machine.
func (o *Orchestrator) PublishRepo(ctx context.Context, date, repo string, proposals []stale.Proposal) Outcome {
	ctx = logging.WithRepo(ctx, repo)
	if o.opts.RepoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RepoTimeout)
		defer cancel()
	}

	ctx, span := o.opts.Tracer.Start(ctx, "cleaner.publish.repo",
		oteltrace.WithAttributes(
			attribute.String("repo", repo),
			attribute.Int("edits", len(proposals)),
			attribute.Bool("dry_run", o.opts.DryRun),
		))
	defer span.End()

	out := o.publishRepo(ctx, date, repo, proposals)

	span.SetAttributes(attribute.String("status", string(out.Status)))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.FailedStep()))
	}
	o.logOutcome(ctx, out)
	return out
}

func (o *Orchestrator) publishRepo(ctx context.Context, date, repo string, proposals []stale.Proposal) Outcome {
	out := Outcome{Repo: repo, Branch: o.Branch(date), Edits: len(proposals)}
	if len(proposals) == 0 {
		out.Status = StatusDone
		return out
	}

	exists, err := o.host.BranchExists(ctx, repo, out.Branch)
	if err != nil {
		return failed(out, StepCheckBranch, err)
	}
	if exists {
		pr, err := o.host.FindOpenPullRequest(ctx, repo, out.Branch)
		if err != nil {
			return failed(out, StepCheckBranch, err)
		}
		out.PullRequest = pr
		out.Status = StatusSkipped
		if pr == nil {
			out.Status = StatusOrphaned
		}
		return out
	}

	if o.opts.DryRun {
		o.preview(date, out, proposals)
		out.Status = StatusDryRun
		return out
	}

	return o.publishToHost(ctx, date, out, proposals)
}

// publishToHost performs clone through pull request creation. The
// workspace is closed on every return path.
func (o *Orchestrator) publishToHost(ctx context.Context, date string, out Outcome, proposals []stale.Proposal) Outcome {
	log := logging.FromContext(ctx)
	repo := out.Repo

	base, err := o.host.DefaultBranch(ctx, repo)
	if err != nil {
		return failed(out, StepClone, err)
	}
	if o.workspaces == nil {
		return failed(out, StepClone, errors.New("no workspace provider"))
	}

	ws, err := o.workspaces.Acquire(ctx, repo, base)
	if err != nil {
		return failed(out, StepClone, err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			log.Warn(ctx, "failed to remove workspace", zap.Error(err))
		}
	}()

	if err := ws.CreateBranch(out.Branch); err != nil {
		return failed(out, StepCheckout, err)
	}
	if err := applyAll(ws, proposals); err != nil {
		return failed(out, StepApply, err)
	}

	commit, err := ws.Commit(fmt.Sprintf(o.opts.CommitMessage, date))
	if err != nil {
		return failed(out, StepCommit, err)
	}
	out.Commit = commit

	if err := ws.Push(ctx, out.Branch); err != nil {
		return failed(out, StepPush, err)
	}

	pr, err := o.host.CreatePullRequest(ctx, repo, githost.NewPullRequest{
		Title: o.Title(date),
		Body:  Body(date, proposals),
		Head:  out.Branch,
		Base:  base,
	})
	if err != nil {
		// The branch is already pushed; the next run will find it and
		// report the repository as orphaned.
		out.Status = StatusOrphaned
		out.Err = &StepError{Step: StepOpenPR, Err: err}
		return out
	}

	out.PullRequest = pr
	out.Status = StatusDone
	return out
}

// applyAll rewrites each touched file once with all of its proposals.
func applyAll(ws Workspace, proposals []stale.Proposal) error {
	paths, byFile := patch.ByFile(proposals)
	for _, path := range paths {
		content, err := ws.ReadFile(path)
		if err != nil {
			return err
		}
		updated, err := patch.ApplyContent(content, byFile[path])
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := ws.WriteFile(path, updated); err != nil {
			return err
		}
	}
	return nil
}

// Styles degrade to plain text when the output is not a terminal.
var (
	previewHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	previewTitle  = lipgloss.NewStyle().Faint(true)
)

func (o *Orchestrator) preview(date string, out Outcome, proposals []stale.Proposal) {
	o.previewMu.Lock()
	defer o.previewMu.Unlock()
	header := fmt.Sprintf("==> %s: would push %s with %d edit(s)", out.Repo, out.Branch, len(proposals))
	fmt.Fprintln(o.opts.Preview, previewHeader.Render(header))
	fmt.Fprintln(o.opts.Preview, previewTitle.Render("Title: "+o.Title(date)))
	fmt.Fprintf(o.opts.Preview, "\n%s\n", Body(date, proposals))
}

func (o *Orchestrator) logOutcome(ctx context.Context, out Outcome) {
	log := logging.FromContext(ctx)
	fields := []zap.Field{
		zap.String("status", string(out.Status)),
		zap.String("branch", out.Branch),
		zap.Int("edits", out.Edits),
	}
	if url := out.PullRequestURL(); url != "" {
		fields = append(fields, zap.String("pull_request", url))
	}
	if out.Err != nil {
		fields = append(fields, zap.String("step", string(out.FailedStep())), zap.Error(out.Err))
	}

	switch out.Status {
	case StatusDone:
		log.Info(ctx, "published repository", fields...)
	case StatusSkipped:
		log.Info(ctx, "branch already published, skipping", fields...)
	case StatusOrphaned:
		log.Error(ctx, "branch exists without an open pull request; open one manually or delete the branch to retry", fields...)
	case StatusDryRun:
		log.Info(ctx, "dry run, nothing pushed", fields...)
	default:
		log.Warn(ctx, "repository publish failed, abandoning for this run", fields...)
	}
}

func failed(out Outcome, step Step, err error) Outcome {
	out.Status = StatusFailed
	out.Err = &StepError{Step: step, Err: err}
	return out
}
