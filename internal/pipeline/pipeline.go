// Package pipeline runs one Sweep → Validate → Publish pass for a run date.
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ojfbot/daily-logger/internal/activity"
	"github.com/ojfbot/daily-logger/internal/logging"
	"github.com/ojfbot/daily-logger/internal/publish"
	"github.com/ojfbot/daily-logger/internal/stale"
	"github.com/ojfbot/daily-logger/internal/validate"
)

// Sweeper produces candidates from an activity feed.
type Sweeper interface {
	Sweep(ctx context.Context, feed *activity.Feed) []stale.Candidate
}

// Validator turns candidates into proposals.
type Validator interface {
	Validate(ctx context.Context, candidates []stale.Candidate) ([]stale.Proposal, validate.Stats)
}

// Publisher publishes proposals grouped by repository.
type Publisher interface {
	Publish(ctx context.Context, date string, proposals []stale.Proposal) []publish.Outcome
}

// Options configures a Pipeline.
type Options struct {
	RunID          string
	DryRun         bool
	PushgatewayURL string
	Job            string
	Tracer         oteltrace.Tracer
}

// Pipeline wires the stages together. Data flows strictly forward.
type Pipeline struct {
	sweeper   Sweeper
	validator Validator
	publisher Publisher
	metrics   *Metrics
	opts      Options
}

// New returns a Pipeline. metrics may be nil.
func New(s Sweeper, v Validator, p Publisher, metrics *Metrics, opts Options) *Pipeline {
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Pipeline{sweeper: s, validator: v, publisher: p, metrics: metrics, opts: opts}
}

// Run executes every stage for feed. Per-candidate and per-repository
// failures are recorded in the report; Run itself does not fail.
func (p *Pipeline) Run(ctx context.Context, feed *activity.Feed) *Report {
	report := newReport(p.opts.RunID, feed.Date, p.opts.DryRun)
	report.Repositories = len(feed.Repos)
	report.Commits = feed.TotalCommits()

	ctx = logging.WithRunID(ctx, p.opts.RunID)
	ctx, span := p.opts.Tracer.Start(ctx, "cleaner.run", oteltrace.WithAttributes(
		attribute.String("run.id", p.opts.RunID),
		attribute.String("run.date", feed.Date),
		attribute.Bool("dry_run", p.opts.DryRun),
	))
	defer span.End()

	log := logging.FromContext(ctx)
	log.Info(ctx, "starting run",
		zap.String("date", feed.Date),
		zap.Int("repositories", report.Repositories),
		zap.Int("commits", report.Commits),
		zap.Bool("dry_run", p.opts.DryRun),
	)

	candidates := p.sweep(ctx, feed)
	report.countCandidates(candidates)

	var proposals []stale.Proposal
	if len(candidates) > 0 {
		var stats validate.Stats
		proposals, stats = p.validate(ctx, candidates)
		report.OracleErrors = stats.OracleErrors
		report.Discarded = stats.Discarded
		report.Overlaps = stats.Overlaps
	}
	report.countProposals(proposals)

	if len(proposals) > 0 {
		for _, o := range p.publish(ctx, feed.Date, proposals) {
			report.addOutcome(o)
		}
	}

	report.FinishedAt = time.Now().UTC()
	span.SetAttributes(
		attribute.Int("candidates", report.TotalCandidates()),
		attribute.Int("proposals", report.TotalProposals()),
	)
	p.summarize(ctx, report)
	p.pushMetrics(ctx, report)
	return report
}

func (p *Pipeline) sweep(ctx context.Context, feed *activity.Feed) []stale.Candidate {
	ctx, span := p.opts.Tracer.Start(ctx, "cleaner.sweep")
	defer span.End()
	cands := p.sweeper.Sweep(ctx, feed)
	span.SetAttributes(attribute.Int("candidates", len(cands)))
	return cands
}

func (p *Pipeline) validate(ctx context.Context, cands []stale.Candidate) ([]stale.Proposal, validate.Stats) {
	ctx, span := p.opts.Tracer.Start(ctx, "cleaner.validate")
	defer span.End()
	props, stats := p.validator.Validate(ctx, cands)
	span.SetAttributes(
		attribute.Int("proposals", stats.Proposals),
		attribute.Int("oracle_errors", stats.OracleErrors),
		attribute.Int("discarded", stats.Discarded),
		attribute.Int("overlaps", stats.Overlaps),
	)
	return props, stats
}

func (p *Pipeline) publish(ctx context.Context, date string, props []stale.Proposal) []publish.Outcome {
	ctx, span := p.opts.Tracer.Start(ctx, "cleaner.publish")
	defer span.End()
	return p.publisher.Publish(ctx, date, props)
}

func (p *Pipeline) summarize(ctx context.Context, r *Report) {
	statuses := r.StatusCounts()
	logging.FromContext(ctx).Info(ctx, "run complete",
		zap.String("date", r.Date),
		zap.Int("candidates", r.TotalCandidates()),
		zap.Int("proposals", r.TotalProposals()),
		zap.Int("high", r.Proposals[stale.ConfidenceHigh]),
		zap.Int("medium", r.Proposals[stale.ConfidenceMedium]),
		zap.Int("oracle_errors", r.OracleErrors),
		zap.Int("published", statuses[publish.StatusDone]),
		zap.Int("skipped", statuses[publish.StatusSkipped]),
		zap.Int("orphaned", statuses[publish.StatusOrphaned]),
		zap.Int("failed", statuses[publish.StatusFailed]),
		zap.Int("dry_run", statuses[publish.StatusDryRun]),
		zap.Duration("duration", r.FinishedAt.Sub(r.StartedAt)),
	)
}

func (p *Pipeline) pushMetrics(ctx context.Context, r *Report) {
	if p.metrics == nil {
		return
	}
	p.metrics.Observe(r)
	if p.opts.PushgatewayURL == "" {
		return
	}
	if err := p.metrics.Push(ctx, p.opts.PushgatewayURL, p.opts.Job, r.Date); err != nil {
		logging.FromContext(ctx).Warn(ctx, "failed to push metrics", zap.Error(err))
	}
}
