package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ojfbot/daily-logger/internal/activity"
	"github.com/ojfbot/daily-logger/internal/config"
	"github.com/ojfbot/daily-logger/internal/githost"
	"github.com/ojfbot/daily-logger/internal/logging"
	"github.com/ojfbot/daily-logger/internal/oracle"
	"github.com/ojfbot/daily-logger/internal/pipeline"
	"github.com/ojfbot/daily-logger/internal/publish"
	"github.com/ojfbot/daily-logger/internal/secrets"
	"github.com/ojfbot/daily-logger/internal/sweep"
	"github.com/ojfbot/daily-logger/internal/telemetry"
	"github.com/ojfbot/daily-logger/internal/validate"
	"github.com/ojfbot/daily-logger/internal/workspace"
)

const instrumentationName = "github.com/ojfbot/daily-logger/cmd/cleaner"

// errNoScope is returned when neither a repository list nor a feed file is given.
var errNoScope = errors.New("no repositories in scope: set scope.repos, --repo, or --activity")

type runOptions struct {
	configPath   string
	date         string
	dryRun       bool
	repo         string
	owner        string
	activityPath string
	reportPath   string
}

var runFlags runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sweep, validate and publish stale-content edits for one run date",
	Long: `Run one cleanup pass for a run date.

Credentials are read from GITHUB_TOKEN and OPENAI_API_KEY or ANTHROPIC_API_KEY
(depending on oracle.provider). A missing credential aborts before any work.
Everything else that fails is logged and skipped; the run still exits 0.

Examples:
  # Clean yesterday's activity across the configured repositories
  cleaner run --date 2026-10-13

  # Preview the pull requests for one repository without pushing
  cleaner run --dry-run --repo daily-logger

  # Use a feed produced by an upstream sweep and keep a JSON report
  cleaner run --activity feed.json --report report.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCleaner(cmd.Context(), runFlags, cmd.OutOrStdout())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.configPath, "config", "", "config file (default ~/.config/daily-logger/cleaner.yaml)")
	f.StringVar(&runFlags.date, "date", "", "run date YYYY-MM-DD (default today, UTC)")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "sweep and validate, then print the would-be pull requests")
	f.StringVar(&runFlags.repo, "repo", "", "restrict the run to a single repository")
	f.StringVar(&runFlags.owner, "owner", "", "organization or user that owns the repositories")
	f.StringVar(&runFlags.activityPath, "activity", "", "read the activity feed from a JSON file instead of GitHub")
	f.StringVar(&runFlags.reportPath, "report", "", "write the run report as JSON to this path")
}

// parseDate returns the run date, defaulting to now's UTC day.
func parseDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse(activity.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", s)
	}
	return date, nil
}

func flagOverrides(opts runOptions) config.Override {
	return func(cfg *config.Config) {
		if opts.owner != "" {
			cfg.GitHub.Owner = opts.owner
		}
		if opts.repo != "" {
			cfg.Scope.Repos = []string{opts.repo}
		}
	}
}

// loadRun resolves everything a run needs before any network call. Errors
// returned here are the only ones that fail the process.
func loadRun(opts runOptions, now time.Time) (*config.Config, time.Time, error) {
	date, err := parseDate(opts.date, now)
	if err != nil {
		return nil, time.Time{}, err
	}
	cfg, err := config.LoadWithFile(opts.configPath, flagOverrides(opts))
	if err != nil {
		return nil, time.Time{}, err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return nil, time.Time{}, err
	}
	if len(cfg.Scope.Repos) == 0 && opts.activityPath == "" {
		return nil, time.Time{}, errNoScope
	}
	return cfg, date, nil
}

func runCleaner(ctx context.Context, opts runOptions, stdout io.Writer) error {
	cfg, date, err := loadRun(opts, time.Now())
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}

	var logOpts []logging.Option
	if tel.IsEnabled() {
		logOpts = append(logOpts, logging.WithLoggerProvider(tel.LoggerProvider()))
	}
	logger, err := logging.NewLogger(cfg.Logging, logOpts...)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	ctx = logging.WithRunID(logging.WithLogger(ctx, logger), runID)

	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Shutdown.Timeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}()
	if degraded, terr := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(terr))
	}

	gh, err := githost.New(ctx, githost.Options{
		Owner:   cfg.GitHub.Owner,
		Token:   cfg.GitHub.Token.Value(),
		BaseURL: cfg.GitHub.BaseURL,
		Timeout: cfg.GitHub.Timeout.Duration(),
	})
	if err != nil {
		return err
	}

	sweeper, err := sweep.New(gh, sweep.Options{
		DocFiles:      cfg.Scope.DocFiles,
		TagPatterns:   cfg.Scope.TagPatterns,
		FixMarkers:    cfg.Scope.FixMarkers,
		MaxCommits:    cfg.Sweep.MaxCommits,
		MaxFiles:      cfg.Sweep.MaxFilesPerRepo,
		MinDocLength:  cfg.Sweep.MinDocLength,
		MinTagText:    cfg.Sweep.MinTagText,
		ContextRadius: cfg.Sweep.ContextRadius,
		SourceGlobs:   cfg.Sweep.SourceGlobs,
		IgnoreGlobs:   cfg.Sweep.IgnoreGlobs,
		DigestCommits: cfg.Sweep.DigestCommits,
		DigestBytes:   cfg.Sweep.DigestBytes,
	})
	if err != nil {
		return err
	}

	oracleOpts := oracle.Options{
		Provider:      cfg.Oracle.Provider,
		Model:         cfg.Oracle.Model,
		APIKey:        cfg.Oracle.APIKey.Value(),
		BaseURL:       cfg.Oracle.BaseURL,
		Timeout:       cfg.Oracle.Timeout.Duration(),
		RatePerMinute: cfg.Oracle.RatePerMinute,
		Burst:         cfg.Oracle.Burst,
		MaxTokens:     cfg.Oracle.MaxTokens,
		Meter:         tel.Meter(instrumentationName),
	}
	model, err := oracle.NewModel(oracleOpts)
	if err != nil {
		return err
	}
	orc, err := oracle.New(model, oracleOpts)
	if err != nil {
		return err
	}

	validatorOpts := []validate.Option{validate.WithConcurrency(cfg.Oracle.Burst)}
	if cfg.Oracle.ScrubSecrets {
		scrubber, err := secrets.New()
		if err != nil {
			// A nil scrubber still applies the built-in token rules.
			logger.Warn(ctx, "gitleaks ruleset unavailable, using built-in rules only", zap.Error(err))
		}
		if cfg.Oracle.Allowlist != "" {
			allow, err := secrets.LoadAllowlist(cfg.Oracle.Allowlist)
			if err != nil {
				return err
			}
			scrubber = scrubber.WithAllowlist(allow)
		}
		validatorOpts = append(validatorOpts, validate.WithScrubber(scrubber))
	}
	validator := validate.New(orc, validatorOpts...)

	workspaces := workspace.NewManager(gh.CloneURL, workspace.Options{
		Token:       cfg.GitHub.Token.Value(),
		AuthorName:  cfg.GitHub.AuthorName,
		AuthorEmail: cfg.GitHub.AuthorEmail,
	})
	tracer := tel.Tracer(instrumentationName)
	publisher := publish.New(gh, publish.AcquireFunc(func(ctx context.Context, repo, base string) (publish.Workspace, error) {
		ws, err := workspaces.Acquire(ctx, repo, base)
		if err != nil {
			return nil, err
		}
		return ws, nil
	}), publish.Options{
		BranchPrefix:  cfg.Publish.BranchPrefix,
		CommitMessage: cfg.Publish.CommitMessage,
		Title:         cfg.Publish.Title,
		Concurrency:   cfg.Publish.Concurrency,
		RepoTimeout:   cfg.Publish.RepoTimeout.Duration(),
		DryRun:        opts.dryRun,
		Preview:       stdout,
		Tracer:        tracer,
	})

	feed, err := loadFeed(ctx, gh, cfg, opts, date)
	if err != nil {
		return err
	}

	p := pipeline.New(sweeper, validator, publisher, pipeline.NewMetrics(), pipeline.Options{
		RunID:          runID,
		DryRun:         opts.dryRun,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		Job:            cfg.Metrics.Job,
		Tracer:         tracer,
	})
	report := p.Run(ctx, feed)

	if opts.reportPath != "" {
		if err := report.WriteFile(opts.reportPath); err != nil {
			logger.Error(ctx, "failed to write run report", zap.String("path", opts.reportPath), zap.Error(err))
		}
	}
	return nil
}

// loadFeed reads the activity feed from a file or lists it from GitHub.
func loadFeed(ctx context.Context, gh *githost.Client, cfg *config.Config, opts runOptions, date time.Time) (*activity.Feed, error) {
	if opts.activityPath == "" {
		return activity.Collect(ctx, gh, cfg.Scope.Repos, activity.Options{
			Date:     date,
			Lookback: cfg.Sweep.Lookback.Duration(),
			Limit:    cfg.Sweep.MaxCommits,
		}), nil
	}

	feed, err := activity.LoadFile(opts.activityPath)
	if err != nil {
		return nil, err
	}
	if feed.Date == "" || opts.date != "" {
		feed.Date = date.Format(activity.DateLayout)
	}
	if opts.repo != "" {
		feed.Filter(opts.repo)
	}
	return feed, nil
}
