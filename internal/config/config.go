// Package config provides configuration loading for the stale content cleaner.
//
// Configuration is assembled from built-in defaults, an optional YAML file,
// and CLEANER_* environment variables. Credentials come from the file or
// from the conventional GITHUB_TOKEN / OPENAI_API_KEY / ANTHROPIC_API_KEY
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ojfbot/daily-logger/internal/logging"
	"github.com/ojfbot/daily-logger/internal/telemetry"
)

// ErrMissingCredential is returned when a required token is absent.
var ErrMissingCredential = errors.New("missing required credential")

// Config holds the complete cleaner configuration.
type Config struct {
	GitHub    GitHubConfig      `koanf:"github"`
	Scope     ScopeConfig       `koanf:"scope"`
	Sweep     SweepConfig       `koanf:"sweep"`
	Oracle    OracleConfig      `koanf:"oracle"`
	Publish   PublishConfig     `koanf:"publish"`
	Metrics   MetricsConfig     `koanf:"metrics"`
	Logging   *logging.Config   `koanf:"-"` // loaded from the "logging" section
	Telemetry *telemetry.Config `koanf:"-"` // loaded from the "telemetry" section
}

// GitHubConfig holds git hosting access settings.
type GitHubConfig struct {
	Owner       string   `koanf:"owner"`
	Token       Secret   `koanf:"token"`
	BaseURL     string   `koanf:"base_url"` // empty for github.com
	AuthorName  string   `koanf:"author_name"`
	AuthorEmail string   `koanf:"author_email"`
	Timeout     Duration `koanf:"timeout"`
}

// ScopeConfig names what a run looks at. It replaces a process-wide
// repository list with an explicit value handed to the sweeper.
type ScopeConfig struct {
	Repos       []string `koanf:"repos"`
	DocFiles    []string `koanf:"doc_files"`
	TagPatterns []string `koanf:"tag_patterns"`
	FixMarkers  []string `koanf:"fix_markers"`
}

// SweepConfig bounds candidate extraction.
type SweepConfig struct {
	Lookback        Duration `koanf:"lookback"`
	MaxCommits      int      `koanf:"max_commits"`
	MaxFilesPerRepo int      `koanf:"max_files_per_repo"`
	MinDocLength    int      `koanf:"min_doc_length"`
	MinTagText      int      `koanf:"min_tag_text"`
	ContextRadius   int      `koanf:"context_radius"`
	SourceGlobs     []string `koanf:"source_globs"`
	IgnoreGlobs     []string `koanf:"ignore_globs"`
	DigestCommits   int      `koanf:"digest_commits"`
	DigestBytes     int      `koanf:"digest_bytes"`
}

// OracleConfig selects and bounds the text-reasoning backend.
type OracleConfig struct {
	Provider      string   `koanf:"provider"` // openai | anthropic
	Model         string   `koanf:"model"`
	APIKey        Secret   `koanf:"api_key"`
	BaseURL       string   `koanf:"base_url"`
	Timeout       Duration `koanf:"timeout"`
	RatePerMinute float64  `koanf:"rate_per_minute"`
	Burst         int      `koanf:"burst"`
	MaxTokens     int      `koanf:"max_tokens"`
	ScrubSecrets  bool     `koanf:"scrub_secrets"`
	Allowlist     string   `koanf:"allowlist"` // gitleaks-style TOML of non-secret patterns
}

// PublishConfig controls branch and pull request creation.
type PublishConfig struct {
	Concurrency   int      `koanf:"concurrency"`
	RepoTimeout   Duration `koanf:"repo_timeout"`
	BranchPrefix  string   `koanf:"branch_prefix"`
	CommitMessage string   `koanf:"commit_message"` // %s is the run date
	Title         string   `koanf:"title"`          // %s is the run date
}

// MetricsConfig configures the Prometheus Pushgateway used at end of run.
type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url"`
	Job            string `koanf:"job"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Oracle: OracleConfig{ScrubSecrets: true}}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.GitHub.AuthorName == "" {
		cfg.GitHub.AuthorName = "daily-logger[bot]"
	}
	if cfg.GitHub.AuthorEmail == "" {
		cfg.GitHub.AuthorEmail = "daily-logger[bot]@users.noreply.github.com"
	}
	if cfg.GitHub.Timeout == 0 {
		cfg.GitHub.Timeout = Duration(30 * time.Second)
	}

	if len(cfg.Scope.DocFiles) == 0 {
		cfg.Scope.DocFiles = []string{"README.md", "CLAUDE.md", "CONTRIBUTING.md", "ARCHITECTURE.md"}
	}
	if len(cfg.Scope.TagPatterns) == 0 {
		cfg.Scope.TagPatterns = []string{"TODO", "FIXME", "HACK", "XXX"}
	}
	if len(cfg.Scope.FixMarkers) == 0 {
		cfg.Scope.FixMarkers = []string{"FIXME", "XXX"}
	}

	if cfg.Sweep.Lookback == 0 {
		cfg.Sweep.Lookback = Duration(24 * time.Hour)
	}
	if cfg.Sweep.MaxCommits == 0 {
		cfg.Sweep.MaxCommits = 10
	}
	if cfg.Sweep.MaxFilesPerRepo == 0 {
		cfg.Sweep.MaxFilesPerRepo = 20
	}
	if cfg.Sweep.MinDocLength == 0 {
		cfg.Sweep.MinDocLength = 200
	}
	if cfg.Sweep.MinTagText == 0 {
		cfg.Sweep.MinTagText = 10
	}
	if cfg.Sweep.ContextRadius == 0 {
		cfg.Sweep.ContextRadius = 8
	}
	if len(cfg.Sweep.SourceGlobs) == 0 {
		cfg.Sweep.SourceGlobs = []string{"**/*.{go,ts,tsx,js,jsx,mjs,py,rb,rs,java,kt,swift,c,h,cpp,cs,sh}"}
	}
	if len(cfg.Sweep.IgnoreGlobs) == 0 {
		cfg.Sweep.IgnoreGlobs = []string{"**/node_modules/**", "**/vendor/**", "**/dist/**", "**/*.min.js"}
	}
	if cfg.Sweep.DigestCommits == 0 {
		cfg.Sweep.DigestCommits = 20
	}
	if cfg.Sweep.DigestBytes == 0 {
		cfg.Sweep.DigestBytes = 4000
	}

	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = "openai"
	}
	if cfg.Oracle.Model == "" {
		switch cfg.Oracle.Provider {
		case "anthropic":
			cfg.Oracle.Model = "claude-2.1"
		default:
			cfg.Oracle.Model = "gpt-4o-mini"
		}
	}
	if cfg.Oracle.Timeout == 0 {
		cfg.Oracle.Timeout = Duration(90 * time.Second)
	}
	if cfg.Oracle.RatePerMinute == 0 {
		cfg.Oracle.RatePerMinute = 50
	}
	if cfg.Oracle.Burst == 0 {
		cfg.Oracle.Burst = 5
	}
	if cfg.Oracle.MaxTokens == 0 {
		cfg.Oracle.MaxTokens = 4096
	}

	if cfg.Publish.Concurrency == 0 {
		cfg.Publish.Concurrency = 1
	}
	if cfg.Publish.RepoTimeout == 0 {
		cfg.Publish.RepoTimeout = Duration(5 * time.Minute)
	}
	if cfg.Publish.BranchPrefix == "" {
		cfg.Publish.BranchPrefix = "clean/"
	}
	if cfg.Publish.CommitMessage == "" {
		cfg.Publish.CommitMessage = "docs: remove stale comments and docs (%s) [skip ci]"
	}
	if cfg.Publish.Title == "" {
		cfg.Publish.Title = "Stale content cleanup %s"
	}

	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "daily_logger_cleaner"
	}

	if cfg.Logging == nil {
		cfg.Logging = logging.NewDefaultConfig()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NewDefaultConfig()
	}
}

// Validate checks the configuration for errors. Credentials are checked
// separately by RequireCredentials so a dry config can still be inspected.
func (c *Config) Validate() error {
	if c.GitHub.Owner == "" {
		return errors.New("github.owner is required")
	}
	for _, r := range c.Scope.Repos {
		if r == "" || strings.Contains(r, "/") {
			return fmt.Errorf("invalid repository name %q (use the bare name, owner comes from github.owner)", r)
		}
	}
	if len(c.Scope.TagPatterns) == 0 {
		return errors.New("scope.tag_patterns must not be empty")
	}
	if c.Sweep.Lookback.Duration() <= 0 {
		return errors.New("sweep.lookback must be positive")
	}
	if c.Sweep.MaxCommits < 1 || c.Sweep.MaxFilesPerRepo < 1 {
		return errors.New("sweep.max_commits and sweep.max_files_per_repo must be at least 1")
	}
	if c.Sweep.ContextRadius < 0 {
		return fmt.Errorf("sweep.context_radius must be >= 0, got %d", c.Sweep.ContextRadius)
	}
	switch c.Oracle.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("oracle.provider must be 'openai' or 'anthropic', got %q", c.Oracle.Provider)
	}
	if c.Oracle.Provider == "anthropic" && c.Oracle.BaseURL != "" {
		return errors.New("oracle.base_url is only supported for the openai provider")
	}
	if c.Oracle.Timeout.Duration() <= 0 {
		return errors.New("oracle.timeout must be positive")
	}
	if c.Oracle.RatePerMinute < 0 || c.Oracle.Burst < 1 {
		return errors.New("oracle.rate_per_minute must be >= 0 and oracle.burst >= 1")
	}
	if c.Publish.Concurrency < 1 {
		return fmt.Errorf("publish.concurrency must be >= 1, got %d", c.Publish.Concurrency)
	}
	if c.Publish.RepoTimeout.Duration() <= 0 {
		return errors.New("publish.repo_timeout must be positive")
	}
	if !strings.HasSuffix(c.Publish.BranchPrefix, "/") {
		return fmt.Errorf("publish.branch_prefix must end with '/', got %q", c.Publish.BranchPrefix)
	}
	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return fmt.Errorf("logging: %w", err)
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}

// RequireCredentials fails when the git hosting token or the oracle key is
// absent. It runs before any sweep so a misconfigured run does no work.
func (c *Config) RequireCredentials() error {
	if !c.GitHub.Token.IsSet() {
		return fmt.Errorf("%w: GITHUB_TOKEN", ErrMissingCredential)
	}
	if !c.Oracle.APIKey.IsSet() {
		return fmt.Errorf("%w: %s", ErrMissingCredential, oracleKeyEnv(c.Oracle.Provider))
	}
	return nil
}

func oracleKeyEnv(provider string) string {
	if provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}
