package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `github:
  owner: ojfbot
  author_name: cleaner-bot
scope:
  repos: [daily-logger, shell]
  doc_files: [README.md]
sweep:
  lookback: 48h
  max_commits: 5
oracle:
  provider: anthropic
  timeout: 30s
publish:
  concurrency: 3
logging:
  level: debug
  format: console
`

func TestLoadBytes(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := LoadBytes([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "ojfbot", cfg.GitHub.Owner)
	assert.Equal(t, "cleaner-bot", cfg.GitHub.AuthorName)
	assert.Equal(t, []string{"daily-logger", "shell"}, cfg.Scope.Repos)
	assert.Equal(t, []string{"README.md"}, cfg.Scope.DocFiles)
	assert.Equal(t, 48*time.Hour, cfg.Sweep.Lookback.Duration())
	assert.Equal(t, 5, cfg.Sweep.MaxCommits)
	assert.Equal(t, "anthropic", cfg.Oracle.Provider)
	assert.Equal(t, "claude-2.1", cfg.Oracle.Model)
	assert.Equal(t, 30*time.Second, cfg.Oracle.Timeout.Duration())
	assert.Equal(t, 3, cfg.Publish.Concurrency)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, cfg.Logging.Redaction.Enabled, "unset logging keys keep defaults")
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadBytes_Defaults(t *testing.T) {
	cfg, err := LoadBytes([]byte("github:\n  owner: ojfbot\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"TODO", "FIXME", "HACK", "XXX"}, cfg.Scope.TagPatterns)
	assert.Equal(t, []string{"FIXME", "XXX"}, cfg.Scope.FixMarkers)
	assert.Equal(t, 24*time.Hour, cfg.Sweep.Lookback.Duration())
	assert.Equal(t, 8, cfg.Sweep.ContextRadius)
	assert.Equal(t, 10, cfg.Sweep.MaxCommits)
	assert.Equal(t, 20, cfg.Sweep.MaxFilesPerRepo)
	assert.Equal(t, "openai", cfg.Oracle.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Oracle.Model)
	assert.Equal(t, "clean/", cfg.Publish.BranchPrefix)
	assert.Equal(t, 1, cfg.Publish.Concurrency)
	assert.True(t, cfg.Oracle.ScrubSecrets)

	off, err := LoadBytes([]byte("github:\n  owner: ojfbot\noracle:\n  scrub_secrets: false\n"))
	require.NoError(t, err)
	assert.False(t, off.Oracle.ScrubSecrets)
}

func TestLoadBytes_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing owner", "scope:\n  repos: [a]\n"},
		{"qualified repo", "github:\n  owner: o\nscope:\n  repos: [o/a]\n"},
		{"bad provider", "github:\n  owner: o\noracle:\n  provider: llama\n"},
		{"anthropic base url", "github:\n  owner: o\noracle:\n  provider: anthropic\n  base_url: https://proxy.internal/v1\n"},
		{"bad prefix", "github:\n  owner: o\npublish:\n  branch_prefix: clean\n"},
		{"bad log format", "github:\n  owner: o\nlogging:\n  format: xml\n"},
		{"negative duration", "github:\n  owner: o\nsweep:\n  lookback: -1h\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithFile_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cleaner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0600))

	t.Setenv("CLEANER_SWEEP_MAX_COMMITS", "7")
	t.Setenv("CLEANER_ORACLE_MODEL", "claude-3-haiku-20240307")
	t.Setenv("GITHUB_TOKEN", "ghp_example")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-example")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Sweep.MaxCommits)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.Oracle.Model)
	assert.Equal(t, "ghp_example", cfg.GitHub.Token.Value())
	assert.Equal(t, "sk-ant-example", cfg.Oracle.APIKey.Value())
	assert.NoError(t, cfg.RequireCredentials())
}

func TestLoadWithFile_MissingExplicitFile(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWithFile_OptionalDefaultPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLEANER_GITHUB_OWNER", "ojfbot")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, "ojfbot", cfg.GitHub.Owner)
}

func TestLoadBytes_OverridesRunBeforeValidation(t *testing.T) {
	_, err := LoadBytes([]byte("scope:\n  repos: [shell]\n"))
	require.Error(t, err)

	cfg, err := LoadBytes([]byte("scope:\n  repos: [shell]\n"), func(c *Config) {
		c.GitHub.Owner = "ojfbot"
		c.Scope.Repos = []string{"daily-logger"}
	})
	require.NoError(t, err)
	assert.Equal(t, "ojfbot", cfg.GitHub.Owner)
	assert.Equal(t, []string{"daily-logger"}, cfg.Scope.Repos)
}

func TestRequireCredentials(t *testing.T) {
	cfg := Default()
	cfg.GitHub.Owner = "o"

	err := cfg.RequireCredentials()
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")

	cfg.GitHub.Token = "t"
	err = cfg.RequireCredentials()
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	cfg.Oracle.APIKey = "k"
	assert.NoError(t, cfg.RequireCredentials())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "sweep.max_commits", envKey("CLEANER_SWEEP_MAX_COMMITS"))
	assert.Equal(t, "github.owner", envKey("CLEANER_GITHUB_OWNER"))
	assert.Equal(t, "debug", envKey("CLEANER_DEBUG"))
}
