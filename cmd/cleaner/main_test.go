package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ojfbot/daily-logger/internal/config"
)

// isolateEnv clears credentials and the default config location.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cleaner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 10, 14, 23, 30, 0, 0, time.FixedZone("X", -5*3600))

	got, err := parseDate("", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = parseDate("2026-10-01", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-01", got.Format("2006-01-02"))

	_, err = parseDate("10/01/2026", now)
	assert.ErrorContains(t, err, "invalid --date")
}

func TestLoadRun_MissingGitHubToken(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeConfig(t, "github:\n  owner: ojfbot\nscope:\n  repos: [daily-logger]\n")

	_, _, err := loadRun(runOptions{configPath: path}, time.Now())
	require.ErrorIs(t, err, config.ErrMissingCredential)
	assert.ErrorContains(t, err, "GITHUB_TOKEN")
}

func TestLoadRun_MissingOracleKey(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	path := writeConfig(t, "github:\n  owner: ojfbot\nscope:\n  repos: [daily-logger]\noracle:\n  provider: anthropic\n")

	_, _, err := loadRun(runOptions{configPath: path}, time.Now())
	require.ErrorIs(t, err, config.ErrMissingCredential)
	assert.ErrorContains(t, err, "ANTHROPIC_API_KEY")
}

func TestLoadRun_FlagsOverrideConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeConfig(t, "scope:\n  repos: [a, b]\n")

	cfg, date, err := loadRun(runOptions{
		configPath: path,
		owner:      "ojfbot",
		repo:       "daily-logger",
		date:       "2026-10-14",
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "ojfbot", cfg.GitHub.Owner)
	assert.Equal(t, []string{"daily-logger"}, cfg.Scope.Repos)
	assert.Equal(t, "2026-10-14", date.Format("2006-01-02"))
}

func TestLoadRun_NoScope(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	path := writeConfig(t, "github:\n  owner: ojfbot\n")

	_, _, err := loadRun(runOptions{configPath: path}, time.Now())
	assert.ErrorIs(t, err, errNoScope)

	_, _, err = loadRun(runOptions{configPath: path, activityPath: "feed.json"}, time.Now())
	assert.NoError(t, err)
}

func TestLoadRun_BadDateFailsFirst(t *testing.T) {
	isolateEnv(t)

	_, _, err := loadRun(runOptions{configPath: "/does/not/exist.yaml", date: "yesterday"}, time.Now())
	assert.ErrorContains(t, err, "invalid --date")
}

func TestRunCleaner_AbortsWithoutCredentials(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, "github:\n  owner: ojfbot\nscope:\n  repos: [daily-logger]\n")
	var out bytes.Buffer

	err := runCleaner(context.Background(), runOptions{configPath: path}, &out)
	assert.ErrorIs(t, err, config.ErrMissingCredential)
	assert.Empty(t, out.String())
}

func TestCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["version"])

	for _, flag := range []string{"config", "date", "dry-run", "repo", "owner", "activity", "report"} {
		assert.NotNil(t, runCmd.Flags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "cleaner dev\n", out.String())
}
