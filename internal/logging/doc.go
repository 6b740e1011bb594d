// Package logging provides structured logging for the cleaner.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (run.id, repo, trace_id)
//   - Secret redaction by field name and value pattern
//   - Optional export to an OpenTelemetry logger provider (WithLoggerProvider)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithRepo(ctx, "daily-logger")
//	logger.Info(ctx, "pull request opened", zap.String("url", url))
//
// Output on stderr includes the correlation fields:
//
//	{"level":"info","ts":"2026-10-14T06:00:03Z","msg":"pull request opened","run.id":"3f1c...","repo":"daily-logger","url":"..."}
package logging
