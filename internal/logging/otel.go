package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

const bridgeName = "github.com/ojfbot/daily-logger"

// Option configures NewLogger.
type Option func(*options)

type options struct {
	loggerProvider log.LoggerProvider
}

// WithLoggerProvider also sends entries to an OpenTelemetry logger provider.
func WithLoggerProvider(lp log.LoggerProvider) Option {
	return func(o *options) {
		o.loggerProvider = lp
	}
}

// newCore tees the local core with the OTel bridge when a provider is set.
func newCore(local zapcore.Core, level zapcore.LevelEnabler, redact *RedactingEncoder, lp log.LoggerProvider) zapcore.Core {
	if lp == nil {
		return local
	}
	bridge := otelzap.NewCore(bridgeName, otelzap.WithLoggerProvider(lp))
	return zapcore.NewTee(local, &bridgeCore{Core: bridge, level: level, redact: redact})
}

// bridgeCore applies the configured level and redaction rules in front of
// the bridge, which has neither.
type bridgeCore struct {
	zapcore.Core
	level  zapcore.LevelEnabler
	redact *RedactingEncoder
}

func (c *bridgeCore) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l) && c.Core.Enabled(l)
}

func (c *bridgeCore) With(fields []zapcore.Field) zapcore.Core {
	return &bridgeCore{Core: c.Core.With(c.redact.RedactFields(fields)), level: c.level, redact: c.redact}
}

func (c *bridgeCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *bridgeCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.redact.RedactFields(fields))
}
