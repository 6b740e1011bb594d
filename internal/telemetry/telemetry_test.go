package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, true},
		{"enabled local", func(c *Config) { c.Enabled = true }, true},
		{"enabled http local", func(c *Config) {
			c.Enabled = true
			c.Protocol = "http/protobuf"
			c.Endpoint = "http://127.0.0.1:4318"
		}, true},
		{"missing endpoint", func(c *Config) { c.Enabled = true; c.Endpoint = "" }, false},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, false},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, false},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}, true},
		{"bad rate", func(c *Config) { c.Enabled = true; c.Sampling.Rate = 2 }, false},
		{"zero interval", func(c *Config) { c.Enabled = true; c.Metrics.ExportInterval = 0 }, false},
		{"zero shutdown", func(c *Config) { c.Enabled = true; c.Shutdown.Timeout = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.False(t, tel.IsEnabled())

	_, span := tel.Tracer("test").Start(context.Background(), "noop")
	span.End()
	assert.False(t, span.SpanContext().IsValid())

	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.False(t, tel.IsEnabled())
	assert.NoError(t, tel.Shutdown(context.Background()))
	degraded, err := tel.Degraded()
	assert.False(t, degraded)
	assert.NoError(t, err)
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NotNil(t, tel.LoggerProvider())
}

func TestLoggerProvider(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, global.GetLoggerProvider(), tel.LoggerProvider())

	lp := lognoop.NewLoggerProvider()
	tel.SetLoggerProvider(lp)
	assert.Equal(t, lp, tel.LoggerProvider())
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	ctx, root := tt.Tracer("test").Start(ctx, "cleaner.run")
	_, child := tt.Tracer("test").Start(ctx, "cleaner.repo")
	child.SetAttributes(attribute.String("repo", "daily-logger"))
	child.End()
	root.End()

	tt.AssertSpanExists(t, "cleaner.run")
	tt.AssertSpanAttribute(t, "cleaner.repo", "repo", "daily-logger")
	assert.Len(t, tt.SpansByName("cleaner.repo"), 1)
	assert.Equal(t, root.SpanContext().TraceID(), tt.SpansByName("cleaner.repo")[0].SpanContext().TraceID())
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	hist, err := tt.Meter("test").Float64Histogram("oracle.latency")
	require.NoError(t, err)
	hist.Record(ctx, (250 * time.Millisecond).Seconds())

	rm, err := tt.Collect(ctx)
	require.NoError(t, err)
	m, ok := FindMetric(rm, "oracle.latency")
	require.True(t, ok)
	data, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, uint64(1), data.DataPoints[0].Count)

	_, ok = FindMetric(rm, "missing")
	assert.False(t, ok)
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "host:4318", stripScheme("https://host:4318"))
	assert.Equal(t, "host:4318", stripScheme("http://host:4318"))
	assert.Equal(t, "host:4318", stripScheme("host:4318"))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(0).Description(), "AlwaysOff")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
