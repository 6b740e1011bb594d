// Package telemetry provides OpenTelemetry tracing and metrics for cleaner runs.
//
// Each run opens a root span ("cleaner.run") with one child per repository
// and per pipeline stage. Spans and metrics are exported over OTLP when
// enabled; otherwise the global no-op providers are used.
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: "grpc"   # or "http/protobuf"
//	  sampling:
//	    rate: 1.0
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//
// Telemetry failures never fail a run. A provider that cannot be built marks
// the instance degraded and falls back to no-op.
//
// Tests use NewTestTelemetry, which records spans in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "cleaner.repo")
//	span.End()
//	tt.AssertSpanExists(t, "cleaner.repo")
package telemetry
