package pipeline

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the batch metrics for one run in a private registry that is
// pushed to a Pushgateway when the run ends.
//
// Metrics:
//   - cleaner_candidates_total{kind}
//   - cleaner_proposals_total{confidence}
//   - cleaner_oracle_errors_total
//   - cleaner_discarded_edits_total
//   - cleaner_repositories_total{status}
//   - cleaner_run_duration_seconds
//   - cleaner_last_run_timestamp_seconds
type Metrics struct {
	registry *prometheus.Registry

	Candidates   *prometheus.CounterVec
	Proposals    *prometheus.CounterVec
	OracleErrors prometheus.Counter
	Discarded    prometheus.Counter
	Repositories *prometheus.CounterVec
	Duration     prometheus.Gauge
	LastRun      prometheus.Gauge
}

// NewMetrics creates the run metrics in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Candidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleaner_candidates_total",
			Help: "Candidates produced by the sweep",
		}, []string{"kind"}),
		Proposals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleaner_proposals_total",
			Help: "Validated proposals after overlap resolution",
		}, []string{"confidence"}),
		OracleErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "cleaner_oracle_errors_total",
			Help: "Oracle calls that failed or returned a malformed response",
		}),
		Discarded: f.NewCounter(prometheus.CounterOpts{
			Name: "cleaner_discarded_edits_total",
			Help: "Oracle edits rejected by validation policy",
		}),
		Repositories: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleaner_repositories_total",
			Help: "Repository publish outcomes",
		}, []string{"status"}),
		Duration: f.NewGauge(prometheus.GaugeOpts{
			Name: "cleaner_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "cleaner_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records a finished run's report.
func (m *Metrics) Observe(r *Report) {
	for kind, n := range r.Candidates {
		m.Candidates.WithLabelValues(string(kind)).Add(float64(n))
	}
	for conf, n := range r.Proposals {
		m.Proposals.WithLabelValues(string(conf)).Add(float64(n))
	}
	m.OracleErrors.Add(float64(r.OracleErrors))
	m.Discarded.Add(float64(r.Discarded))
	for _, repo := range r.Repos {
		m.Repositories.WithLabelValues(string(repo.Status)).Inc()
	}
	m.Duration.Set(r.FinishedAt.Sub(r.StartedAt).Seconds())
	m.LastRun.Set(float64(r.FinishedAt.Unix()))
}

// Push sends the registry to a Pushgateway, grouped by run date.
func (m *Metrics) Push(ctx context.Context, url, job, date string) error {
	err := push.New(url, job).
		Gatherer(m.registry).
		Grouping("date", date).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
