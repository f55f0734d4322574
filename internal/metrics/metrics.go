// Copyright 2025 Certen Protocol
//
// Package metrics wires a private prometheus.Registry exposing this
// core's counters and gauges, realizing the Monitoring.Metrics.Port/Path
// configuration knobs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentchain/replaycore/internal/projector"
)

// Registry bundles every metric this core exports behind one private
// *prometheus.Registry, so multiple instances (e.g. in tests) never
// collide on the default global registry.
type Registry struct {
	reg *prometheus.Registry

	ProjectorEventsTotal    *prometheus.CounterVec
	ProjectorDuplicates     prometheus.Counter
	BackfillPagesTotal      prometheus.Counter
	BackfillDurationSeconds prometheus.Histogram
	ComparatorAnomaliesTotal *prometheus.CounterVec
	SchedulerSpeculativeExecutionsTotal prometheus.Counter
	SchedulerHitRate                   prometheus.Gauge
	SchedulerStakeAtRiskLamports       prometheus.Gauge
}

// New registers and returns every metric.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ProjectorEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_projector_events_total",
			Help: "Projector inputs by outcome: projected, duplicate, unknown, malformed, violation.",
		}, []string{"result"}),
		ProjectorDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_projector_duplicates_dropped_total",
			Help: "Inputs dropped as duplicate fingerprints during projection.",
		}),
		BackfillPagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_backfill_pages_total",
			Help: "Pages drained by the backfill service.",
		}),
		BackfillDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "replay_backfill_duration_seconds",
			Help:    "Wall-clock duration of a backfill Run.",
			Buckets: prometheus.DefBuckets,
		}),
		ComparatorAnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_comparator_anomalies_total",
			Help: "Anomalies emitted by the comparator, by kind.",
		}, []string{"kind"}),
		SchedulerSpeculativeExecutionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_scheduler_speculative_executions_total",
			Help: "Speculative executions started by the scheduler.",
		}),
		SchedulerHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_scheduler_hit_rate",
			Help: "Percentage (0-100) of speculative executions confirmed rather than failed.",
		}),
		SchedulerStakeAtRiskLamports: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_scheduler_stake_at_risk_lamports",
			Help: "Sum of stakeLamports over Pending|Executing commitments.",
		}),
	}

	reg.MustRegister(
		r.ProjectorEventsTotal,
		r.ProjectorDuplicates,
		r.BackfillPagesTotal,
		r.BackfillDurationSeconds,
		r.ComparatorAnomaliesTotal,
		r.SchedulerSpeculativeExecutionsTotal,
		r.SchedulerHitRate,
		r.SchedulerStakeAtRiskLamports,
	)
	return r
}

// ObserveProjection records one Project call's telemetry against
// replay_projector_events_total{result}.
func (r *Registry) ObserveProjection(t projector.Telemetry) {
	r.ProjectorEventsTotal.WithLabelValues("projected").Add(float64(t.ProjectedEvents))
	r.ProjectorEventsTotal.WithLabelValues("duplicate").Add(float64(t.DuplicatesDropped))
	r.ProjectorEventsTotal.WithLabelValues("unknown").Add(float64(t.UnknownEvents))
	r.ProjectorEventsTotal.WithLabelValues("malformed").Add(float64(len(t.MalformedInputs)))
	r.ProjectorEventsTotal.WithLabelValues("violation").Add(float64(t.TransitionConflicts))
	r.ProjectorDuplicates.Add(float64(t.DuplicatesDropped))
}

// Handler returns an http.Handler serving this registry's metrics in
// the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
