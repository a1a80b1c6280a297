// Package metrics records per-run migration metrics and, when a
// Pushgateway address is configured, pushes them at the end of a batch
// invocation. A `copybara migrate` run is a one-shot process, not a
// server, so there is nothing to scrape; Prometheus's push-acceptor
// model is the fit for this shape rather than an HTTP /metrics handler.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder holds the counters/histograms for a single migration run and
// pushes them to a Pushgateway if one is configured.
type Recorder struct {
	registry *prometheus.Registry

	lastSuccessTimestamp *prometheus.GaugeVec
	runCount             *prometheus.CounterVec
	runLatency           *prometheus.HistogramVec
	effectCount          *prometheus.CounterVec

	pushgatewayURL string
	job            string
}

// NewRecorder registers a fresh metric set on its own registry (never the
// global default, since a batch process only ever makes one run) scoped
// to job, e.g. the workflow name. pushgatewayURL may be empty, in which
// case Push is a no-op.
func NewRecorder(job, pushgatewayURL string) *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		lastSuccessTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "copybara",
			Name:      "last_migration_timestamp",
			Help:      "Timestamp of the last successful migration run",
		}, []string{"workflow"}),
		runCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copybara",
			Name:      "migration_run_count",
			Help:      "Count of migration run attempts",
		}, []string{"workflow", "success"}),
		runLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "copybara",
			Name:      "migration_run_latency_seconds",
			Help:      "Latency of a full migration run",
			Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300},
		}, []string{"workflow"}),
		effectCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copybara",
			Name:      "migration_effect_count",
			Help:      "Count of per-change effects produced by a migration run",
		}, []string{"workflow", "type"}),
		pushgatewayURL: pushgatewayURL,
		job:            job,
	}

	reg.MustRegister(r.lastSuccessTimestamp, r.runCount, r.runLatency, r.effectCount)
	return r
}

// RecordRun updates the run counter/latency and, on success, the
// last-success timestamp for workflow.
func (r *Recorder) RecordRun(workflow string, success bool, start time.Time) {
	r.runLatency.WithLabelValues(workflow).Observe(time.Since(start).Seconds())
	r.runCount.With(prometheus.Labels{
		"workflow": workflow,
		"success":  strconv.FormatBool(success),
	}).Inc()
	if success {
		r.lastSuccessTimestamp.WithLabelValues(workflow).Set(float64(time.Now().Unix()))
	}
}

// RecordEffect increments the effect counter for workflow/effectType, one
// call per destination.Effect produced by a run.
func (r *Recorder) RecordEffect(workflow, effectType string) {
	r.effectCount.With(prometheus.Labels{
		"workflow": workflow,
		"type":     effectType,
	}).Inc()
}

// Push sends the collected metrics to the configured Pushgateway. It is a
// no-op if no Pushgateway address was configured.
func (r *Recorder) Push() error {
	if r.pushgatewayURL == "" {
		return nil
	}
	return push.New(r.pushgatewayURL, r.job).Gatherer(r.registry).Push()
}
