// Package metrics exposes run counters over Prometheus. The collectors are
// fed from the event bus, keeping the instrumentation off the worker hot path.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promptbatch/promptbatch/internal/events"
)

// Metrics bundles the run collectors on a private registry, so tests can hold
// several instances without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	tasksCompleted prometheus.Counter
	tasksFailed    *prometheus.CounterVec
	taskDuration   prometheus.Histogram
	taskAttempts   prometheus.Histogram
	runStops       *prometheus.CounterVec
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promptbatch_tasks_completed_total",
			Help: "Tasks that finished with a genuine answer.",
		}),
		tasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptbatch_tasks_failed_total",
			Help: "Tasks that exhausted their retries, by failure kind.",
		}, []string{"kind"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptbatch_task_duration_seconds",
			Help:    "Wall time per task, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 0.1s .. ~13m
		}),
		taskAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptbatch_task_attempts",
			Help:    "Provider attempts per task.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		runStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptbatch_run_stops_total",
			Help: "Runs halted early by the stop policy.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.tasksCompleted,
		m.tasksFailed,
		m.taskDuration,
		m.taskAttempts,
		m.runStops,
	)
	return m
}

// Observe updates the collectors from one bus event. Unknown event types are
// ignored.
func (m *Metrics) Observe(evt events.Event) {
	switch e := evt.(type) {
	case events.TaskCompletedEvent:
		m.tasksCompleted.Inc()
		m.taskDuration.Observe(e.Duration.Seconds())
		m.taskAttempts.Observe(float64(e.Attempts))
	case events.TaskFailedEvent:
		m.tasksFailed.WithLabelValues(e.Kind).Inc()
		m.taskDuration.Observe(e.Duration.Seconds())
		m.taskAttempts.Observe(float64(e.Attempts))
	case events.RunStoppedEvent:
		m.runStops.WithLabelValues(stopLabel(e.Reason)).Inc()
	}
}

// Consume drains a bus subscription into the collectors until the channel
// closes. Run it in its own goroutine.
func (m *Metrics) Consume(ch <-chan events.Event) {
	for evt := range ch {
		m.Observe(evt)
	}
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// stopLabel keeps the label cardinality bounded: reasons embed counts and
// error keys, so only the rule family goes into the label.
func stopLabel(reason string) string {
	if len(reason) >= len("error rate") && reason[:len("error rate")] == "error rate" {
		return "error_rate"
	}
	return "consecutive_errors"
}
