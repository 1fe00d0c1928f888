// Package metrics wraps the Prometheus collectors for scheduler and
// coroutine runtime metrics, grounded 1:1 on the teacher's own
// internal/metrics package (same init-once global registry shape),
// retargeted from invocation/VM metrics to PurC's step/dispatch/idle
// metrics (spec §10 domain-stack wiring).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runtime wraps the Prometheus collectors one Instance's scheduler
// reports to.
type Runtime struct {
	registry *prometheus.Registry

	stepsTotal        *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
	dispatchesTotal   *prometheus.CounterVec
	idleBroadcasts    prometheus.Counter
	timeoutWakesTotal prometheus.Counter

	coroutinesByState *prometheus.GaugeVec
	moveBufferDepth   prometheus.Gauge

	startTime time.Time
}

var defaultStepBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50}

// New builds and registers a fresh collector set under namespace, the
// way the teacher's InitPrometheus builds a process-wide singleton —
// here scoped per-Instance since an OS process may host several.
func New(namespace string) *Runtime {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Runtime{
		registry:  registry,
		startTime: time.Now(),

		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total coroutine step executions by outcome.",
		}, []string{"outcome"}),

		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_milliseconds",
			Help:      "Duration of a single coroutine step.",
			Buckets:   defaultStepBuckets,
		}, []string{"next_step"}),

		dispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Observer dispatch attempts by match result.",
		}, []string{"matched"}),

		idleBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_broadcasts_total",
			Help:      "Total idle-event broadcasts sent to observing coroutines.",
		}),

		timeoutWakesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeout_wakes_total",
			Help:      "Total coroutines woken by deadline rather than by event.",
		}),

		coroutinesByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coroutines",
			Help:      "Current coroutine count by lifecycle state.",
		}, []string{"state"}),

		moveBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "move_buffer_depth",
			Help:      "Pending messages in this instance's move-buffer.",
		}),
	}

	registry.MustRegister(
		r.stepsTotal,
		r.stepDuration,
		r.dispatchesTotal,
		r.idleBroadcasts,
		r.timeoutWakesTotal,
		r.coroutinesByState,
		r.moveBufferDepth,
	)
	return r
}

func (r *Runtime) RecordStep(outcome string, nextStep string, durationMs float64) {
	r.stepsTotal.WithLabelValues(outcome).Inc()
	r.stepDuration.WithLabelValues(nextStep).Observe(durationMs)
}

func (r *Runtime) RecordDispatch(matched bool) {
	label := "false"
	if matched {
		label = "true"
	}
	r.dispatchesTotal.WithLabelValues(label).Inc()
}

func (r *Runtime) RecordIdleBroadcast() { r.idleBroadcasts.Inc() }

func (r *Runtime) RecordTimeoutWake() { r.timeoutWakesTotal.Inc() }

func (r *Runtime) SetCoroutineCount(state string, n int) {
	r.coroutinesByState.WithLabelValues(state).Set(float64(n))
}

func (r *Runtime) SetMoveBufferDepth(n int) {
	r.moveBufferDepth.Set(float64(n))
}

// Handler returns an HTTP handler for Prometheus scraping.
func (r *Runtime) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for custom collectors.
func (r *Runtime) Registry() *prometheus.Registry { return r.registry }
