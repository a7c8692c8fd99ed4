// Package metrics exposes ZenQueue's runtime state as Prometheus
// collectors: counters and gauges registered against a dedicated registry
// and threaded through the call sites that own the numbers rather than
// read off package globals.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements server.Metrics against a Prometheus registry. It is
// passed by value-free pointer to NewServer so every connection and action
// shares one set of collectors.
type Recorder struct {
	connectionsOpened prometheus.Counter
	activeConnections prometheus.Gauge
	actionsTotal      *prometheus.CounterVec
	actionTimeouts    *prometheus.CounterVec
	waiterDepth       prometheus.Gauge
	queueDepth        prometheus.Gauge
}

// New registers ZenQueue's collectors against reg and returns a Recorder
// ready to pass to server.NewServer.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zenqueue_connections_opened_total",
			Help: "Total number of accepted TCP connections.",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zenqueue_active_connections",
			Help: "Currently open connections.",
		}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zenqueue_actions_total",
			Help: "RPC actions processed, by action and outcome.",
		}, []string{"action", "outcome"}),
		actionTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zenqueue_action_timeouts_total",
			Help: "Actions that returned error:timeout, by action.",
		}, []string{"action"}),
		waiterDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zenqueue_waiter_depth",
			Help: "Callers currently blocked waiting for a queue element.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zenqueue_queue_depth",
			Help: "Elements currently buffered in the queue.",
		}),
	}
	reg.MustRegister(
		r.connectionsOpened,
		r.activeConnections,
		r.actionsTotal,
		r.actionTimeouts,
		r.waiterDepth,
		r.queueDepth,
	)
	return r
}

// ConnectionOpened implements server.Metrics.
func (r *Recorder) ConnectionOpened() {
	r.connectionsOpened.Inc()
	r.activeConnections.Inc()
}

// ConnectionClosed implements server.Metrics.
func (r *Recorder) ConnectionClosed() {
	r.activeConnections.Dec()
}

// ActionSucceeded implements server.Metrics.
func (r *Recorder) ActionSucceeded(action string) {
	r.actionsTotal.WithLabelValues(action, "success").Inc()
}

// ActionFailed implements server.Metrics.
func (r *Recorder) ActionFailed(action string) {
	r.actionsTotal.WithLabelValues(action, "error").Inc()
}

// ActionTimedOut implements server.Metrics.
func (r *Recorder) ActionTimedOut(action string) {
	r.actionsTotal.WithLabelValues(action, "timeout").Inc()
	r.actionTimeouts.WithLabelValues(action).Inc()
}

// QueueGauges is the subset of a queue/pool pair's live depth that the
// collector loop (cmd/zenqueued) samples on a ticker, since neither the
// waiter count nor the queue length is event-driven.
type QueueGauges interface {
	Waiting() int
	Len() int
}

// SetDepths updates the point-in-time gauges from q. Call this from a
// periodic ticker; Prometheus counters above are updated inline at the
// call sites instead.
func (r *Recorder) SetDepths(q QueueGauges) {
	r.waiterDepth.Set(float64(q.Waiting()))
	r.queueDepth.Set(float64(q.Len()))
}
