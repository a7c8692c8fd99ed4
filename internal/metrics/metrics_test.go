package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestConnectionLifecycleUpdatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ConnectionOpened()
	r.ConnectionOpened()
	if got := counterValue(t, r.activeConnections); got != 2 {
		t.Fatalf("active connections = %v, want 2", got)
	}

	r.ConnectionClosed()
	if got := counterValue(t, r.activeConnections); got != 1 {
		t.Fatalf("active connections = %v, want 1", got)
	}
}

func TestActionCountersByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ActionSucceeded("push")
	r.ActionFailed("pull")
	r.ActionTimedOut("pull")

	if got := counterValue(t, r.actionsTotal.WithLabelValues("push", "success")); got != 1 {
		t.Fatalf("push success count = %v, want 1", got)
	}
	if got := counterValue(t, r.actionTimeouts.WithLabelValues("pull")); got != 1 {
		t.Fatalf("pull timeout count = %v, want 1", got)
	}
}

type fakeDepths struct{ waiting, len int }

func (f fakeDepths) Waiting() int { return f.waiting }
func (f fakeDepths) Len() int     { return f.len }

func TestSetDepths(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SetDepths(fakeDepths{waiting: 3, len: 7})

	if got := counterValue(t, r.waiterDepth); got != 3 {
		t.Fatalf("waiter depth = %v, want 3", got)
	}
	if got := counterValue(t, r.queueDepth); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
}
