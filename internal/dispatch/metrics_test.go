package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsTrackQueueActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	transport := TransportFunc(func(context.Context, *Request, func(int)) (*Response, error) {
		return &Response{StatusCode: 200}, nil
	})
	q := NewQueue(transport, WithMetrics(m))
	h := NewHandler("metrics", NewRoutes(), nil, WithHandlerMetrics(m))

	keep, err := NewRequest(MethodGet, "https://example.test/a").Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	drop, err := NewRequest(MethodGet, "https://example.test/b").Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := q.Enqueue(keep, h); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(drop, h); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	q.Cancel(drop.ID())

	if got := testutil.ToFloat64(m.enqueued); got != 2 {
		t.Fatalf("enqueued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cancelled); got != 1 {
		t.Fatalf("cancelled = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.pending); got != 1 {
		t.Fatalf("pending = %v, want 1", got)
	}

	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for testutil.ToFloat64(m.outcomes.WithLabelValues("success")) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for success metric")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := testutil.ToFloat64(m.buffered.WithLabelValues("metrics")); got != 2 {
		t.Fatalf("buffered = %v, want 2 (started + success while unbound)", got)
	}
	if n, err := testutil.GatherAndCount(reg, "shelfscan_dispatch_request_duration_seconds"); err != nil || n != 1 {
		t.Fatalf("duration series = %d, err %v", n, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.requestEnqueued(1)
	m.requestCancelled(0)
	m.setPending(0)
	m.observe(KindSuccess, time.Second)
	m.setBuffered("x", 1)
}
