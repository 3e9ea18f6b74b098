package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the dispatch collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	enqueued  prometheus.Counter
	cancelled prometheus.Counter
	outcomes  *prometheus.CounterVec
	pending   prometheus.Gauge
	duration  *prometheus.HistogramVec
	buffered  *prometheus.GaugeVec
}

// NewMetrics builds the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shelfscan",
			Subsystem: "dispatch",
			Name:      "requests_enqueued_total",
			Help:      "Requests accepted by the dispatch queue.",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shelfscan",
			Subsystem: "dispatch",
			Name:      "requests_cancelled_total",
			Help:      "Requests withdrawn before a worker picked them up.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelfscan",
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Terminal outcomes by kind.",
		}, []string{"kind"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shelfscan",
			Subsystem: "dispatch",
			Name:      "requests_pending",
			Help:      "Requests waiting for a worker.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shelfscan",
			Subsystem: "dispatch",
			Name:      "request_duration_seconds",
			Help:      "Time spent executing requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		buffered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shelfscan",
			Subsystem: "dispatch",
			Name:      "handler_buffered_events",
			Help:      "Events waiting for a handler to be bound.",
		}, []string{"handler"}),
	}
	if reg != nil {
		reg.MustRegister(m.enqueued, m.cancelled, m.outcomes, m.pending, m.duration, m.buffered)
	}
	return m
}

func (m *Metrics) requestEnqueued(pending int) {
	if m == nil {
		return
	}
	m.enqueued.Inc()
	m.pending.Set(float64(pending))
}

func (m *Metrics) requestCancelled(pending int) {
	if m == nil {
		return
	}
	m.cancelled.Inc()
	m.pending.Set(float64(pending))
}

func (m *Metrics) setPending(pending int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
}

func (m *Metrics) observe(kind Kind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind.String()).Inc()
	m.duration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) setBuffered(handler string, n int) {
	if m == nil {
		return
	}
	m.buffered.WithLabelValues(handler).Set(float64(n))
}
