package undo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "segedit"
	metricsSubsystem = "undo"
)

// Metrics tracks undo history activity. A nil *Metrics records nothing.
type Metrics struct {
	// Pushed counts deltas appended to the history
	Pushed prometheus.Counter
	// Evicted counts deltas dropped from the front to respect the byte budget
	Evicted prometheus.Counter
	// Operations counts undo and redo calls by op (undo, redo) and status (success, error)
	Operations *prometheus.CounterVec
	// Bytes is the encoded size of the retained history
	Bytes prometheus.Gauge
	// Depth is the number of retained deltas
	Depth prometheus.Gauge
}

// NewMetrics creates the undo metrics and registers them on reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Pushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "deltas_pushed_total",
			Help:      "Total number of deltas pushed onto the undo history",
		}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "deltas_evicted_total",
			Help:      "Total number of deltas evicted to stay within the byte budget",
		}),
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "operations_total",
			Help:      "Undo and redo operations by op and status",
		}, []string{"op", "status"}),
		Bytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "history_bytes",
			Help:      "Encoded bytes held by the undo history",
		}),
		Depth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "history_depth",
			Help:      "Number of deltas held by the undo history",
		}),
	}
}

func (m *Metrics) pushed() {
	if m != nil {
		m.Pushed.Inc()
	}
}

func (m *Metrics) evicted(n int) {
	if m != nil {
		m.Evicted.Add(float64(n))
	}
}

func (m *Metrics) operation(op string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Operations.WithLabelValues(op, status).Inc()
}

func (m *Metrics) size(bytes int64, depth int) {
	if m != nil {
		m.Bytes.Set(float64(bytes))
		m.Depth.Set(float64(depth))
	}
}
