package segmentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts committed edits. A nil *Metrics records nothing.
type Metrics struct {
	// Commits counts edits that produced an undo step, by op
	Commits *prometheus.CounterVec
	// Relabeled counts voxels whose label changed
	Relabeled prometheus.Counter
}

// NewMetrics creates the editor metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "segedit",
			Subsystem: "segmentation",
			Name:      "commits_total",
			Help:      "Committed segmentation edits by operation",
		}, []string{"op"}),
		Relabeled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "segedit",
			Subsystem: "segmentation",
			Name:      "relabeled_voxels_total",
			Help:      "Voxels relabeled by committed edits",
		}),
	}
}

func (m *Metrics) committed(op string, voxels int) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(op).Inc()
	m.Relabeled.Add(float64(voxels))
}
