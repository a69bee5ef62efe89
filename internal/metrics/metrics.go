// Package metrics exposes per-operation counters and latency histograms
// for tagsfs's filesystem surface through prometheus/client_golang,
// following the shape of gcsfuse's internal/monitor and metrics packages
// (filtered from the retrieval pack for size; reconstructed here from the
// dependency alone, scoped down to what a local tag filesystem needs: no
// GCS-specific request/retry counters).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the set of collectors tagsfs registers with a
// prometheus.Registerer at startup. Observe updates OpsTotal, OpErrors and
// OpDuration; nothing sets InodesTotal, so it always reports 0.
type Registry struct {
	OpsTotal    *prometheus.CounterVec
	OpErrors    *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	InodesTotal prometheus.Gauge
}

// NewRegistry builds a Registry and registers its collectors with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagsfs",
			Name:      "fs_operations_total",
			Help:      "Count of filesystem operations handled, by operation name.",
		}, []string{"op"}),
		OpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagsfs",
			Name:      "fs_operation_errors_total",
			Help:      "Count of filesystem operations that returned an error, by operation name.",
		}, []string{"op"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tagsfs",
			Name:      "fs_operation_duration_seconds",
			Help:      "Latency of filesystem operations, by operation name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		InodesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tagsfs",
			Name:      "index_inodes_total",
			Help:      "Number of inodes currently known to the index.",
		}),
	}
	reg.MustRegister(r.OpsTotal, r.OpErrors, r.OpDuration, r.InodesTotal)
	return r
}

// Observe records the outcome of a single filesystem operation.
func (r *Registry) Observe(op string, seconds float64, err error) {
	if r == nil {
		return
	}
	r.OpsTotal.WithLabelValues(op).Inc()
	r.OpDuration.WithLabelValues(op).Observe(seconds)
	if err != nil {
		r.OpErrors.WithLabelValues(op).Inc()
	}
}
