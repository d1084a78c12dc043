package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors of an execution context. All
// collectors are registered with Registry, which callers can gather from
// or expose through promhttp.
type Metrics struct {
	Registry *prometheus.Registry

	Dispatches     *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	Compilations   *prometheus.CounterVec
	CompileSeconds *prometheus.HistogramVec
	Launches       *prometheus.CounterVec
}

// NewMetrics returns a fresh set of collectors with their own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accel_dispatch_total",
			Help: "Algorithm calls by execution path",
		}, []string{"algorithm", "path"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accel_kernel_cache_lookups_total",
			Help: "Kernel cache lookups by result (hit, miss)",
		}, []string{"algorithm", "result"}),
		Compilations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accel_kernel_compilations_total",
			Help: "Kernel compilations by status (ok, error)",
		}, []string{"algorithm", "status"}),
		CompileSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accel_kernel_compile_seconds",
			Help:    "Kernel compilation latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"algorithm"}),
		Launches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accel_kernel_launches_total",
			Help: "Kernel launches by kernel",
		}, []string{"kernel"}),
	}
}
