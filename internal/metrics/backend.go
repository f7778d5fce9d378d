package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backend, cluster and provisioning Prometheus metrics.
var (
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of search engine requests",
		},
		[]string{"driver", "op", "status"},
	)

	BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Search engine request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"driver", "op"},
	)

	ClusterConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_connections",
			Help:      "Number of cached cluster connections",
		},
	)

	ClusterConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_connects_total",
			Help:      "Cluster connection attempts",
		},
		[]string{"driver", "result"}, // "ok" / "error"
	)

	ProvisionItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_items_total",
			Help:      "Indexes and documents processed by provisioning",
		},
		[]string{"kind", "result"},
	)

	IDsAllocatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ids_allocated_total",
			Help:      "Document ids allocated by the generator",
		},
	)

	IDClockRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "id_clock_rollbacks_total",
			Help:      "Id allocations refused because the clock moved backwards",
		},
	)
)

var backendMetricsRegistered bool

// RegisterBackendMetrics registers the metrics above. Must be called once from main.
func RegisterBackendMetrics() {
	if backendMetricsRegistered {
		return
	}
	prometheus.MustRegister(BackendRequestsTotal)
	prometheus.MustRegister(BackendRequestDuration)
	prometheus.MustRegister(ClusterConnections)
	prometheus.MustRegister(ClusterConnectsTotal)
	prometheus.MustRegister(ProvisionItemsTotal)
	prometheus.MustRegister(IDsAllocatedTotal)
	prometheus.MustRegister(IDClockRollbacksTotal)
	backendMetricsRegistered = true
}
