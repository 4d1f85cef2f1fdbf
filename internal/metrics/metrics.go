package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors for the wallet service, registered on the default registry.
var (
	// OperationsTotal counts completed engine operations by kind and outcome.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Name:      "operations_total",
		Help:      "Completed wallet operations by kind and status.",
	}, []string{"operation", "status"})

	// RetriesTotal counts attempts beyond the first caused by lock contention.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wallet",
		Name:      "operation_retries_total",
		Help:      "Extra attempts taken after transient lock conflicts.",
	}, []string{"operation"})

	// OperationDuration observes end-to-end engine operation latency,
	// retries included.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wallet",
		Name:      "operation_duration_seconds",
		Help:      "Wallet operation latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
