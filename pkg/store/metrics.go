package store

import (
	"github.com/layerbd/layerbd/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BackendOps tracks executed backend operations by backend and kind
	BackendOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "layerbd",
		Subsystem: "store",
		Name:      "backend_operations_total",
		Help:      "Total number of backend operations executed",
	}, []string{"backend", "operation"}) // operation: "read", "write"

	// BackendErrors tracks backend operations that completed with an error
	BackendErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "layerbd",
		Subsystem: "store",
		Name:      "backend_errors_total",
		Help:      "Total number of backend operations completed with an error result",
	}, []string{"backend"})
)

func init() {
	debug.Registry().MustRegister(
		BackendOps,
		BackendErrors,
	)
}
