package copyup

import (
	"github.com/layerbd/layerbd/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// copyupsCreated tracks coordinators registered across all volumes
	copyupsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "layerbd",
		Subsystem: "copyup",
		Name:      "created_total",
		Help:      "Number of copy-up coordinators registered",
	})
)

func init() {
	debug.Registry().MustRegister(copyupsCreated)
}
