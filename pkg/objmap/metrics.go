package objmap

import (
	"github.com/layerbd/layerbd/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// updatesTotal tracks applied index updates by target state
	updatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "layerbd",
		Subsystem: "objmap",
		Name:      "updates_total",
		Help:      "Total number of existence index updates applied",
	}, []string{"state"})

	// updatesSkipped tracks updates resolved without a state change
	updatesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "layerbd",
		Subsystem: "objmap",
		Name:      "updates_skipped_total",
		Help:      "Number of index updates skipped because the state already matched or a concurrent updater won",
	})
)

func init() {
	debug.Registry().MustRegister(
		updatesTotal,
		updatesSkipped,
	)
}
