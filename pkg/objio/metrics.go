package objio

import (
	"github.com/layerbd/layerbd/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// readsTotal counts object read requests sent
	readsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "layerbd",
		Subsystem: "objio",
		Name:      "reads_total",
		Help:      "Total number of object read requests",
	})

	// writesTotal counts object write requests sent
	writesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "layerbd",
		Subsystem: "objio",
		Name:      "writes_total",
		Help:      "Total number of object write requests",
	})

	// parentReads counts fallback reads issued against parent volumes
	parentReads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "layerbd",
		Subsystem: "objio",
		Name:      "parent_reads_total",
		Help:      "Total number of fallback reads against parent volumes",
	})

	// parentDetachedStalls counts reads stalled by a mid-flight parent detach
	parentDetachedStalls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "layerbd",
		Subsystem: "objio",
		Name:      "parent_detached_stalls_total",
		Help:      "Reads left unfinished because the parent link vanished during fallback",
	})
)

func init() {
	debug.Registry().MustRegister(
		readsTotal,
		writesTotal,
		parentReads,
		parentDetachedStalls,
	)
}
