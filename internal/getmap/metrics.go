package getmap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartografia",
		Subsystem: "getmap",
		Name:      "requests_total",
		Help:      "GetMap requests by outcome (finished, failed) and fault kind.",
	}, []string{"outcome", "fault"})

	framesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cartografia",
		Subsystem: "getmap",
		Name:      "frames_rendered_total",
		Help:      "Total map frames rendered.",
	})

	layersExcluded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartografia",
		Subsystem: "getmap",
		Name:      "layers_excluded_total",
		Help:      "Layers vetoed before rendering, by excluding callback.",
	}, []string{"callback"})

	duration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cartografia",
		Subsystem: "getmap",
		Name:      "duration_seconds",
		Help:      "GetMap processing latency in seconds, including encoding.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)
