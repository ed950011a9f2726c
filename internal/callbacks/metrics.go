package callbacks

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/wms"
)

var (
	stageCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartografia",
		Subsystem: "lifecycle",
		Name:      "stage_calls_total",
		Help:      "Lifecycle stage invocations observed by the metrics callback.",
	}, []string{"stage"})

	layersOffered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartografia",
		Subsystem: "lifecycle",
		Name:      "layers_offered_total",
		Help:      "Layers offered to the metrics callback by name.",
	}, []string{"layer"})

	mapBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cartografia",
		Subsystem: "lifecycle",
		Name:      "map_size_bytes",
		Help:      "Encoded size of finished maps.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
	})

	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cartografia",
		Subsystem: "lifecycle",
		Name:      "failures_total",
		Help:      "Failed GetMap requests by fault kind and stage.",
	}, []string{"kind", "stage"})
)

// Metrics counts lifecycle activity in Prometheus. It must sit after any
// callback that vetoes layers to see only the layers that reach the map.
type Metrics struct{}

// NewMetrics returns a Metrics callback.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (Metrics) InitRequest(_ context.Context, req *wms.GetMapRequest) (*wms.GetMapRequest, error) {
	stageCalls.WithLabelValues(lifecycle.StageInitRequest.String()).Inc()
	return req, nil
}

func (Metrics) InitMapContent(context.Context, *wms.MapContent) error {
	stageCalls.WithLabelValues(lifecycle.StageInitMapContent.String()).Inc()
	return nil
}

func (Metrics) BeforeLayer(_ context.Context, _ *wms.MapContent, layer *wms.Layer) (lifecycle.LayerDecision, error) {
	stageCalls.WithLabelValues(lifecycle.StageBeforeLayer.String()).Inc()
	layersOffered.WithLabelValues(layer.Name).Inc()
	return lifecycle.Keep(layer), nil
}

func (Metrics) BeforeRender(_ context.Context, content *wms.MapContent) (*wms.MapContent, error) {
	stageCalls.WithLabelValues(lifecycle.StageBeforeRender.String()).Inc()
	return content, nil
}

func (Metrics) Finished(_ context.Context, m *wms.WebMap) (*wms.WebMap, error) {
	stageCalls.WithLabelValues(lifecycle.StageFinished.String()).Inc()
	mapBytes.Observe(float64(len(m.Body)))
	return m, nil
}

func (Metrics) Failed(_ context.Context, f lifecycle.Failure) error {
	stageCalls.WithLabelValues(lifecycle.StageFailed.String()).Inc()
	failures.WithLabelValues(f.Kind.String(), f.Stage.String()).Inc()
	return nil
}
