package callbacks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/wms"
)

// Tracing records each stage as an event on the span found in the context.
type Tracing struct{}

// NewTracing returns a Tracing callback.
func NewTracing() *Tracing {
	return &Tracing{}
}

func event(ctx context.Context, stage lifecycle.Stage, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent("lifecycle."+stage.String(), trace.WithAttributes(attrs...))
}

func (Tracing) InitRequest(ctx context.Context, req *wms.GetMapRequest) (*wms.GetMapRequest, error) {
	event(ctx, lifecycle.StageInitRequest, attribute.StringSlice("wms.layers", req.Layers))
	return req, nil
}

func (Tracing) InitMapContent(ctx context.Context, content *wms.MapContent) error {
	event(ctx, lifecycle.StageInitMapContent,
		attribute.Int("wms.frame", content.Frame),
		attribute.String("wms.dimension", content.Dimension),
	)
	return nil
}

func (Tracing) BeforeLayer(ctx context.Context, content *wms.MapContent, layer *wms.Layer) (lifecycle.LayerDecision, error) {
	event(ctx, lifecycle.StageBeforeLayer,
		attribute.Int("wms.frame", content.Frame),
		attribute.String("wms.layer", layer.Name),
	)
	return lifecycle.Keep(layer), nil
}

func (Tracing) BeforeRender(ctx context.Context, content *wms.MapContent) (*wms.MapContent, error) {
	event(ctx, lifecycle.StageBeforeRender,
		attribute.Int("wms.frame", content.Frame),
		attribute.Int("wms.layer_count", len(content.Layers())),
	)
	return content, nil
}

func (Tracing) Finished(ctx context.Context, m *wms.WebMap) (*wms.WebMap, error) {
	event(ctx, lifecycle.StageFinished,
		attribute.Int("wms.frames", m.Frames),
		attribute.Int("wms.bytes", len(m.Body)),
	)
	return m, nil
}

func (Tracing) Failed(ctx context.Context, f lifecycle.Failure) error {
	event(ctx, lifecycle.StageFailed,
		attribute.String("fault.kind", f.Kind.String()),
		attribute.String("fault.stage", f.Stage.String()),
		attribute.String("fault.callback", f.Callback),
	)
	return nil
}
