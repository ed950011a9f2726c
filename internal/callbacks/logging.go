package callbacks

import (
	"context"
	"log/slog"

	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/middleware"
	"github.com/menezmethod/cartografia/internal/wms"
)

// Logging writes a debug line at every stage and a warning on failure.
type Logging struct {
	logger *slog.Logger
}

// NewLogging returns a Logging callback writing to logger.
func NewLogging(logger *slog.Logger) *Logging {
	return &Logging{logger: logger}
}

func (l *Logging) log(ctx context.Context, stage lifecycle.Stage, attrs ...any) {
	attrs = append(attrs, "stage", stage.String())
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	l.logger.DebugContext(ctx, "getmap lifecycle", attrs...)
}

func (l *Logging) InitRequest(ctx context.Context, req *wms.GetMapRequest) (*wms.GetMapRequest, error) {
	l.log(ctx, lifecycle.StageInitRequest,
		"layers", req.Layers,
		"bbox", req.BBox.String(),
		"size", [2]int{req.Width, req.Height},
		"format", req.Format,
	)
	return req, nil
}

func (l *Logging) InitMapContent(ctx context.Context, content *wms.MapContent) error {
	l.log(ctx, lifecycle.StageInitMapContent, "frame", content.Frame, "dimension", content.Dimension)
	return nil
}

func (l *Logging) BeforeLayer(ctx context.Context, content *wms.MapContent, layer *wms.Layer) (lifecycle.LayerDecision, error) {
	l.log(ctx, lifecycle.StageBeforeLayer, "frame", content.Frame, "layer", layer.Name, "style", layer.Style)
	return lifecycle.Keep(layer), nil
}

func (l *Logging) BeforeRender(ctx context.Context, content *wms.MapContent) (*wms.MapContent, error) {
	l.log(ctx, lifecycle.StageBeforeRender, "frame", content.Frame, "layers", len(content.Layers()))
	return content, nil
}

func (l *Logging) Finished(ctx context.Context, m *wms.WebMap) (*wms.WebMap, error) {
	l.log(ctx, lifecycle.StageFinished, "format", m.Format, "frames", m.Frames, "bytes", len(m.Body))
	return m, nil
}

func (l *Logging) Failed(ctx context.Context, f lifecycle.Failure) error {
	attrs := []any{
		"kind", f.Kind.String(),
		"stage", f.Stage.String(),
		"err", f.Err,
	}
	if f.Callback != "" {
		attrs = append(attrs, "callback", f.Callback)
	}
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	l.logger.WarnContext(ctx, "getmap request failed", attrs...)
	return nil
}
