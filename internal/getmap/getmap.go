// Package getmap runs GetMap requests: it initializes the request, builds and
// renders one map content per frame, encodes the frames and hands the result
// back, calling the lifecycle chain at every extension point.
package getmap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/menezmethod/cartografia/internal/apierror"
	"github.com/menezmethod/cartografia/internal/catalog"
	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/render"
	"github.com/menezmethod/cartografia/internal/wms"
)

const tracerName = "github.com/menezmethod/cartografia/internal/getmap"

// Limits bounds the work a single request may ask for.
type Limits struct {
	MaxWidth  int
	MaxHeight int
	MaxFrames int
	// FrameDelay is the animated GIF delay in 1/100 s.
	FrameDelay int
}

// Service executes GetMap requests.
type Service struct {
	chain    *lifecycle.Chain
	catalog  *catalog.Catalog
	renderer render.Renderer
	limits   Limits
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a Service. The chain is shared by all requests.
func New(chain *lifecycle.Chain, cat *catalog.Catalog, renderer render.Renderer, limits Limits, logger *slog.Logger) *Service {
	return &Service{
		chain:    chain,
		catalog:  cat,
		renderer: renderer,
		limits:   limits,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Run processes req. On success the finished map is returned and no failure
// is reported. On any error the chain's Failed stage is notified exactly once
// and the error is returned, joined with any errors the failure callbacks
// themselves raised.
func (s *Service) Run(ctx context.Context, req *wms.GetMapRequest) (*wms.WebMap, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "getmap", trace.WithAttributes(
		attribute.StringSlice("wms.layers", req.Layers),
		attribute.Int("wms.width", req.Width),
		attribute.Int("wms.height", req.Height),
		attribute.String("wms.format", req.Format),
		attribute.Int("wms.frames", req.FrameCount()),
	))
	defer span.End()

	var stage lifecycle.Stage
	m, err := s.run(ctx, req, &stage)
	duration.Observe(time.Since(start).Seconds())
	if err == nil {
		requestsTotal.WithLabelValues("finished", "").Inc()
		return m, nil
	}

	failure := lifecycle.NewFailure(stage, err)
	requestsTotal.WithLabelValues("failed", failure.Kind.String()).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, failure.Kind.String()+" fault")
	s.logger.Warn("getmap failed",
		"kind", failure.Kind.String(),
		"stage", failure.Stage.String(),
		"callback", failure.Callback,
		"err", err,
	)

	if ferr := s.chain.Failed(ctx, failure); ferr != nil {
		s.logger.Error("failure callbacks returned errors", "err", ferr)
		err = errors.Join(err, ferr)
	}
	return nil, err
}

// run records in stage which lifecycle stage is executing so a failure can
// be attributed to it. Work between stages leaves stage at zero.
func (s *Service) run(ctx context.Context, req *wms.GetMapRequest, stage *lifecycle.Stage) (*wms.WebMap, error) {
	*stage = lifecycle.StageInitRequest
	req, err := s.chain.InitRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	*stage = 0

	layers, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	frames := make([]image.Image, 0, req.FrameCount())
	for i := 0; i < req.FrameCount(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := s.frame(ctx, req, i, layers, stage)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, img)
	}

	var buf bytes.Buffer
	if err := render.Encode(&buf, req.Format, frames, s.limits.FrameDelay); err != nil {
		return nil, err
	}
	m := wms.NewWebMap(req.Format, buf.Bytes(), len(frames))

	*stage = lifecycle.StageFinished
	m, err = s.chain.Finished(ctx, m)
	if err != nil {
		return nil, err
	}
	*stage = 0
	return m, nil
}

// frame builds, filters and renders the content of one frame.
func (s *Service) frame(ctx context.Context, req *wms.GetMapRequest, index int, layers []*wms.Layer, stage *lifecycle.Stage) (image.Image, error) {
	*stage = lifecycle.StageInitMapContent
	content := wms.NewMapContent(req, index)
	if err := s.chain.InitMapContent(ctx, content); err != nil {
		return nil, err
	}

	*stage = lifecycle.StageBeforeLayer
	for i, tmpl := range layers {
		if err := ctx.Err(); err != nil {
			*stage = 0
			return nil, err
		}
		layer := tmpl.Clone()
		if style := req.StyleFor(i); style != "" {
			layer.Style = style
		}
		d, err := s.chain.BeforeLayer(ctx, content, layer)
		if err != nil {
			return nil, err
		}
		kept, ok := d.Layer()
		if !ok {
			layersExcluded.WithLabelValues(d.ExcludedBy()).Inc()
			s.logger.Debug("layer excluded",
				"layer", layer.Name,
				"frame", index,
				"callback", d.ExcludedBy(),
				"reason", d.Reason(),
			)
			continue
		}
		content.AddLayer(kept)
	}

	*stage = lifecycle.StageBeforeRender
	content, err := s.chain.BeforeRender(ctx, content)
	if err != nil {
		return nil, err
	}
	*stage = 0

	img, err := s.renderer.Render(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	framesRendered.Inc()
	return img, nil
}

// validate checks the initialized request against the catalog and limits
// and returns the catalog layers it references, in request order.
func (s *Service) validate(req *wms.GetMapRequest) ([]*wms.Layer, error) {
	if len(req.Layers) == 0 {
		return nil, apierror.MissingParameter("layers")
	}
	if len(req.Styles) > 0 && len(req.Styles) != len(req.Layers) {
		return nil, apierror.InvalidParameter("styles",
			fmt.Sprintf("STYLES lists %d entries for %d layers.", len(req.Styles), len(req.Layers)))
	}
	if !req.BBox.Valid() {
		return nil, apierror.InvalidParameter("bbox", "BBOX must have min values lower than max values.")
	}
	if req.Width < 1 || req.Width > s.limits.MaxWidth {
		return nil, apierror.InvalidDimension("width", fmt.Sprintf("WIDTH must be between 1 and %d.", s.limits.MaxWidth))
	}
	if req.Height < 1 || req.Height > s.limits.MaxHeight {
		return nil, apierror.InvalidDimension("height", fmt.Sprintf("HEIGHT must be between 1 and %d.", s.limits.MaxHeight))
	}
	if req.Format == "" {
		return nil, apierror.MissingParameter("format")
	}
	if !render.Supported(req.Format) {
		return nil, apierror.InvalidFormat(req.Format)
	}
	if n := req.FrameCount(); n > s.limits.MaxFrames {
		return nil, apierror.InvalidDimension("time", fmt.Sprintf("TIME selects %d frames, at most %d are allowed.", n, s.limits.MaxFrames))
	}
	if req.FrameCount() > 1 && !wms.IsAnimated(req.Format) {
		return nil, apierror.InvalidDimension("time", "Multiple TIME values require FORMAT="+wms.FormatAnimatedGIF+".")
	}

	layers := make([]*wms.Layer, 0, len(req.Layers))
	for _, name := range req.Layers {
		l, err := s.catalog.Get(name)
		if errors.Is(err, catalog.ErrLayerNotFound) {
			return nil, apierror.LayerNotDefined(name)
		}
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil
}
