// Package lifecycle implements the callback chain that follows a GetMap
// request through its stages: request initialization, map content creation,
// per-layer inclusion, pre-render, completion and failure.
//
// A Chain is assembled once with a Builder and is read-only afterwards, so a
// single Chain may serve concurrent requests. Callbacks registered on it must
// themselves be safe for concurrent use across distinct requests; the chain
// does not enforce this.
package lifecycle

import (
	"context"

	"github.com/menezmethod/cartografia/internal/wms"
)

// Stage identifies one extension point of the GetMap lifecycle.
type Stage int

const (
	StageInitRequest Stage = iota + 1
	StageInitMapContent
	StageBeforeLayer
	StageBeforeRender
	StageFinished
	StageFailed
)

var stageNames = map[Stage]string{
	StageInitRequest:    "init_request",
	StageInitMapContent: "init_map_content",
	StageBeforeLayer:    "before_layer",
	StageBeforeRender:   "before_render",
	StageFinished:       "finished",
	StageFailed:         "failed",
}

// String returns the snake_case stage name used in logs and metric labels.
func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "unknown"
}

// Callback observes and manipulates the lifecycle of a GetMap request.
type Callback interface {
	// InitRequest marks the beginning of request processing. It returns the
	// request to continue with: the same one, a modified one, or a
	// replacement. It cannot drop the request.
	InitRequest(ctx context.Context, req *wms.GetMapRequest) (*wms.GetMapRequest, error)

	// InitMapContent is called when an empty MapContent has been created.
	// Multi-frame requests call it once per frame.
	InitMapContent(ctx context.Context, content *wms.MapContent) error

	// BeforeLayer is called before layer is added to content. Returning
	// Exclude keeps the layer out of the map.
	BeforeLayer(ctx context.Context, content *wms.MapContent, layer *wms.Layer) (LayerDecision, error)

	// BeforeRender returns the content to render for the current frame.
	BeforeRender(ctx context.Context, content *wms.MapContent) (*wms.MapContent, error)

	// Finished is called once rendering completed and may inspect, modify
	// or replace the result.
	Finished(ctx context.Context, m *wms.WebMap) (*wms.WebMap, error)

	// Failed is called if the request fails for any reason.
	Failed(ctx context.Context, f Failure) error
}

// Base implements Callback as a pass-through. Embed it to override only the
// stages a callback cares about.
type Base struct{}

func (Base) InitRequest(_ context.Context, req *wms.GetMapRequest) (*wms.GetMapRequest, error) {
	return req, nil
}

func (Base) InitMapContent(context.Context, *wms.MapContent) error { return nil }

func (Base) BeforeLayer(_ context.Context, _ *wms.MapContent, layer *wms.Layer) (LayerDecision, error) {
	return Keep(layer), nil
}

func (Base) BeforeRender(_ context.Context, content *wms.MapContent) (*wms.MapContent, error) {
	return content, nil
}

func (Base) Finished(_ context.Context, m *wms.WebMap) (*wms.WebMap, error) { return m, nil }

func (Base) Failed(context.Context, Failure) error { return nil }

// LayerDecision is the outcome of BeforeLayer: either continue with a layer
// or exclude it from the map.
type LayerDecision struct {
	layer    *wms.Layer
	excluded bool
	reason   string
	// by is the name of the callback that excluded the layer. Set by the chain.
	by string
}

// Keep continues with layer, which may differ from the one offered.
func Keep(layer *wms.Layer) LayerDecision {
	return LayerDecision{layer: layer}
}

// Exclude vetoes the offered layer.
func Exclude(reason string) LayerDecision {
	return LayerDecision{excluded: true, reason: reason}
}

// Layer returns the layer to add and true, or nil and false if it was excluded.
func (d LayerDecision) Layer() (*wms.Layer, bool) {
	if d.excluded {
		return nil, false
	}
	return d.layer, true
}

// Excluded reports whether the layer was vetoed.
func (d LayerDecision) Excluded() bool { return d.excluded }

// Reason returns the veto reason given by the excluding callback.
func (d LayerDecision) Reason() string { return d.reason }

// ExcludedBy returns the name of the callback that vetoed the layer.
func (d LayerDecision) ExcludedBy() string { return d.by }
