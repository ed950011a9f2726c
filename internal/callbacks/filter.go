package callbacks

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/wms"
)

// Filter keeps a layer only when a CEL expression evaluates to true. The
// expression sees two variables:
//
//	layer:   name, title, style, opacity, restricted, bbox{minx,miny,maxx,maxy}
//	request: layers, crs, format, width, height, transparent, frame, dimension, vendor
//
// For example: `layer.name != "labels" || request.width >= 512`.
type Filter struct {
	lifecycle.Base

	expression string
	program    cel.Program
}

// NewFilter compiles expression.
func NewFilter(expression string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("layer", cel.DynType),
		cel.Variable("request", cel.DynType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return &Filter{expression: expression, program: prg}, nil
}

func (f *Filter) BeforeLayer(_ context.Context, content *wms.MapContent, layer *wms.Layer) (lifecycle.LayerDecision, error) {
	out, _, err := f.program.Eval(map[string]any{
		"layer":   layerVars(layer),
		"request": requestVars(content),
	})
	if err != nil {
		return lifecycle.LayerDecision{}, fmt.Errorf("cel eval: %w", err)
	}
	keep, ok := out.Value().(bool)
	if !ok {
		return lifecycle.LayerDecision{}, fmt.Errorf("filter %q returned %s, want bool", f.expression, out.Type().TypeName())
	}
	if !keep {
		return lifecycle.Exclude("filter " + f.expression), nil
	}
	return lifecycle.Keep(layer), nil
}

func layerVars(l *wms.Layer) map[string]any {
	return map[string]any{
		"name":       l.Name,
		"title":      l.Title,
		"style":      l.Style,
		"opacity":    l.Opacity,
		"restricted": l.Restricted,
		"bbox": map[string]any{
			"minx": l.BBox.MinX,
			"miny": l.BBox.MinY,
			"maxx": l.BBox.MaxX,
			"maxy": l.BBox.MaxY,
		},
	}
}

func requestVars(c *wms.MapContent) map[string]any {
	req := c.Request
	layers := make([]any, len(req.Layers))
	for i, l := range req.Layers {
		layers[i] = l
	}
	vendor := make(map[string]any, len(req.Vendor))
	for k, v := range req.Vendor {
		vendor[k] = v
	}
	return map[string]any{
		"layers":      layers,
		"crs":         req.CRS,
		"format":      req.Format,
		"width":       int64(c.Width),
		"height":      int64(c.Height),
		"transparent": c.Transparent,
		"frame":       int64(c.Frame),
		"dimension":   c.Dimension,
		"vendor":      vendor,
	}
}
