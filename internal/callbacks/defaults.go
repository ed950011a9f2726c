package callbacks

import (
	"context"
	"fmt"
	"image/color"

	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/wms"
)

// Defaults fills request parameters the client left out. It never
// overrides a value the client supplied.
type Defaults struct {
	lifecycle.Base

	format  string
	bgcolor color.RGBA
	style   string
}

// NewDefaults returns a Defaults callback. Empty arguments leave the
// corresponding parameter alone.
func NewDefaults(format, bgcolor, style string) (*Defaults, error) {
	d := &Defaults{format: format, style: style}
	if bgcolor != "" {
		c, err := wms.ParseColor(bgcolor)
		if err != nil {
			return nil, fmt.Errorf("bgcolor: %w", err)
		}
		d.bgcolor = c
	}
	return d, nil
}

// InitRequest returns a copy of req with the defaults applied.
func (d *Defaults) InitRequest(_ context.Context, req *wms.GetMapRequest) (*wms.GetMapRequest, error) {
	out := req.Clone()
	if out.Format == "" {
		out.Format = d.format
	}
	if out.BGColor == (color.RGBA{}) {
		out.BGColor = d.bgcolor
	}
	if d.style != "" {
		if len(out.Styles) == 0 {
			out.Styles = make([]string, len(out.Layers))
		}
		for i, s := range out.Styles {
			if s == "" {
				out.Styles[i] = d.style
			}
		}
	}
	return out, nil
}
