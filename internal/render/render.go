// Package render rasterizes map content and encodes the resulting frames.
//
// The Raster renderer paints each layer's extent in its configured color.
// It stands in for a real styling engine and is enough to exercise the
// GetMap pipeline end to end.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/menezmethod/cartografia/internal/wms"
)

// ErrEmptyCanvas is returned when the content has no drawable area.
var ErrEmptyCanvas = errors.New("empty canvas")

// Renderer turns one frame of map content into an image.
type Renderer interface {
	Render(ctx context.Context, content *wms.MapContent) (image.Image, error)
}

// Raster is the built-in Renderer.
type Raster struct{}

// NewRaster returns a Raster renderer.
func NewRaster() *Raster {
	return &Raster{}
}

// Render fills the background and draws layers bottom to top.
func (r *Raster) Render(ctx context.Context, content *wms.MapContent) (image.Image, error) {
	if content.Width <= 0 || content.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyCanvas, content.Width, content.Height)
	}
	if !content.BBox.Valid() {
		return nil, fmt.Errorf("%w: bbox %s", ErrEmptyCanvas, content.BBox)
	}

	img := image.NewRGBA(image.Rect(0, 0, content.Width, content.Height))
	bg := content.Background
	if content.Transparent {
		bg = color.RGBA{}
	}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	for _, l := range content.Layers() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rect, ok := project(content, l.BBox)
		if !ok {
			continue
		}
		mask := &image.Uniform{C: color.Alpha{A: uint8(math.Round(clamp01(l.Opacity) * 0xff))}}
		draw.DrawMask(img, rect, &image.Uniform{C: l.Color}, image.Point{}, mask, image.Point{}, draw.Over)
	}
	return img, nil
}

// project maps the part of b inside the content extent to pixel space.
func project(content *wms.MapContent, b wms.BBox) (image.Rectangle, bool) {
	area, ok := b.Intersect(content.BBox)
	if !ok {
		return image.Rectangle{}, false
	}
	ext := content.BBox
	sx := float64(content.Width) / ext.Width()
	sy := float64(content.Height) / ext.Height()

	rect := image.Rect(
		int(math.Floor((area.MinX-ext.MinX)*sx)),
		int(math.Floor((ext.MaxY-area.MaxY)*sy)),
		int(math.Ceil((area.MaxX-ext.MinX)*sx)),
		int(math.Ceil((ext.MaxY-area.MinY)*sy)),
	)
	rect = rect.Intersect(image.Rect(0, 0, content.Width, content.Height))
	return rect, !rect.Empty()
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
