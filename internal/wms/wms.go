// Package wms defines the values that flow through a GetMap request:
// the parsed request, the per-frame map content, the layers offered to it,
// and the finished web map.
package wms

import (
	"errors"
	"fmt"
	"image/color"
	"net/http"
	"strconv"
	"strings"
)

// Output formats understood by the built-in encoders.
const (
	FormatPNG         = "image/png"
	FormatGIF         = "image/gif"
	FormatAnimatedGIF = "image/gif;subtype=animated"
)

// DefaultBackground is used when a request leaves BGColor unset.
var DefaultBackground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// ErrInvalidBBox is returned when a bounding box cannot be parsed or is empty.
var ErrInvalidBBox = errors.New("invalid bbox")

// IsAnimated reports whether format produces one output frame per map frame.
func IsAnimated(format string) bool {
	return strings.EqualFold(strings.ReplaceAll(format, " ", ""), FormatAnimatedGIF)
}

// BBox is an axis-aligned extent in request CRS units.
type BBox struct {
	MinX float64 `json:"minx" yaml:"minx"`
	MinY float64 `json:"miny" yaml:"miny"`
	MaxX float64 `json:"maxx" yaml:"maxx"`
	MaxY float64 `json:"maxy" yaml:"maxy"`
}

// ParseBBox parses the "minx,miny,maxx,maxy" form used by the BBOX parameter.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("%w: expected 4 comma separated values, got %d", ErrInvalidBBox, len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("%w: %q is not a number", ErrInvalidBBox, p)
		}
		v[i] = f
	}
	b := BBox{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if !b.Valid() {
		return BBox{}, fmt.Errorf("%w: min must be less than max", ErrInvalidBBox)
	}
	return b, nil
}

// Valid reports whether the box has a positive area.
func (b BBox) Valid() bool {
	return b.MinX < b.MaxX && b.MinY < b.MaxY
}

// Width returns the horizontal extent.
func (b BBox) Width() float64 { return b.MaxX - b.MinX }

// Height returns the vertical extent.
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// Intersect returns the overlap of b and o, and false when they are disjoint.
func (b BBox) Intersect(o BBox) (BBox, bool) {
	r := BBox{
		MinX: max(b.MinX, o.MinX),
		MinY: max(b.MinY, o.MinY),
		MaxX: min(b.MaxX, o.MaxX),
		MaxY: min(b.MaxY, o.MaxY),
	}
	return r, r.Valid()
}

// String formats the box the way the BBOX parameter expects it.
func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// ParseColor accepts "0xRRGGBB", "#RRGGBB" or "RRGGBB". An optional leading
// alpha byte ("0xAARRGGBB") is honored.
func ParseColor(s string) (color.RGBA, error) {
	h := strings.TrimSpace(s)
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	h = strings.TrimPrefix(h, "#")
	if len(h) != 6 && len(h) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	c := color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
	if len(h) == 8 {
		c.A = uint8(v >> 24)
	}
	return c, nil
}

// FormatColor renders the RGB part of c as "#rrggbb".
func FormatColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// GetMapRequest is a parsed GetMap request.
type GetMapRequest struct {
	Layers      []string
	Styles      []string
	CRS         string
	BBox        BBox
	Width       int
	Height      int
	Format      string
	Transparent bool
	// BGColor is the background color. The zero value selects DefaultBackground.
	BGColor color.RGBA
	// Times holds the TIME dimension values. More than one value produces
	// one frame per value.
	Times []string
	// Vendor carries parameters the service does not interpret itself,
	// keyed by upper-case parameter name.
	Vendor map[string]string
}

// Clone returns a deep copy of r.
func (r *GetMapRequest) Clone() *GetMapRequest {
	c := *r
	c.Layers = append([]string(nil), r.Layers...)
	c.Styles = append([]string(nil), r.Styles...)
	c.Times = append([]string(nil), r.Times...)
	if r.Vendor != nil {
		c.Vendor = make(map[string]string, len(r.Vendor))
		for k, v := range r.Vendor {
			c.Vendor[k] = v
		}
	}
	return &c
}

// FrameCount returns how many frames the request produces.
func (r *GetMapRequest) FrameCount() int {
	if len(r.Times) == 0 {
		return 1
	}
	return len(r.Times)
}

// StyleFor returns the style requested for the i-th layer, or "" for the default.
func (r *GetMapRequest) StyleFor(i int) string {
	if i < len(r.Styles) {
		return r.Styles[i]
	}
	return ""
}

// Layer is one renderable unit of a map.
type Layer struct {
	Name       string
	Title      string
	Style      string
	BBox       BBox
	Color      color.RGBA
	Opacity    float64
	Restricted bool
}

// Clone returns a copy of l that can be mutated independently.
func (l *Layer) Clone() *Layer {
	c := *l
	return &c
}

// MapContent is the composite of layers and parameters rendered for one frame.
type MapContent struct {
	Request     *GetMapRequest
	Frame       int
	Dimension   string
	BBox        BBox
	Width       int
	Height      int
	Background  color.RGBA
	Transparent bool

	layers []*Layer
}

// NewMapContent returns an empty content for the given frame of req.
func NewMapContent(req *GetMapRequest, frame int) *MapContent {
	mc := &MapContent{
		Request:     req,
		Frame:       frame,
		BBox:        req.BBox,
		Width:       req.Width,
		Height:      req.Height,
		Background:  req.BGColor,
		Transparent: req.Transparent,
	}
	if mc.Background == (color.RGBA{}) {
		mc.Background = DefaultBackground
	}
	if frame < len(req.Times) {
		mc.Dimension = req.Times[frame]
	}
	return mc
}

// AddLayer appends l to the top of the layer stack.
func (c *MapContent) AddLayer(l *Layer) {
	c.layers = append(c.layers, l)
}

// Layers returns the layers in drawing order. The slice is a copy.
func (c *MapContent) Layers() []*Layer {
	return append([]*Layer(nil), c.layers...)
}

// SetLayers replaces the layer stack.
func (c *MapContent) SetLayers(layers []*Layer) {
	c.layers = append([]*Layer(nil), layers...)
}

// Clone returns a copy of c with its own layer slice. Layers are shared.
func (c *MapContent) Clone() *MapContent {
	cp := *c
	cp.layers = append([]*Layer(nil), c.layers...)
	return &cp
}

// WebMap is the finished, encoded output of a GetMap request.
type WebMap struct {
	Format string
	Body   []byte
	Frames int
	// Header is copied onto the HTTP response.
	Header http.Header
}

// NewWebMap returns a WebMap with an initialized header.
func NewWebMap(format string, body []byte, frames int) *WebMap {
	return &WebMap{
		Format: format,
		Body:   body,
		Frames: frames,
		Header: make(http.Header),
	}
}

// ContentType returns the MIME type to send with the body.
func (m *WebMap) ContentType() string {
	if IsAnimated(m.Format) {
		return FormatGIF
	}
	return m.Format
}
