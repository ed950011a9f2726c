package render

import (
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"io"
	"strings"

	"github.com/menezmethod/cartografia/internal/wms"
)

// ErrUnsupportedFormat is returned for output formats without an encoder.
var ErrUnsupportedFormat = errors.New("unsupported format")

// DefaultFrameDelay is the animated GIF delay between frames, in 1/100 s.
const DefaultFrameDelay = 50

// Formats lists the output formats Encode accepts.
func Formats() []string {
	return []string{wms.FormatPNG, wms.FormatGIF, wms.FormatAnimatedGIF}
}

// Supported reports whether format can be encoded.
func Supported(format string) bool {
	_, ok := normalize(format)
	return ok
}

// Encode writes frames to w in the given format. Only animated formats
// accept more than one frame. delay is the per-frame delay in 1/100 s;
// zero means DefaultFrameDelay.
func Encode(w io.Writer, format string, frames []image.Image, delay int) error {
	f, ok := normalize(format)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if len(frames) == 0 {
		return errors.New("no frames to encode")
	}
	if len(frames) > 1 && f != wms.FormatAnimatedGIF {
		return fmt.Errorf("%w: %s cannot hold %d frames", ErrUnsupportedFormat, format, len(frames))
	}

	switch f {
	case wms.FormatPNG:
		if err := png.Encode(w, frames[0]); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	case wms.FormatGIF:
		if err := gif.Encode(w, frames[0], nil); err != nil {
			return fmt.Errorf("encode gif: %w", err)
		}
	case wms.FormatAnimatedGIF:
		if delay <= 0 {
			delay = DefaultFrameDelay
		}
		anim := &gif.GIF{}
		for _, frame := range frames {
			anim.Image = append(anim.Image, toPaletted(frame))
			anim.Delay = append(anim.Delay, delay)
		}
		if err := gif.EncodeAll(w, anim); err != nil {
			return fmt.Errorf("encode animated gif: %w", err)
		}
	}
	return nil
}

func normalize(format string) (string, bool) {
	f := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(format), " ", ""))
	switch f {
	case wms.FormatPNG, wms.FormatGIF, wms.FormatAnimatedGIF:
		return f, true
	}
	return "", false
}

func toPaletted(img image.Image) *image.Paletted {
	if p, ok := img.(*image.Paletted); ok {
		return p
	}
	b := img.Bounds()
	p := image.NewPaletted(b, palette.Plan9)
	draw.FloydSteinberg.Draw(p, b, img, b.Min)
	return p
}
