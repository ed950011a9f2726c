package callbacks

import (
	"context"
	"fmt"

	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/wms"
)

// MaxLayers caps the number of layers drawn per frame, keeping the
// bottom-most ones.
type MaxLayers struct {
	lifecycle.Base

	limit int
}

// NewMaxLayers returns a MaxLayers callback keeping at most limit layers.
func NewMaxLayers(limit int) (*MaxLayers, error) {
	if limit < 1 {
		return nil, fmt.Errorf("max layers must be at least 1, got %d", limit)
	}
	return &MaxLayers{limit: limit}, nil
}

// BeforeRender replaces content with a trimmed copy when it holds too many
// layers. The original content is left untouched.
func (m *MaxLayers) BeforeRender(_ context.Context, content *wms.MapContent) (*wms.MapContent, error) {
	layers := content.Layers()
	if len(layers) <= m.limit {
		return content, nil
	}
	out := content.Clone()
	out.SetLayers(layers[:m.limit])
	return out, nil
}
