package catalog

import (
	"context"

	"github.com/menezmethod/cartografia/internal/wms"
)

// Static serves a fixed set of layers declared in configuration.
type Static struct {
	name   string
	layers []*wms.Layer
}

// NewStatic creates a source serving layers.
func NewStatic(name string, layers []*wms.Layer) *Static {
	return &Static{name: name, layers: layers}
}

// Name returns the source identifier.
func (s *Static) Name() string { return s.name }

// Health always succeeds; static layers live in memory.
func (s *Static) Health(context.Context) error { return nil }

// Layers returns copies of the configured layers.
func (s *Static) Layers(context.Context) ([]*wms.Layer, error) {
	out := make([]*wms.Layer, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.Clone()
	}
	return out, nil
}
