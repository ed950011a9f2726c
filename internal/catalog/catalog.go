// Package catalog keeps the named layers a GetMap request may reference,
// grouped by the source that provides them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/menezmethod/cartografia/internal/wms"
)

var (
	// ErrLayerNotFound is returned when a requested layer doesn't exist.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrDuplicateLayer is returned when two sources publish the same layer name.
	ErrDuplicateLayer = errors.New("duplicate layer")
)

// Source publishes layers to the catalog.
type Source interface {
	// Layers returns the layers this source serves.
	Layers(ctx context.Context) ([]*wms.Layer, error)

	// Health checks whether the source can currently serve its layers.
	Health(ctx context.Context) error

	// Name returns the source's identifier.
	Name() string
}

type entry struct {
	layer  *wms.Layer
	source string
}

// Catalog indexes the layers of every registered source by name.
type Catalog struct {
	mu      sync.RWMutex
	sources []Source
	layers  map[string]entry
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{layers: make(map[string]entry)}
}

// Register loads the layers of s into the catalog. Nothing is added if any
// of its layer names is already taken or appears twice in s.
func (c *Catalog) Register(ctx context.Context, s Source) error {
	layers, err := s.Layers(ctx)
	if err != nil {
		return fmt.Errorf("load layers from %s: %w", s.Name(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(layers))
	for _, l := range layers {
		if seen[l.Name] {
			return fmt.Errorf("%w: %q listed twice by %s", ErrDuplicateLayer, l.Name, s.Name())
		}
		seen[l.Name] = true
		if prev, ok := c.layers[l.Name]; ok {
			return fmt.Errorf("%w: %q from %s already provided by %s", ErrDuplicateLayer, l.Name, s.Name(), prev.source)
		}
	}
	for _, l := range layers {
		c.layers[l.Name] = entry{layer: l, source: s.Name()}
	}
	c.sources = append(c.sources, s)
	return nil
}

// Get returns a copy of the named layer that the caller may modify.
func (c *Catalog) Get(name string) (*wms.Layer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.layers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, name)
	}
	return e.layer.Clone(), nil
}

// All returns copies of every layer, sorted by name.
func (c *Catalog) All() []*wms.Layer {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*wms.Layer, 0, len(c.layers))
	for _, e := range c.layers {
		result = append(result, e.layer.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Sources returns the registered sources in registration order.
func (c *Catalog) Sources() []Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Source(nil), c.sources...)
}
