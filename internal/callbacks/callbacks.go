// Package callbacks provides the built-in lifecycle callbacks and assembles
// them into a chain from configuration.
package callbacks

import (
	"fmt"
	"log/slog"

	"github.com/menezmethod/cartografia/internal/auth"
	"github.com/menezmethod/cartografia/internal/config"
	"github.com/menezmethod/cartografia/internal/lifecycle"
)

// Deps holds what the built-in callbacks may need at construction time.
type Deps struct {
	Logger   *slog.Logger
	KeyStore *auth.KeyStore
}

// Build creates one callback per entry of cfgs, in order, and returns the
// resulting chain.
func Build(cfgs []config.Callback, deps Deps) (*lifecycle.Chain, error) {
	b := lifecycle.NewBuilder()
	for i, c := range cfgs {
		cb, err := New(c, deps)
		if err != nil {
			return nil, fmt.Errorf("callbacks[%d] (%s): %w", i, c.Type, err)
		}
		name := c.Name
		if name == "" {
			name = c.Type
		}
		b.Register(name, cb)
	}
	return b.Build(), nil
}

// New creates a single callback from its configuration.
func New(c config.Callback, deps Deps) (lifecycle.Callback, error) {
	switch c.Type {
	case config.CallbackLogging:
		if deps.Logger == nil {
			return nil, fmt.Errorf("logging callback requires a logger")
		}
		return NewLogging(deps.Logger), nil
	case config.CallbackMetrics:
		return NewMetrics(), nil
	case config.CallbackTracing:
		return NewTracing(), nil
	case config.CallbackDefaults:
		return NewDefaults(c.Format, c.BGColor, c.Style)
	case config.CallbackAccess:
		if deps.KeyStore == nil {
			return nil, fmt.Errorf("access callback requires a key store")
		}
		return NewAccess(deps.KeyStore), nil
	case config.CallbackFilter:
		return NewFilter(c.Expression)
	case config.CallbackMaxLayers:
		return NewMaxLayers(c.MaxLayers)
	case config.CallbackAttribution:
		return NewAttribution(c.Text), nil
	default:
		return nil, fmt.Errorf("unknown callback type %q", c.Type)
	}
}
