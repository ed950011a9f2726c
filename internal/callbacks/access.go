package callbacks

import (
	"context"

	"github.com/menezmethod/cartografia/internal/auth"
	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/wms"
)

// Access excludes restricted layers the caller's API key does not unlock.
type Access struct {
	lifecycle.Base

	keys *auth.KeyStore
}

// NewAccess returns an Access callback backed by keys.
func NewAccess(keys *auth.KeyStore) *Access {
	return &Access{keys: keys}
}

func (a *Access) BeforeLayer(ctx context.Context, _ *wms.MapContent, layer *wms.Layer) (lifecycle.LayerDecision, error) {
	if !layer.Restricted {
		return lifecycle.Keep(layer), nil
	}
	key := auth.KeyFromContext(ctx)
	if key == "" {
		return lifecycle.Exclude("restricted layer requires an api key"), nil
	}
	if !a.keys.Allowed(key, layer.Name) {
		return lifecycle.Exclude("api key does not grant this layer"), nil
	}
	return lifecycle.Keep(layer), nil
}
