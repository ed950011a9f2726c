package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/menezmethod/cartografia/internal/wms"
)

type entry struct {
	name string
	cb   Callback
}

// Builder collects callbacks at startup. Registration order is dispatch order.
type Builder struct {
	entries []entry
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Register appends cb under name. A nil callback is ignored.
func (b *Builder) Register(name string, cb Callback) *Builder {
	if cb == nil {
		return b
	}
	if name == "" {
		name = fmt.Sprintf("callback-%d", len(b.entries))
	}
	b.entries = append(b.entries, entry{name: name, cb: cb})
	return b
}

// Build returns an immutable Chain holding the callbacks registered so far.
// Later registrations on b do not affect the returned Chain.
func (b *Builder) Build() *Chain {
	return &Chain{entries: append([]entry(nil), b.entries...)}
}

// Chain dispatches each lifecycle stage to its callbacks in registration
// order, feeding each callback's output to the next one.
type Chain struct {
	entries []entry
}

// Len returns the number of callbacks in the chain.
func (c *Chain) Len() int {
	return len(c.entries)
}

// Names returns the callback names in dispatch order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

// InitRequest threads req through every callback.
func (c *Chain) InitRequest(ctx context.Context, req *wms.GetMapRequest) (*wms.GetMapRequest, error) {
	current := req
	for i, e := range c.entries {
		next, err := invoke(StageInitRequest, i, e, func() (*wms.GetMapRequest, error) {
			return e.cb.InitRequest(ctx, current)
		})
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, &CallbackError{Stage: StageInitRequest, Index: i, Name: e.name, Err: ErrNilValue}
		}
		current = next
	}
	return current, nil
}

// InitMapContent lets every callback inspect the freshly created content.
func (c *Chain) InitMapContent(ctx context.Context, content *wms.MapContent) error {
	for i, e := range c.entries {
		_, err := invoke(StageInitMapContent, i, e, func() (struct{}, error) {
			return struct{}{}, e.cb.InitMapContent(ctx, content)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// BeforeLayer offers layer to every callback. The first Exclude stops
// dispatch; later callbacks never see the vetoed layer.
func (c *Chain) BeforeLayer(ctx context.Context, content *wms.MapContent, layer *wms.Layer) (LayerDecision, error) {
	current := layer
	for i, e := range c.entries {
		d, err := invoke(StageBeforeLayer, i, e, func() (LayerDecision, error) {
			return e.cb.BeforeLayer(ctx, content, current)
		})
		if err != nil {
			return LayerDecision{}, err
		}
		if d.excluded {
			d.by = e.name
			return d, nil
		}
		if d.layer == nil {
			return LayerDecision{}, &CallbackError{Stage: StageBeforeLayer, Index: i, Name: e.name, Err: ErrNilValue}
		}
		current = d.layer
	}
	return Keep(current), nil
}

// BeforeRender threads content through every callback.
func (c *Chain) BeforeRender(ctx context.Context, content *wms.MapContent) (*wms.MapContent, error) {
	current := content
	for i, e := range c.entries {
		next, err := invoke(StageBeforeRender, i, e, func() (*wms.MapContent, error) {
			return e.cb.BeforeRender(ctx, current)
		})
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, &CallbackError{Stage: StageBeforeRender, Index: i, Name: e.name, Err: ErrNilValue}
		}
		current = next
	}
	return current, nil
}

// Finished threads the rendered map through every callback.
func (c *Chain) Finished(ctx context.Context, m *wms.WebMap) (*wms.WebMap, error) {
	current := m
	for i, e := range c.entries {
		next, err := invoke(StageFinished, i, e, func() (*wms.WebMap, error) {
			return e.cb.Finished(ctx, current)
		})
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, &CallbackError{Stage: StageFinished, Index: i, Name: e.name, Err: ErrNilValue}
		}
		current = next
	}
	return current, nil
}

// Failed notifies every callback of f. A failing callback does not prevent
// the remaining ones from being notified; their errors are joined.
func (c *Chain) Failed(ctx context.Context, f Failure) error {
	var errs []error
	for i, e := range c.entries {
		_, err := invoke(StageFailed, i, e, func() (struct{}, error) {
			return struct{}{}, e.cb.Failed(ctx, f)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// invoke runs one callback stage, turning errors and panics into *CallbackError.
func invoke[T any](stage Stage, index int, e entry, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			err = &CallbackError{Stage: stage, Index: index, Name: e.name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = fn()
	if err != nil {
		return out, &CallbackError{Stage: stage, Index: index, Name: e.name, Err: err}
	}
	return out, nil
}
