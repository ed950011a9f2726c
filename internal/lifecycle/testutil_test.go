package lifecycle

import (
	"context"
	"image/color"

	"github.com/menezmethod/cartografia/internal/wms"
)

// recorder appends "<name>:<stage>" to a shared log on every call and
// optionally fails, vetoes or transforms values.
type recorder struct {
	name string
	log  *[]string

	failAt   Stage
	panicAt  Stage
	veto     map[string]bool
	addLayer string
	failures *[]Failure
}

func (r *recorder) record(s Stage) {
	*r.log = append(*r.log, r.name+":"+s.String())
}

func (r *recorder) fault(s Stage) error {
	if r.panicAt == s {
		panic(r.name + " exploded")
	}
	if r.failAt == s {
		return errBoom
	}
	return nil
}

func (r *recorder) InitRequest(_ context.Context, req *wms.GetMapRequest) (*wms.GetMapRequest, error) {
	r.record(StageInitRequest)
	if err := r.fault(StageInitRequest); err != nil {
		return nil, err
	}
	out := req.Clone()
	out.Layers = append(out.Layers, r.name)
	return out, nil
}

func (r *recorder) InitMapContent(_ context.Context, _ *wms.MapContent) error {
	r.record(StageInitMapContent)
	return r.fault(StageInitMapContent)
}

func (r *recorder) BeforeLayer(_ context.Context, _ *wms.MapContent, layer *wms.Layer) (LayerDecision, error) {
	r.record(StageBeforeLayer)
	if err := r.fault(StageBeforeLayer); err != nil {
		return LayerDecision{}, err
	}
	if r.veto[layer.Name] {
		return Exclude("denied by " + r.name), nil
	}
	out := layer.Clone()
	out.Title += r.name
	return Keep(out), nil
}

func (r *recorder) BeforeRender(_ context.Context, content *wms.MapContent) (*wms.MapContent, error) {
	r.record(StageBeforeRender)
	if err := r.fault(StageBeforeRender); err != nil {
		return nil, err
	}
	if r.addLayer == "" {
		return content, nil
	}
	out := content.Clone()
	out.AddLayer(&wms.Layer{Name: r.addLayer})
	return out, nil
}

func (r *recorder) Finished(_ context.Context, m *wms.WebMap) (*wms.WebMap, error) {
	r.record(StageFinished)
	if err := r.fault(StageFinished); err != nil {
		return nil, err
	}
	m.Header.Add("X-Seen-By", r.name)
	return m, nil
}

func (r *recorder) Failed(_ context.Context, f Failure) error {
	r.record(StageFailed)
	if r.failures != nil {
		*r.failures = append(*r.failures, f)
	}
	return r.fault(StageFailed)
}

// tagger holds no mutable state, so one instance may serve many requests
// at once. It appends its tag to the request layers and layer titles.
type tagger struct {
	Base
	tag string
}

func (t tagger) InitRequest(_ context.Context, req *wms.GetMapRequest) (*wms.GetMapRequest, error) {
	out := req.Clone()
	out.Layers = append(out.Layers, t.tag)
	return out, nil
}

func (t tagger) BeforeLayer(_ context.Context, _ *wms.MapContent, layer *wms.Layer) (LayerDecision, error) {
	if layer.Name == "hidden" {
		return Exclude("hidden by " + t.tag), nil
	}
	out := layer.Clone()
	out.Title += "+" + t.tag
	return Keep(out), nil
}

type testError string

func (e testError) Error() string { return string(e) }

const errBoom = testError("boom")

func newRequest() *wms.GetMapRequest {
	return &wms.GetMapRequest{
		BBox:    wms.BBox{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90},
		Width:   256,
		Height:  128,
		Format:  wms.FormatPNG,
		BGColor: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	}
}
