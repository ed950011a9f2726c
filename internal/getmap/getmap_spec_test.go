package getmap

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/menezmethod/cartografia/internal/apierror"
	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/wms"
)

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		renderer *captureRenderer
	)

	BeforeEach(func() {
		ctx = context.Background()
		renderer = &captureRenderer{}
	})

	newService := func(cbs ...lifecycle.Callback) *Service {
		b := lifecycle.NewBuilder()
		for _, cb := range cbs {
			b.Register("", cb)
		}
		return New(b.Build(), testCatalog(), renderer, testLimits(), discardLogger())
	}

	When("no callbacks are registered", func() {
		It("renders the requested layers", func() {
			m, err := newService().Run(ctx, validRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Format).To(Equal(wms.FormatPNG))
			Expect(m.Frames).To(Equal(1))
			Expect(m.Body).NotTo(BeEmpty())
			Expect(renderer.contents).To(HaveLen(1))
			Expect(renderer.contents[0].Layers()).To(HaveLen(2))
		})
	})

	When("the request is single-frame", func() {
		It("runs every stage once and finishes", func() {
			c := newCounter()
			_, err := newService(c).Run(ctx, validRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(c.count(lifecycle.StageInitRequest)).To(Equal(1))
			Expect(c.count(lifecycle.StageInitMapContent)).To(Equal(1))
			Expect(c.count(lifecycle.StageBeforeLayer)).To(Equal(2))
			Expect(c.count(lifecycle.StageBeforeRender)).To(Equal(1))
			Expect(c.count(lifecycle.StageFinished)).To(Equal(1))
			Expect(c.count(lifecycle.StageFailed)).To(BeZero())
		})
	})

	When("the request has several frames", func() {
		It("repeats stages 2-4 per frame and runs stages 1 and 5 once", func() {
			c := newCounter()
			req := validRequest()
			req.Format = wms.FormatAnimatedGIF
			req.Times = []string{"2024-01", "2024-02", "2024-03"}

			m, err := newService(c).Run(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Frames).To(Equal(3))
			Expect(m.ContentType()).To(Equal(wms.FormatGIF))

			Expect(c.count(lifecycle.StageInitRequest)).To(Equal(1))
			Expect(c.count(lifecycle.StageInitMapContent)).To(Equal(3))
			Expect(c.count(lifecycle.StageBeforeLayer)).To(Equal(6))
			Expect(c.count(lifecycle.StageBeforeRender)).To(Equal(3))
			Expect(c.count(lifecycle.StageFinished)).To(Equal(1))
			Expect(c.count(lifecycle.StageFailed)).To(BeZero())

			Expect(renderer.contents).To(HaveLen(3))
			Expect(renderer.contents[1].Frame).To(Equal(1))
			Expect(renderer.contents[1].Dimension).To(Equal("2024-02"))
		})
	})

	When("a callback vetoes a layer", func() {
		It("leaves the layer out of the rendered content", func() {
			veto := newCounter()
			veto.veto = "roads"
			after := newCounter()

			_, err := newService(veto, after).Run(ctx, validRequest())
			Expect(err).NotTo(HaveOccurred())
			Expect(after.count(lifecycle.StageBeforeLayer)).To(Equal(1))

			layers := renderer.contents[0].Layers()
			Expect(layers).To(HaveLen(1))
			Expect(layers[0].Name).To(Equal("rivers"))
		})
	})

	DescribeTable("a callback fails",
		func(stage lifecycle.Stage) {
			failing := newCounter()
			failing.failAt = stage
			first, last := newCounter(), newCounter()

			_, err := newService(first, failing, last).Run(ctx, validRequest())
			Expect(err).To(HaveOccurred())

			var cbErr *lifecycle.CallbackError
			Expect(errors.As(err, &cbErr)).To(BeTrue())
			Expect(cbErr.Stage).To(Equal(stage))

			for _, c := range []*counter{first, failing, last} {
				Expect(c.count(lifecycle.StageFailed)).To(Equal(1))
				Expect(c.failures[0].Kind).To(Equal(lifecycle.FaultCallback))
				Expect(c.failures[0].Stage).To(Equal(stage))
			}
			if stage != lifecycle.StageFinished {
				Expect(first.count(lifecycle.StageFinished)).To(BeZero())
			}
			Expect(last.count(stage)).To(BeZero())
		},
		Entry("at init_request", lifecycle.StageInitRequest),
		Entry("at init_map_content", lifecycle.StageInitMapContent),
		Entry("at before_layer", lifecycle.StageBeforeLayer),
		Entry("at before_render", lifecycle.StageBeforeRender),
		Entry("at finished", lifecycle.StageFinished),
	)

	When("rendering fails", func() {
		It("reports an upstream fault once and never finishes", func() {
			c := newCounter()
			renderer.err = errors.New("renderer out of memory")

			_, err := newService(c).Run(ctx, validRequest())
			Expect(err).To(MatchError(ContainSubstring("renderer out of memory")))
			Expect(c.count(lifecycle.StageFailed)).To(Equal(1))
			Expect(c.count(lifecycle.StageFinished)).To(BeZero())
			Expect(c.failures[0].Kind).To(Equal(lifecycle.FaultUpstream))
		})
	})

	When("a failure callback itself fails", func() {
		It("still notifies the rest and returns both errors", func() {
			bad := newCounter()
			bad.failAt = lifecycle.StageFailed
			good := newCounter()
			renderer.err = errors.New("disk full")

			_, err := newService(bad, good).Run(ctx, validRequest())
			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(err).To(MatchError(ContainSubstring("callback failed at failed")))
			Expect(good.count(lifecycle.StageFailed)).To(Equal(1))
		})
	})

	When("the context is cancelled", func() {
		It("fails with the context error", func() {
			c := newCounter()
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := newService(c).Run(cctx, validRequest())
			Expect(err).To(MatchError(context.Canceled))
			Expect(c.count(lifecycle.StageFailed)).To(Equal(1))
		})

		It("reports a cancellation between stages as an upstream fault outside any stage", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			c := newCounter()
			c.onContent = cancel

			_, err := newService(c).Run(cctx, validRequest())
			Expect(err).To(MatchError(context.Canceled))
			Expect(c.count(lifecycle.StageBeforeLayer)).To(BeZero())

			Expect(c.failures).To(HaveLen(1))
			Expect(c.failures[0].Kind).To(Equal(lifecycle.FaultUpstream))
			Expect(c.failures[0].Stage).To(BeZero())
		})
	})

	When("the request applies per-layer styles", func() {
		It("sets the style on each offered layer", func() {
			req := validRequest()
			req.Styles = []string{"", "dashed"}
			_, err := newService().Run(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			layers := renderer.contents[0].Layers()
			Expect(layers[0].Style).To(BeEmpty())
			Expect(layers[1].Style).To(Equal("dashed"))
		})
	})

	DescribeTable("invalid requests fail after init_request with a service exception",
		func(modify func(*wms.GetMapRequest), code string) {
			c := newCounter()
			req := validRequest()
			modify(req)

			_, err := newService(c).Run(ctx, req)
			var apiErr *apierror.Error
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Code).To(Equal(code))
			Expect(c.count(lifecycle.StageInitRequest)).To(Equal(1))
			Expect(c.count(lifecycle.StageInitMapContent)).To(BeZero())
			Expect(c.count(lifecycle.StageFailed)).To(Equal(1))
			Expect(c.failures[0].Kind).To(Equal(lifecycle.FaultUpstream))
		},
		Entry("no layers", func(r *wms.GetMapRequest) { r.Layers = nil }, apierror.CodeMissingParameter),
		Entry("unknown layer", func(r *wms.GetMapRequest) { r.Layers = []string{"nowhere"} }, apierror.CodeLayerNotDefined),
		Entry("style count mismatch", func(r *wms.GetMapRequest) { r.Styles = []string{"a"} }, apierror.CodeInvalidParameter),
		Entry("empty bbox", func(r *wms.GetMapRequest) { r.BBox = wms.BBox{} }, apierror.CodeInvalidParameter),
		Entry("too wide", func(r *wms.GetMapRequest) { r.Width = 10000 }, apierror.CodeInvalidDimensionValue),
		Entry("zero height", func(r *wms.GetMapRequest) { r.Height = 0 }, apierror.CodeInvalidDimensionValue),
		Entry("missing format", func(r *wms.GetMapRequest) { r.Format = "" }, apierror.CodeMissingParameter),
		Entry("unsupported format", func(r *wms.GetMapRequest) { r.Format = "image/tiff" }, apierror.CodeInvalidFormat),
		Entry("too many frames", func(r *wms.GetMapRequest) {
			r.Format = wms.FormatAnimatedGIF
			r.Times = []string{"1", "2", "3", "4", "5"}
		}, apierror.CodeInvalidDimensionValue),
		Entry("frames without animation", func(r *wms.GetMapRequest) { r.Times = []string{"1", "2"} }, apierror.CodeInvalidDimensionValue),
	)
})
