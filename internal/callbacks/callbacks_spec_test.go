package callbacks

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/menezmethod/cartografia/internal/auth"
	"github.com/menezmethod/cartografia/internal/config"
	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/wms"
)

var _ = Describe("Build", func() {
	It("registers callbacks in configuration order", func() {
		chain, err := Build([]config.Callback{
			{Type: config.CallbackMetrics},
			{Type: config.CallbackMaxLayers, MaxLayers: 2, Name: "cap"},
			{Type: config.CallbackAttribution, Text: "© OSM"},
		}, Deps{})
		Expect(err).NotTo(HaveOccurred())
		Expect(chain.Names()).To(Equal([]string{"metrics", "cap", "attribution"}))
	})

	It("rejects an invalid filter expression", func() {
		_, err := Build([]config.Callback{{Type: config.CallbackFilter, Expression: "layer.name =="}}, Deps{})
		Expect(err).To(MatchError(ContainSubstring("callbacks[0] (filter)")))
	})

	It("rejects unknown types", func() {
		_, err := Build([]config.Callback{{Type: "teleport"}}, Deps{})
		Expect(err).To(MatchError(ContainSubstring("unknown callback type")))
	})

	It("requires a key store for access", func() {
		_, err := Build([]config.Callback{{Type: config.CallbackAccess}}, Deps{})
		Expect(err).To(HaveOccurred())
	})

	It("requires a logger for logging", func() {
		_, err := Build([]config.Callback{{Type: config.CallbackLogging}}, Deps{})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Logging", func() {
	It("writes one line per stage and warns on failure", func() {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		cb := NewLogging(logger)
		ctx := context.Background()

		req := newRequest("roads")
		out, err := cb.InitRequest(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeIdenticalTo(req))
		Expect(cb.Failed(ctx, lifecycle.NewFailure(lifecycle.StageBeforeRender, errors.New("no memory")))).To(Succeed())

		Expect(buf.String()).To(ContainSubstring(`"stage":"init_request"`))
		Expect(buf.String()).To(ContainSubstring(`"level":"WARN"`))
		Expect(buf.String()).To(ContainSubstring(`"kind":"upstream"`))
		Expect(buf.String()).To(ContainSubstring("no memory"))
	})
})

var _ = Describe("Metrics", func() {
	It("counts stage calls and failures", func() {
		cb := NewMetrics()
		ctx := context.Background()
		before := counterValue(stageCalls.WithLabelValues("before_layer"))
		failedBefore := counterValue(failures.WithLabelValues("callback", "finished"))

		d, err := cb.BeforeLayer(ctx, newContent(newRequest("roads")), newLayer("roads"))
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Excluded()).To(BeFalse())

		f := lifecycle.NewFailure(0, &lifecycle.CallbackError{Stage: lifecycle.StageFinished, Name: "x", Err: errors.New("boom")})
		Expect(cb.Failed(ctx, f)).To(Succeed())

		Expect(counterValue(stageCalls.WithLabelValues("before_layer"))).To(Equal(before + 1))
		Expect(counterValue(failures.WithLabelValues("callback", "finished"))).To(Equal(failedBefore + 1))
	})
})

var _ = Describe("Tracing", func() {
	It("adds stage events to the span in the context", func() {
		sr := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
		ctx, span := tp.Tracer("test").Start(context.Background(), "getmap")

		cb := NewTracing()
		_, err := cb.InitRequest(ctx, newRequest("roads"))
		Expect(err).NotTo(HaveOccurred())
		_, err = cb.BeforeLayer(ctx, newContent(newRequest("roads")), newLayer("roads"))
		Expect(err).NotTo(HaveOccurred())
		span.End()

		ended := sr.Ended()
		Expect(ended).To(HaveLen(1))
		var names []string
		for _, e := range ended[0].Events() {
			names = append(names, e.Name)
		}
		Expect(names).To(Equal([]string{"lifecycle.init_request", "lifecycle.before_layer"}))
	})

	It("does nothing without a span", func() {
		_, err := NewTracing().Finished(context.Background(), wms.NewWebMap(wms.FormatPNG, nil, 1))
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Defaults", func() {
	It("fills missing values on a copy", func() {
		cb, err := NewDefaults(wms.FormatGIF, "0x112233", "outline")
		Expect(err).NotTo(HaveOccurred())

		req := newRequest("roads", "rivers")
		req.Format = ""
		req.Styles = []string{"", "dashed"}

		out, err := cb.InitRequest(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).NotTo(BeIdenticalTo(req))
		Expect(out.Format).To(Equal(wms.FormatGIF))
		Expect(out.BGColor).To(Equal(color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff}))
		Expect(out.Styles).To(Equal([]string{"outline", "dashed"}))

		Expect(req.Format).To(BeEmpty())
		Expect(req.Styles).To(Equal([]string{"", "dashed"}))
	})

	It("keeps values the client supplied", func() {
		cb, err := NewDefaults(wms.FormatGIF, "0x112233", "")
		Expect(err).NotTo(HaveOccurred())

		req := newRequest("roads")
		req.BGColor = color.RGBA{B: 0xff, A: 0xff}
		out, err := cb.InitRequest(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Format).To(Equal(wms.FormatPNG))
		Expect(out.BGColor).To(Equal(req.BGColor))
		Expect(out.Styles).To(BeEmpty())
	})

	It("rejects a bad color", func() {
		_, err := NewDefaults("", "purple", "")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Access", func() {
	var (
		cb      *Access
		content *wms.MapContent
		secret  *wms.Layer
	)

	BeforeEach(func() {
		GinkgoT().Setenv("CARTOGRAFIA_API_KEYS", "")
		path := filepath.Join(GinkgoT().TempDir(), "keys.txt")
		Expect(os.WriteFile(path, []byte("sk-all\nsk-partner: cadastre\n"), 0o600)).To(Succeed())
		ks, err := auth.NewKeyStore(path)
		Expect(err).NotTo(HaveOccurred())

		cb = NewAccess(ks)
		content = newContent(newRequest("cadastre"))
		secret = newLayer("cadastre")
		secret.Restricted = true
	})

	It("keeps public layers for anonymous callers", func() {
		d, err := cb.BeforeLayer(context.Background(), content, newLayer("roads"))
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Excluded()).To(BeFalse())
	})

	It("excludes restricted layers for anonymous callers", func() {
		d, err := cb.BeforeLayer(context.Background(), content, secret)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Excluded()).To(BeTrue())
		Expect(d.Reason()).To(ContainSubstring("api key"))
	})

	DescribeTable("restricted layers with a key",
		func(key, layer string, excluded bool) {
			l := newLayer(layer)
			l.Restricted = true
			ctx := auth.WithKey(context.Background(), key)
			d, err := cb.BeforeLayer(ctx, content, l)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Excluded()).To(Equal(excluded))
		},
		Entry("full key", "sk-all", "utilities", false),
		Entry("granted layer", "sk-partner", "cadastre", false),
		Entry("other layer", "sk-partner", "utilities", true),
		Entry("unknown key", "sk-nope", "cadastre", true),
	)
})

var _ = Describe("Filter", func() {
	It("keeps layers the expression accepts", func() {
		cb, err := NewFilter(`layer.name != "labels" && request.width >= 128`)
		Expect(err).NotTo(HaveOccurred())
		content := newContent(newRequest("roads", "labels"))

		d, err := cb.BeforeLayer(context.Background(), content, newLayer("roads"))
		Expect(err).NotTo(HaveOccurred())
		kept, ok := d.Layer()
		Expect(ok).To(BeTrue())
		Expect(kept.Name).To(Equal("roads"))

		d, err = cb.BeforeLayer(context.Background(), content, newLayer("labels"))
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Excluded()).To(BeTrue())
	})

	It("can look at the frame dimension and vendor parameters", func() {
		cb, err := NewFilter(`request.dimension.startsWith("2024") && request.vendor["MODE"] == "dark"`)
		Expect(err).NotTo(HaveOccurred())

		req := newRequest("roads")
		req.Times = []string{"2024-05"}
		req.Vendor = map[string]string{"MODE": "dark"}
		d, err := cb.BeforeLayer(context.Background(), newContent(req), newLayer("roads"))
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Excluded()).To(BeFalse())
	})

	It("fails when the expression is not boolean", func() {
		cb, err := NewFilter(`layer.name`)
		Expect(err).NotTo(HaveOccurred())
		_, err = cb.BeforeLayer(context.Background(), newContent(newRequest("roads")), newLayer("roads"))
		Expect(err).To(MatchError(ContainSubstring("want bool")))
	})

	It("rejects expressions that do not compile", func() {
		_, err := NewFilter(`layer.name ==`)
		Expect(err).To(MatchError(ContainSubstring("cel compile")))
	})
})

var _ = Describe("MaxLayers", func() {
	It("returns a trimmed copy when over the limit", func() {
		cb, err := NewMaxLayers(2)
		Expect(err).NotTo(HaveOccurred())
		content := newContent(newRequest(), "a", "b", "c")

		out, err := cb.BeforeRender(context.Background(), content)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).NotTo(BeIdenticalTo(content))
		Expect(out.Layers()).To(HaveLen(2))
		Expect(out.Layers()[1].Name).To(Equal("b"))
		Expect(content.Layers()).To(HaveLen(3))
	})

	It("returns the same content when within the limit", func() {
		cb, err := NewMaxLayers(5)
		Expect(err).NotTo(HaveOccurred())
		content := newContent(newRequest(), "a")
		out, err := cb.BeforeRender(context.Background(), content)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeIdenticalTo(content))
	})

	It("rejects a zero limit", func() {
		_, err := NewMaxLayers(0)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Attribution", func() {
	It("adds the header to the finished map", func() {
		m, err := NewAttribution("© OpenStreetMap").Finished(context.Background(), wms.NewWebMap(wms.FormatPNG, []byte{1}, 1))
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Header.Get(AttributionHeader)).To(Equal("© OpenStreetMap"))
	})

	It("copes with a map without headers", func() {
		m, err := NewAttribution("x").Finished(context.Background(), &wms.WebMap{Format: wms.FormatPNG})
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Header.Get(AttributionHeader)).To(Equal("x"))
	})
})
