package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/menezmethod/cartografia/internal/auth"
	"github.com/menezmethod/cartografia/internal/callbacks"
	"github.com/menezmethod/cartografia/internal/catalog"
	"github.com/menezmethod/cartografia/internal/config"
	"github.com/menezmethod/cartografia/internal/getmap"
	"github.com/menezmethod/cartografia/internal/logging"
	"github.com/menezmethod/cartografia/internal/observability"
	"github.com/menezmethod/cartografia/internal/render"
	"github.com/menezmethod/cartografia/internal/server"
	"github.com/menezmethod/cartografia/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional, env vars work without it)")
	flag.Parse()

	// Load configuration: defaults -> YAML file -> env vars.
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(os.Stdout, logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, cfg.Log.CloudFormat, cfg.Observability.OTelServiceName)
	logger.Info("starting cartografia", "version", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ks, err := auth.NewKeyStore(cfg.Auth.KeysFile)
	if err != nil {
		logger.Error("failed to load API keys", "err", err)
		os.Exit(1)
	}
	logger.Info("api keys loaded", "count", ks.Count())
	if cfg.Auth.Watch && ks.Path() != "" {
		go func() {
			if err := ks.Watch(ctx, logger); err != nil {
				logger.Error("api keys watcher stopped", "err", err)
			}
		}()
	}

	layers, err := cfg.WMSLayers()
	if err != nil {
		logger.Error("invalid layer configuration", "err", err)
		os.Exit(1)
	}
	cat := catalog.New()
	if err := cat.Register(ctx, catalog.NewStatic("config", layers)); err != nil {
		logger.Error("failed to register layers", "err", err)
		os.Exit(1)
	}
	logger.Info("layers registered", "source", "config", "count", len(layers))

	// Unreachable remote sources are skipped; /health/ready reports them.
	for _, src := range cfg.Sources {
		remote := catalog.NewRemote(src.Name, src.URL, src.RequestTimeout())
		if err := cat.Register(ctx, remote); err != nil {
			logger.Error("failed to register remote source", "source", src.Name, "url", src.URL, "err", err)
			continue
		}
		logger.Info("layers registered", "source", src.Name, "url", src.URL)
	}
	logger.Info("catalog ready", "layers", len(cat.All()))

	chain, err := callbacks.Build(cfg.Callbacks, callbacks.Deps{Logger: logger, KeyStore: ks})
	if err != nil {
		logger.Error("failed to build callback chain", "err", err)
		os.Exit(1)
	}
	logger.Info("callback chain built", "callbacks", chain.Names())

	svc := getmap.New(chain, cat, render.NewRaster(), getmap.Limits{
		MaxWidth:   cfg.Render.MaxWidth,
		MaxHeight:  cfg.Render.MaxHeight,
		MaxFrames:  cfg.Render.MaxFrames,
		FrameDelay: cfg.Render.FrameDelay,
	}, logger)

	srv := server.New(cfg, cat, svc, ks, logger)

	// Optional OpenTelemetry tracing: wrap handler so all requests are traced.
	var tp *observability.TracerProvider
	if cfg.Observability.OTelEnabled {
		tp, err = observability.NewTracerProvider(ctx, cfg.Observability.OTelEndpoint, cfg.Observability.OTelServiceName)
		if err != nil {
			logger.Error("otel tracer provider failed", "err", err)
			os.Exit(1)
		}
		srv.Handler = observability.HTTPHandler(srv.Handler, cfg.Observability.OTelServiceName)
		logger.Info("opentelemetry tracing enabled", "endpoint", cfg.Observability.OTelEndpoint)
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("otel shutdown error", "err", err)
	}
	server.Shutdown(shutdownCtx, srv, logger)
	logger.Info("server stopped")
}
