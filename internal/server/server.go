// Package server configures and runs the HTTP server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/menezmethod/cartografia/internal/auth"
	"github.com/menezmethod/cartografia/internal/catalog"
	"github.com/menezmethod/cartografia/internal/config"
	"github.com/menezmethod/cartografia/internal/handler"
	"github.com/menezmethod/cartografia/internal/middleware"
)

// sweepInterval is how often idle rate limiter clients are forgotten.
const sweepInterval = 5 * time.Minute

// New creates a configured *http.Server with all routes and middleware wired.
func New(cfg config.Config, cat *catalog.Catalog, svc handler.MapService, ks *auth.KeyStore, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	rl := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	observed := middleware.Stack{
		middleware.RequestID(),
		middleware.Recover(logger),
		middleware.Metrics(),
		middleware.Logging(logger),
	}
	guarded := observed.Append(
		middleware.Auth(ks),
		middleware.RateLimit(rl),
	)

	// Health, docs, and metrics: no auth or rate limiting.
	mux.HandleFunc("GET /health", handler.Health())
	mux.HandleFunc("GET /health/ready", handler.Ready(cat))
	mux.HandleFunc("GET /version", handler.VersionInfo())
	mux.HandleFunc("GET /openapi.yaml", handler.OpenAPI())
	mux.HandleFunc("GET /docs", handler.APIReference())
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /wms", guarded.Then(handler.WMS(svc, logger)))
	mux.Handle("GET /layers", guarded.Then(handler.Layers(cat, logger)))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	stop := make(chan struct{})
	srv.RegisterOnShutdown(func() { close(stop) })
	go rl.Run(sweepInterval, stop)

	return srv
}

// Shutdown gracefully shuts down the server with the given context.
func Shutdown(ctx context.Context, srv *http.Server, logger *slog.Logger) {
	logger.Info("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
}
