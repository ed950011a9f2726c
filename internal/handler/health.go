// Package handler implements the HTTP handlers of the map service.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/menezmethod/cartografia/internal/catalog"
	"github.com/menezmethod/cartografia/internal/middleware"
	"github.com/menezmethod/cartografia/internal/version"
)

// Health handles liveness checks. It always returns 200 if the server is running.
// The response includes "version" so you can see which build is running.
//
//	GET /health
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": version.Version,
		})
	}
}

// SourceProbeTimeout bounds each source health check made by Ready.
const SourceProbeTimeout = 3 * time.Second

// SourceStatus is the readiness of one catalog source.
type SourceStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadyResponse is the body of GET /health/ready.
type ReadyResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Sources []SourceStatus `json:"sources"`
}

// Ready probes every catalog source concurrently and answers 503 if any of
// them is down. Each source's result is reported and exported as the
// source health gauge.
//
//	GET /health/ready
func Ready(cat *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources := cat.Sources()
		resp := ReadyResponse{
			Status:  "ready",
			Version: version.Version,
			Sources: make([]SourceStatus, len(sources)),
		}

		var wg sync.WaitGroup
		for i, s := range sources {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp.Sources[i] = probe(r.Context(), s)
			}()
		}
		wg.Wait()

		code := http.StatusOK
		for _, st := range resp.Sources {
			up := 1.0
			if st.Error != "" {
				up = 0
				resp.Status = "unavailable"
				code = http.StatusServiceUnavailable
			}
			middleware.SourceHealth.WithLabelValues(st.Name).Set(up)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func probe(ctx context.Context, s catalog.Source) SourceStatus {
	ctx, cancel := context.WithTimeout(ctx, SourceProbeTimeout)
	defer cancel()
	if err := s.Health(ctx); err != nil {
		return SourceStatus{Name: s.Name(), Status: "unavailable", Error: err.Error()}
	}
	return SourceStatus{Name: s.Name(), Status: "ok"}
}

// VersionInfo handles version info. Returns JSON with version and optional commit.
//
//	GET /version
func VersionInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		out := map[string]string{"version": version.Version}
		if version.Commit != "" {
			out["commit"] = version.Commit
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
