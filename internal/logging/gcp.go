// Package logging builds the service logger, with optional GCP Cloud Logging
// fields.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Cloud formats accepted by NewLogger.
const (
	CloudNone            = ""
	CloudGCP             = "gcp"
	CloudGCPWithResource = "gcp_with_resource"
)

// severityByLevel maps slog.Level to GCP Cloud Logging severity strings.
// https://cloud.google.com/logging/docs/structured-logging#special-payload-fields
var severityByLevel = map[slog.Level]string{
	slog.LevelDebug: "DEBUG",
	slog.LevelInfo:  "INFO",
	slog.LevelWarn:  "WARNING",
	slog.LevelError: "ERROR",
}

// GCPHandler wraps a slog.Handler and adds "severity" (and optionally
// "resource") so that JSON logs are natively parsed by GCP Cloud Logging.
type GCPHandler struct {
	inner   slog.Handler
	service string
}

// NewGCPHandler returns a handler that adds severity to every record. A
// non-empty service also adds a "resource" object of type generic_task
// labelled with it.
func NewGCPHandler(inner slog.Handler, service string) *GCPHandler {
	return &GCPHandler{inner: inner, service: service}
}

// Enabled reports whether the inner handler would log this level.
func (h *GCPHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds severity (and optionally resource) then forwards to the inner handler.
func (h *GCPHandler) Handle(ctx context.Context, r slog.Record) error {
	sev := severityByLevel[r.Level]
	if sev == "" {
		sev = "DEFAULT"
	}
	r.AddAttrs(slog.String("severity", sev))
	if h.service != "" {
		r.AddAttrs(slog.Any("resource", map[string]any{
			"type":   "generic_task",
			"labels": map[string]string{"service": h.service},
		}))
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new handler with the given attributes.
func (h *GCPHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &GCPHandler{inner: h.inner.WithAttrs(attrs), service: h.service}
}

// WithGroup returns a new handler for the given group.
func (h *GCPHandler) WithGroup(name string) slog.Handler {
	return &GCPHandler{inner: h.inner.WithGroup(name), service: h.service}
}

// ParseLevel maps a configured level name to a slog.Level. Unknown names
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a *slog.Logger writing JSON (or text) to w. cloud
// selects the GCP decoration: CloudNone, CloudGCP or CloudGCPWithResource,
// the latter labelling records with service.
func NewLogger(w io.Writer, level slog.Level, format, cloud, service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if format == "text" {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	switch cloud {
	case CloudGCP:
		base = NewGCPHandler(base, "")
	case CloudGCPWithResource:
		base = NewGCPHandler(base, service)
	}
	return slog.New(base)
}
