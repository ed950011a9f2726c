// Package config handles loading and validating application configuration.
//
// Configuration is loaded from a YAML file with environment variable overrides.
// Environment variables use the CARTOGRAFIA_ prefix (e.g., CARTOGRAFIA_PORT).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menezmethod/cartografia/internal/wms"
)

// Callback types understood by the callbacks package.
const (
	CallbackLogging     = "logging"
	CallbackMetrics     = "metrics"
	CallbackTracing     = "tracing"
	CallbackDefaults    = "defaults"
	CallbackAccess      = "access"
	CallbackFilter      = "filter"
	CallbackMaxLayers   = "max_layers"
	CallbackAttribution = "attribution"
)

// Config holds the complete application configuration.
type Config struct {
	Server        Server        `yaml:"server"`
	Auth          Auth          `yaml:"auth"`
	Layers        []Layer       `yaml:"layers"`
	Sources       []Source      `yaml:"sources"`
	Render        Render        `yaml:"render"`
	Callbacks     []Callback    `yaml:"callbacks"`
	RateLimit     RateLimit     `yaml:"ratelimit"`
	Log           Log           `yaml:"log"`
	Observability Observability `yaml:"observability"`
}

// Server configures the HTTP listener.
type Server struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Auth configures optional API keys. With no keys configured every caller
// is anonymous and restricted layers are never served.
type Auth struct {
	KeysFile string `yaml:"keys_file"`
	Watch    bool   `yaml:"watch"`
}

// Layer declares one layer served from configuration.
type Layer struct {
	Name  string    `yaml:"name"`
	Title string    `yaml:"title"`
	BBox  []float64 `yaml:"bbox"`
	Color string    `yaml:"color"`
	// Opacity in (0, 1]. Zero means fully opaque.
	Opacity    float64 `yaml:"opacity"`
	Restricted bool    `yaml:"restricted"`
}

// Source declares a remote map server whose published layers are imported
// into the catalog at startup.
type Source struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultSourceTimeout applies to sources that set no timeout.
const DefaultSourceTimeout = 10 * time.Second

// Render bounds the work a single GetMap request may ask for.
type Render struct {
	MaxWidth  int `yaml:"max_width"`
	MaxHeight int `yaml:"max_height"`
	MaxFrames int `yaml:"max_frames"`
	// FrameDelay is the animated GIF delay between frames in 1/100 s.
	FrameDelay int `yaml:"frame_delay"`
}

// Callback configures one lifecycle callback. Callbacks run in the order
// they are listed.
type Callback struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`

	// filter
	Expression string `yaml:"expression"`
	// max_layers
	MaxLayers int `yaml:"max_layers"`
	// attribution
	Text string `yaml:"text"`
	// defaults
	Format  string `yaml:"format"`
	BGColor string `yaml:"bgcolor"`
	Style   string `yaml:"style"`
}

// RateLimit configures the per-client token bucket rate limiter.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Log configures structured logging.
type Log struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	CloudFormat string `yaml:"cloud_format"`
}

// Observability configures optional OpenTelemetry tracing.
type Observability struct {
	OTelEnabled     bool   `yaml:"otel_enabled"`
	OTelEndpoint    string `yaml:"otel_endpoint"`
	OTelServiceName string `yaml:"otel_service_name"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Server: Server{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Layers: []Layer{
			{
				Name:  "world",
				Title: "World extent",
				BBox:  []float64{-180, -90, 180, 90},
				Color: "#a8d5e2",
			},
			{
				Name:    "tropics",
				Title:   "Tropics",
				BBox:    []float64{-180, -23.44, 180, 23.44},
				Color:   "#f9a620",
				Opacity: 0.6,
			},
		},
		Render: Render{
			MaxWidth:   4096,
			MaxHeight:  4096,
			MaxFrames:  32,
			FrameDelay: 50,
		},
		Callbacks: []Callback{
			{Type: CallbackLogging},
			{Type: CallbackMetrics},
			{Type: CallbackDefaults, Format: wms.FormatPNG},
		},
		RateLimit: RateLimit{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
		Observability: Observability{
			OTelEndpoint:    "http://localhost:4318",
			OTelServiceName: "cartografia",
		},
	}
}

// Load reads configuration from the given YAML file path, then applies
// environment variable overrides. If path is empty, only defaults and
// environment variables are used.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides reads CARTOGRAFIA_* environment variables and overrides
// the corresponding config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CARTOGRAFIA_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CARTOGRAFIA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CARTOGRAFIA_AUTH_KEYS_FILE"); v != "" {
		cfg.Auth.KeysFile = v
	}
	if v := os.Getenv("CARTOGRAFIA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CARTOGRAFIA_LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("CARTOGRAFIA_LOG_CLOUD_FORMAT"); v != "" {
		cfg.Log.CloudFormat = strings.ToLower(v)
	}
	if v := os.Getenv("CARTOGRAFIA_RATELIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("CARTOGRAFIA_RATELIMIT_BURST"); v != "" {
		if burst, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Burst = burst
		}
	}
	if v := os.Getenv("CARTOGRAFIA_RENDER_MAX_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.MaxFrames = n
		}
	}
	if v := os.Getenv("CARTOGRAFIA_OTEL_ENABLED"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.OTelEnabled = on
		}
	}
	if v := os.Getenv("CARTOGRAFIA_OTEL_ENDPOINT"); v != "" {
		cfg.Observability.OTelEndpoint = strings.TrimSpace(v)
	}
}

// validate checks that the configuration is internally consistent.
func validate(cfg Config) error {
	var errs []error

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if len(cfg.Layers) == 0 && len(cfg.Sources) == 0 {
		errs = append(errs, errors.New("at least one layer or source must be configured"))
	}
	seen := make(map[string]bool, len(cfg.Layers))
	for i, l := range cfg.Layers {
		if l.Name == "" {
			errs = append(errs, fmt.Errorf("layers[%d].name is required", i))
		} else if seen[l.Name] {
			errs = append(errs, fmt.Errorf("layers[%d].name %q is duplicated", i, l.Name))
		}
		seen[l.Name] = true
		if _, err := l.bbox(); err != nil {
			errs = append(errs, fmt.Errorf("layers[%d].bbox: %w", i, err))
		}
		if _, err := wms.ParseColor(l.Color); err != nil {
			errs = append(errs, fmt.Errorf("layers[%d].color: %w", i, err))
		}
		if l.Opacity < 0 || l.Opacity > 1 {
			errs = append(errs, fmt.Errorf("layers[%d].opacity must be between 0 and 1, got %g", i, l.Opacity))
		}
	}

	sources := make(map[string]bool, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d].name is required", i))
		} else if src.Name == "config" || sources[src.Name] {
			errs = append(errs, fmt.Errorf("sources[%d].name %q is duplicated or reserved", i, src.Name))
		}
		sources[src.Name] = true
		if !strings.HasPrefix(src.URL, "http://") && !strings.HasPrefix(src.URL, "https://") {
			errs = append(errs, fmt.Errorf("sources[%d].url must be an http or https URL, got %q", i, src.URL))
		}
		if src.Timeout < 0 {
			errs = append(errs, fmt.Errorf("sources[%d].timeout must not be negative", i))
		}
	}

	if cfg.Render.MaxWidth < 1 || cfg.Render.MaxHeight < 1 {
		errs = append(errs, errors.New("render.max_width and render.max_height must be positive"))
	}
	if cfg.Render.MaxFrames < 1 {
		errs = append(errs, errors.New("render.max_frames must be at least 1"))
	}
	if cfg.Render.FrameDelay < 0 {
		errs = append(errs, errors.New("render.frame_delay must not be negative"))
	}

	for i, cb := range cfg.Callbacks {
		errs = append(errs, validateCallback(i, cb)...)
	}

	if cfg.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("ratelimit.requests_per_second must be positive"))
	}
	if cfg.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("ratelimit.burst must be at least 1"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", cfg.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Log.Format] {
		errs = append(errs, fmt.Errorf("log.format must be json or text; got %q", cfg.Log.Format))
	}
	validCloud := map[string]bool{"": true, "gcp": true, "gcp_with_resource": true}
	if !validCloud[cfg.Log.CloudFormat] {
		errs = append(errs, fmt.Errorf("log.cloud_format must be empty, gcp or gcp_with_resource; got %q", cfg.Log.CloudFormat))
	}
	if cfg.Observability.OTelEnabled && strings.TrimSpace(cfg.Observability.OTelEndpoint) == "" {
		errs = append(errs, errors.New("observability.otel_endpoint is required when otel_enabled is true"))
	}

	return errors.Join(errs...)
}

func validateCallback(i int, cb Callback) []error {
	var errs []error
	switch cb.Type {
	case CallbackLogging, CallbackMetrics, CallbackTracing, CallbackAccess:
	case CallbackFilter:
		if strings.TrimSpace(cb.Expression) == "" {
			errs = append(errs, fmt.Errorf("callbacks[%d].expression is required for filter", i))
		}
	case CallbackMaxLayers:
		if cb.MaxLayers < 1 {
			errs = append(errs, fmt.Errorf("callbacks[%d].max_layers must be at least 1", i))
		}
	case CallbackAttribution:
		if cb.Text == "" {
			errs = append(errs, fmt.Errorf("callbacks[%d].text is required for attribution", i))
		}
	case CallbackDefaults:
		if cb.BGColor != "" {
			if _, err := wms.ParseColor(cb.BGColor); err != nil {
				errs = append(errs, fmt.Errorf("callbacks[%d].bgcolor: %w", i, err))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("callbacks[%d].type %q is unknown", i, cb.Type))
	}
	return errs
}

// RequestTimeout returns the configured timeout or DefaultSourceTimeout.
func (s Source) RequestTimeout() time.Duration {
	if s.Timeout == 0 {
		return DefaultSourceTimeout
	}
	return s.Timeout
}

// Addr returns the listen address as "host:port".
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (l Layer) bbox() (wms.BBox, error) {
	if len(l.BBox) != 4 {
		return wms.BBox{}, fmt.Errorf("%w: expected 4 values, got %d", wms.ErrInvalidBBox, len(l.BBox))
	}
	b := wms.BBox{MinX: l.BBox[0], MinY: l.BBox[1], MaxX: l.BBox[2], MaxY: l.BBox[3]}
	if !b.Valid() {
		return wms.BBox{}, fmt.Errorf("%w: min must be less than max", wms.ErrInvalidBBox)
	}
	return b, nil
}

// WMSLayers converts the configured layers for the catalog.
func (c Config) WMSLayers() ([]*wms.Layer, error) {
	out := make([]*wms.Layer, 0, len(c.Layers))
	for _, l := range c.Layers {
		b, err := l.bbox()
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", l.Name, err)
		}
		col, err := wms.ParseColor(l.Color)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", l.Name, err)
		}
		opacity := l.Opacity
		if opacity == 0 {
			opacity = 1
		}
		title := l.Title
		if title == "" {
			title = l.Name
		}
		out = append(out, &wms.Layer{
			Name:       l.Name,
			Title:      title,
			BBox:       b,
			Color:      col,
			Opacity:    opacity,
			Restricted: l.Restricted,
		})
	}
	return out, nil
}
