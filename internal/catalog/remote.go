package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menezmethod/cartografia/internal/wms"
)

// Remote imports the layers published by another map server's GET /layers
// endpoint. Layer definitions are fetched once, at registration.
type Remote struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewRemote creates a Remote source for the server at baseURL.
func NewRemote(name, baseURL string, timeout time.Duration) *Remote {
	return &Remote{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the source identifier.
func (r *Remote) Name() string { return r.name }

// Health checks whether the remote server reports itself alive.
func (r *Remote) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s health check: %w", r.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s health check: status %d", r.name, resp.StatusCode)
	}
	return nil
}

type remoteLayer struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	BBox       wms.BBox `json:"bbox"`
	Color      string   `json:"color"`
	Opacity    float64  `json:"opacity"`
	Restricted bool     `json:"restricted"`
}

// Layers fetches the remote layer list.
func (r *Remote) Layers(ctx context.Context) ([]*wms.Layer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/layers", nil)
	if err != nil {
		return nil, fmt.Errorf("create layers request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s list layers: %w", r.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s list layers: status %d: %s", r.name, resp.StatusCode, string(body))
	}

	var result struct {
		Data []remoteLayer `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode layers response: %w", err)
	}

	layers := make([]*wms.Layer, 0, len(result.Data))
	for _, rl := range result.Data {
		if rl.Name == "" {
			return nil, fmt.Errorf("%s list layers: layer without name", r.name)
		}
		if !rl.BBox.Valid() {
			return nil, fmt.Errorf("%s list layers: layer %s: %w", r.name, rl.Name, wms.ErrInvalidBBox)
		}
		col, err := wms.ParseColor(rl.Color)
		if err != nil {
			return nil, fmt.Errorf("%s list layers: layer %s: %w", r.name, rl.Name, err)
		}
		opacity := rl.Opacity
		if opacity <= 0 || opacity > 1 {
			opacity = 1
		}
		layers = append(layers, &wms.Layer{
			Name:       rl.Name,
			Title:      rl.Title,
			BBox:       rl.BBox,
			Color:      col,
			Opacity:    opacity,
			Restricted: rl.Restricted,
		})
	}
	return layers, nil
}
