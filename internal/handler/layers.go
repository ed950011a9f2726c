package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/menezmethod/cartografia/internal/catalog"
	"github.com/menezmethod/cartografia/internal/render"
	"github.com/menezmethod/cartografia/internal/wms"
)

// LayerInfo describes one catalog layer.
type LayerInfo struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	BBox       wms.BBox `json:"bbox"`
	Color      string   `json:"color"`
	Opacity    float64  `json:"opacity"`
	Restricted bool     `json:"restricted"`
}

// LayersResponse is the body of GET /layers.
type LayersResponse struct {
	Object  string      `json:"object"`
	Data    []LayerInfo `json:"data"`
	Formats []string    `json:"formats"`
}

// Layers lists the layers a GetMap request may reference.
//
//	GET /layers
func Layers(cat *catalog.Catalog, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layers := cat.All()
		resp := LayersResponse{
			Object:  "list",
			Data:    make([]LayerInfo, 0, len(layers)),
			Formats: render.Formats(),
		}
		for _, l := range layers {
			resp.Data = append(resp.Data, LayerInfo{
				Name:       l.Name,
				Title:      l.Title,
				BBox:       l.BBox,
				Color:      wms.FormatColor(l.Color),
				Opacity:    l.Opacity,
				Restricted: l.Restricted,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to encode layers response", "err", err)
		}
	}
}
