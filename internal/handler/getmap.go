package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/menezmethod/cartografia/internal/apierror"
	"github.com/menezmethod/cartografia/internal/wms"
)

// MapService renders GetMap requests.
type MapService interface {
	Run(ctx context.Context, req *wms.GetMapRequest) (*wms.WebMap, error)
}

// Parameters interpreted by the handler. Anything else ends up in
// GetMapRequest.Vendor.
var knownParams = map[string]bool{
	"SERVICE": true, "VERSION": true, "REQUEST": true,
	"LAYERS": true, "STYLES": true, "CRS": true, "SRS": true,
	"BBOX": true, "WIDTH": true, "HEIGHT": true, "FORMAT": true,
	"TRANSPARENT": true, "BGCOLOR": true, "TIME": true,
	"EXCEPTIONS": true, "KEY": true,
}

// WMS handles OGC WMS key-value-pair requests. Only GetMap is supported.
//
//	GET /wms?SERVICE=WMS&REQUEST=GetMap&LAYERS=...&BBOX=...&WIDTH=...&HEIGHT=...&FORMAT=...
func WMS(svc MapService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := normalize(r.URL.Query())

		if s, ok := params["SERVICE"]; ok && !strings.EqualFold(s, "WMS") {
			apierror.Write(w, apierror.InvalidParameter("service", "SERVICE must be WMS."))
			return
		}
		op, ok := params["REQUEST"]
		if !ok || op == "" {
			apierror.Write(w, apierror.MissingParameter("request"))
			return
		}
		if !strings.EqualFold(op, "GetMap") {
			apierror.Write(w, apierror.OperationNotSupported(op))
			return
		}

		req, apiErr := parseGetMap(params)
		if apiErr != nil {
			apierror.Write(w, apiErr)
			return
		}

		m, err := svc.Run(r.Context(), req)
		if err != nil {
			writeRunError(w, r, err, logger)
			return
		}

		for k, vs := range m.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.Header().Set("Content-Type", m.ContentType())
		w.Header().Set("Content-Length", strconv.Itoa(len(m.Body)))
		if _, err := w.Write(m.Body); err != nil {
			logger.Debug("write map body", "err", err)
		}
	}
}

func writeRunError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		apierror.Write(w, apiErr)
		return
	}
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logger.Debug("client went away during getmap", "err", err)
		return
	}
	logger.Error("getmap failed", "err", err)
	apierror.Write(w, apierror.Internal("Map rendering failed."))
}

// normalize upper-cases parameter names and keeps the first value of each.
func normalize(q url.Values) map[string]string {
	params := make(map[string]string, len(q))
	for k, vs := range q {
		key := strings.ToUpper(k)
		if _, dup := params[key]; dup || len(vs) == 0 {
			continue
		}
		params[key] = vs[0]
	}
	return params
}

// parseGetMap converts GetMap parameters into a request. It reports
// syntax errors only; whether the request can be served is decided later.
func parseGetMap(params map[string]string) (*wms.GetMapRequest, *apierror.Error) {
	req := &wms.GetMapRequest{
		Layers: splitList(params["LAYERS"], false),
		Styles: splitList(params["STYLES"], true),
		Times:  splitList(params["TIME"], false),
		Format: strings.TrimSpace(params["FORMAT"]),
		CRS:    params["CRS"],
	}
	if req.CRS == "" {
		req.CRS = params["SRS"]
	}

	raw, ok := params["BBOX"]
	if !ok {
		return nil, apierror.MissingParameter("bbox")
	}
	bbox, err := wms.ParseBBox(raw)
	if err != nil {
		return nil, apierror.InvalidParameter("bbox", err.Error())
	}
	req.BBox = bbox

	if req.Width, ok = parseSize(params, "WIDTH"); !ok {
		return nil, sizeError(params, "width")
	}
	if req.Height, ok = parseSize(params, "HEIGHT"); !ok {
		return nil, sizeError(params, "height")
	}

	if v, ok := params["TRANSPARENT"]; ok && v != "" {
		switch strings.ToUpper(v) {
		case "TRUE":
			req.Transparent = true
		case "FALSE":
		default:
			return nil, apierror.InvalidParameter("transparent", "TRANSPARENT must be TRUE or FALSE.")
		}
	}

	if v, ok := params["BGCOLOR"]; ok && v != "" {
		c, err := wms.ParseColor(v)
		if err != nil {
			return nil, apierror.InvalidParameter("bgcolor", err.Error())
		}
		req.BGColor = c
	}

	for k, v := range params {
		if knownParams[k] {
			continue
		}
		if req.Vendor == nil {
			req.Vendor = make(map[string]string)
		}
		req.Vendor[k] = v
	}
	return req, nil
}

// splitList splits a comma separated parameter. With keepEmpty, empty
// entries are kept so that positions line up with LAYERS.
func splitList(v string, keepEmpty bool) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" && !keepEmpty {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseSize(params map[string]string, name string) (int, bool) {
	v, ok := params[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func sizeError(params map[string]string, locator string) *apierror.Error {
	if _, ok := params[strings.ToUpper(locator)]; !ok {
		return apierror.MissingParameter(locator)
	}
	return apierror.InvalidParameter(locator, strings.ToUpper(locator)+" must be an integer.")
}
