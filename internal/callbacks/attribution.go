package callbacks

import (
	"context"
	"net/http"

	"github.com/menezmethod/cartografia/internal/lifecycle"
	"github.com/menezmethod/cartografia/internal/wms"
)

// AttributionHeader carries the data attribution of a finished map.
const AttributionHeader = "X-Map-Attribution"

// Attribution adds an attribution header to every finished map.
type Attribution struct {
	lifecycle.Base

	text string
}

// NewAttribution returns an Attribution callback adding text.
func NewAttribution(text string) *Attribution {
	return &Attribution{text: text}
}

func (a *Attribution) Finished(_ context.Context, m *wms.WebMap) (*wms.WebMap, error) {
	if m.Header == nil {
		m.Header = make(http.Header)
	}
	m.Header.Add(AttributionHeader, a.text)
	return m, nil
}
