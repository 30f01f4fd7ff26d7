package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"marketchart/internal/chart"
	"marketchart/internal/model"
)

var errSurfaceReleased = errors.New("surface released")

// wsSurface is a chart.Surface drawn by the browser. Every call is
// forwarded as a SurfaceMsg; handles are assigned here so no call waits
// for the browser except ExportImage.
type wsSurface struct {
	id       string
	client   *Client
	next     chart.Handle
	released bool
}

// newSurface is the client's chart.SurfaceFactory.
func (c *Client) newSurface(_ context.Context, ticker string, tf model.Timeframe) (chart.Surface, error) {
	s := &wsSurface{id: uuid.NewString(), client: c}
	err := c.enqueue(SurfaceMsg{Type: msgSurfaceInit, Surface: s.id, Ticker: ticker, Timeframe: tf})
	if err != nil {
		return nil, fmt.Errorf("init surface: %w", err)
	}
	return s, nil
}

func (s *wsSurface) emit(m SurfaceMsg) error {
	if s.released {
		return errSurfaceReleased
	}
	m.Surface = s.id
	return s.client.enqueue(m)
}

func (s *wsSurface) CreateSeries(kind chart.SeriesKind, style chart.StyleHints) (chart.Handle, error) {
	s.next++
	h := s.next
	if err := s.emit(SurfaceMsg{Type: msgSeriesCreate, Handle: h, Kind: kind, Style: &style}); err != nil {
		return 0, err
	}
	return h, nil
}

func (s *wsSurface) SetSeriesData(h chart.Handle, data chart.SeriesData) error {
	return s.emit(SurfaceMsg{Type: msgSeriesData, Handle: h, Data: &data})
}

func (s *wsSurface) RemoveSeries(h chart.Handle) error {
	return s.emit(SurfaceMsg{Type: msgSeriesRemove, Handle: h})
}

func (s *wsSurface) SetMarkers(h chart.Handle, markers []model.EventMarker) error {
	return s.emit(SurfaceMsg{Type: msgMarkers, Handle: h, Markers: markers})
}

// ExportImage asks the browser to render the chart and waits for the
// export_result message.
func (s *wsSurface) ExportImage() ([]byte, error) {
	if s.released {
		return nil, errSurfaceReleased
	}
	return s.client.requestExport(s.id)
}

func (s *wsSurface) Release() error {
	if s.released {
		return nil
	}
	err := s.emit(SurfaceMsg{Type: msgSurfaceRelease})
	s.released = true
	return err
}
