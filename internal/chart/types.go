// Package chart composes price, volume, indicator, comparison and marker
// series onto a rendering surface.
//
// The work is split three ways. BuildPlan is a pure function from the
// current registry contents and the latest inputs to a Plan of series
// operations. The Compositor applies a Plan to its Surface and is the only
// writer of the Registry. A Session runs the fetch/recompute loop for one
// client and decides when a new Plan is built.
package chart

import (
	"context"
	"fmt"

	"marketchart/internal/model"
)

// SeriesKind selects how the surface draws a series.
type SeriesKind string

const (
	KindCandlestick SeriesKind = "candlestick"
	KindVolume      SeriesKind = "volume"
	KindLine        SeriesKind = "line"
	KindBand        SeriesKind = "band"
	KindMACD        SeriesKind = "macd"
)

// Pane names. Overlays share the price pane; oscillators get their own.
const (
	PanePrice   = "price"
	PaneVolume  = "volume"
	PaneRSI     = "rsi"
	PaneMACD    = "macd"
	PaneCompare = "compare"
)

// Handle identifies a series on one surface. Handles are only meaningful to
// the surface that issued them.
type Handle uint64

// StyleHints are display hints passed through to the surface on creation.
type StyleHints struct {
	Color string `json:"color,omitempty"`
	Pane  string `json:"pane"`
	Title string `json:"title"`
	// PriceFormat is "price" or "percent".
	PriceFormat string `json:"price_format"`
}

// SeriesData is the payload of one series. Which field is set depends on
// the series kind; a zero SeriesData clears the series.
type SeriesData struct {
	Candles []model.PricePoint `json:"candles,omitempty"`
	Line    []model.TimeValue  `json:"line,omitempty"`
	Bands   []model.BandPoint  `json:"bands,omitempty"`
	MACD    *model.MACDSeries  `json:"macd,omitempty"`
}

// Len returns the number of points (the MACD line length for MACD data).
func (d SeriesData) Len() int {
	switch {
	case d.Candles != nil:
		return len(d.Candles)
	case d.Bands != nil:
		return len(d.Bands)
	case d.MACD != nil:
		return len(d.MACD.MACD)
	default:
		return len(d.Line)
	}
}

// Empty reports whether there is nothing to draw.
func (d SeriesData) Empty() bool { return d.Len() == 0 }

// Surface is the rendering widget the compositor drives. Implementations
// need not be safe for concurrent use; the compositor calls them from one
// goroutine.
type Surface interface {
	CreateSeries(kind SeriesKind, style StyleHints) (Handle, error)
	SetSeriesData(h Handle, data SeriesData) error
	RemoveSeries(h Handle) error
	// SetMarkers replaces the whole marker list attached to series h.
	SetMarkers(h Handle, markers []model.EventMarker) error
	ExportImage() ([]byte, error)
	// Release frees the surface. It is not used again afterwards.
	Release() error
}

// SurfaceFactory builds a fresh surface for a ticker/timeframe pair.
type SurfaceFactory func(ctx context.Context, ticker string, tf model.Timeframe) (Surface, error)

// Reserved series types for the primary ticker and for comparisons.
const (
	typePrice      model.IndicatorType = "price"
	typeVolume     model.IndicatorType = "volume"
	typeComparison model.IndicatorType = "compare"
)

// SeriesKey is the registry identity of a series: (type, period) for
// indicators, the ticker for comparisons.
type SeriesKey struct {
	Type   model.IndicatorType `json:"type"`
	Period int                 `json:"period,omitempty"`
	Ticker string              `json:"ticker,omitempty"`
}

var (
	PriceKey  = SeriesKey{Type: typePrice}
	VolumeKey = SeriesKey{Type: typeVolume}
)

// IndicatorKey returns the identity of an indicator config after period
// defaults are applied.
func IndicatorKey(cfg model.IndicatorConfig) SeriesKey {
	r := cfg.Resolve()
	return SeriesKey{Type: r.Type, Period: r.Period}
}

// ComparisonKey returns the identity of a comparison overlay.
func ComparisonKey(ticker string) SeriesKey {
	return SeriesKey{Type: typeComparison, Ticker: ticker}
}

// IsComparison reports whether k names a comparison overlay.
func (k SeriesKey) IsComparison() bool { return k.Type == typeComparison }

func (k SeriesKey) String() string {
	switch {
	case k.Type == typeComparison:
		return "compare:" + k.Ticker
	case k.Period > 0:
		return fmt.Sprintf("%s:%d", k.Type, k.Period)
	default:
		return string(k.Type)
	}
}

// styleFor returns the kind and style of an indicator series.
func styleFor(cfg model.IndicatorConfig) (SeriesKind, StyleHints) {
	title := IndicatorKey(cfg).String()
	switch cfg.Type {
	case model.RSI:
		return KindLine, StyleHints{Color: cfg.Color, Pane: PaneRSI, Title: title, PriceFormat: "price"}
	case model.MACD:
		return KindMACD, StyleHints{Color: cfg.Color, Pane: PaneMACD, Title: title, PriceFormat: "price"}
	case model.Bollinger:
		return KindBand, StyleHints{Color: cfg.Color, Pane: PanePrice, Title: title, PriceFormat: "price"}
	default:
		return KindLine, StyleHints{Color: cfg.Color, Pane: PanePrice, Title: title, PriceFormat: "price"}
	}
}
