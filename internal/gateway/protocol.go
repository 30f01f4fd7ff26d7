package gateway

import (
	"marketchart/internal/chart"
	"marketchart/internal/model"
)

// Messages sent by the browser.
const (
	msgView         = "view"
	msgIndicators   = "indicators"
	msgComparisons  = "comparisons"
	msgExport       = "export"
	msgExportResult = "export_result"
	msgState        = "state"
	msgPing         = "ping"
)

// Messages sent to the browser. The surface_* and series_* messages drive
// the chart widget; the rest answer requests.
const (
	msgHello          = "hello"
	msgSurfaceInit    = "surface_init"
	msgSurfaceRelease = "surface_release"
	msgSeriesCreate   = "series_create"
	msgSeriesData     = "series_data"
	msgSeriesRemove   = "series_remove"
	msgMarkers        = "markers"
	msgExportRequest  = "export_request"
	msgNotice         = "notice"
	msgImage          = "image"
	msgAck            = "ack"
	msgError          = "error"
	msgPong           = "pong"
)

// InMsg is a browser message. Only the fields of its Type are set.
type InMsg struct {
	Type        string                  `json:"type"`
	ReqID       string                  `json:"req_id,omitempty"`
	Ticker      string                  `json:"ticker,omitempty"`
	Timeframe   model.Timeframe         `json:"timeframe,omitempty"`
	Indicators  []model.IndicatorConfig `json:"indicators,omitempty"`
	Comparisons []string                `json:"comparisons,omitempty"`
	Image       []byte                  `json:"image,omitempty"` // base64 in JSON
	Error       string                  `json:"error,omitempty"`
	Ping        int64                   `json:"ping,omitempty"`
}

// SurfaceMsg is one drawing instruction for the chart widget.
type SurfaceMsg struct {
	Type      string              `json:"type"`
	Surface   string              `json:"surface"`
	Ticker    string              `json:"ticker,omitempty"`
	Timeframe model.Timeframe     `json:"timeframe,omitempty"`
	Handle    chart.Handle        `json:"handle,omitempty"`
	Kind      chart.SeriesKind    `json:"kind,omitempty"`
	Style     *chart.StyleHints   `json:"style,omitempty"`
	Data      *chart.SeriesData   `json:"data,omitempty"`
	Markers   []model.EventMarker `json:"markers,omitempty"`
	ReqID     string              `json:"req_id,omitempty"`
}

// HelloMsg is the first message on a connection.
type HelloMsg struct {
	Type     string       `json:"type"`
	ClientID string       `json:"client_id"`
	Layout   model.Layout `json:"layout"`
	Restored bool         `json:"restored"`
}

// NoticeMsg forwards a session notice.
type NoticeMsg struct {
	Type   string       `json:"type"`
	Notice chart.Notice `json:"notice"`
	Error  string       `json:"error,omitempty"`
}

// ReplyMsg answers a browser request.
type ReplyMsg struct {
	Type   string       `json:"type"`
	ReqID  string       `json:"req_id,omitempty"`
	Error  string       `json:"error,omitempty"`
	Image  []byte       `json:"image,omitempty"`
	State  *chart.State `json:"state,omitempty"`
	Ping   int64        `json:"ping,omitempty"`
	Server int64        `json:"server_ts,omitempty"`
}
