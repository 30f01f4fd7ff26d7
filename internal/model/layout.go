package model

// Layout is the part of a chart session a user expects back when they
// reconnect: the view and the overlay configuration.
type Layout struct {
	Ticker      string            `json:"ticker"`
	Timeframe   Timeframe         `json:"timeframe"`
	Indicators  []IndicatorConfig `json:"indicators"`
	Comparisons []string          `json:"comparisons"`
}
