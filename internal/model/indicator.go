package model

import (
	"fmt"
	"strings"
)

// IndicatorType names a supported technical indicator.
type IndicatorType string

const (
	SMA       IndicatorType = "sma"
	EMA       IndicatorType = "ema"
	RSI       IndicatorType = "rsi"
	MACD      IndicatorType = "macd"
	Bollinger IndicatorType = "bollinger"
)

// MACD and Bollinger parameters that are not configurable from the UI.
const (
	MACDFast       = 12
	MACDSlow       = 26
	MACDSignal     = 9
	BollingerWidth = 2.0
)

// ParseIndicatorType converts a user-supplied name ("SMA", "bb", ...) to an IndicatorType.
func ParseIndicatorType(s string) (IndicatorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sma":
		return SMA, nil
	case "ema":
		return EMA, nil
	case "rsi":
		return RSI, nil
	case "macd":
		return MACD, nil
	case "bollinger", "bb", "bbands":
		return Bollinger, nil
	}
	return "", fmt.Errorf("unknown indicator type %q", s)
}

// DefaultPeriod returns the period used when a config leaves Period unset.
func (t IndicatorType) DefaultPeriod() int {
	switch t {
	case RSI:
		return 14
	case MACD:
		return MACDFast
	default:
		return 20
	}
}

// IndicatorConfig is one indicator overlay requested by the UI.
// A nil Visible means visible.
type IndicatorConfig struct {
	Type    IndicatorType `json:"type" yaml:"type"`
	Period  int           `json:"period,omitempty" yaml:"period,omitempty"`
	Color   string        `json:"color,omitempty" yaml:"color,omitempty"`
	Visible *bool         `json:"visible,omitempty" yaml:"visible,omitempty"`
}

// Resolve fills in the type-dependent default period. MACD always runs with
// the fixed 12/26/9 parameter set, so its period collapses to the fast period.
func (c IndicatorConfig) Resolve() IndicatorConfig {
	if t, err := ParseIndicatorType(string(c.Type)); err == nil {
		c.Type = t
	}
	if c.Type == MACD || c.Period <= 0 {
		c.Period = c.Type.DefaultPeriod()
	}
	return c
}

// IsVisible reports whether the overlay should be drawn. Unset means visible.
func (c IndicatorConfig) IsVisible() bool {
	return c.Visible == nil || *c.Visible
}

// Validate checks the type is known and the period is not negative.
func (c IndicatorConfig) Validate() error {
	if _, err := ParseIndicatorType(string(c.Type)); err != nil {
		return err
	}
	if c.Period < 0 {
		return fmt.Errorf("indicator %s: period must be positive, got %d", c.Type, c.Period)
	}
	return nil
}

// Warmup returns the number of bars the indicator consumes before its first output.
func (c IndicatorConfig) Warmup() int {
	r := c.Resolve()
	switch r.Type {
	case RSI:
		return r.Period + 1
	case MACD:
		return MACDSlow + MACDSignal
	default:
		return r.Period
	}
}
