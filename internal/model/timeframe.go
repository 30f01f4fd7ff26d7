package model

import (
	"fmt"
	"time"
)

// Timeframe is the bar interval of the chart. It also selects the lookback
// window the price history is fetched for.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF1d  Timeframe = "1d"
)

// Timeframes lists the supported timeframes in ascending order.
var Timeframes = []Timeframe{TF1m, TF5m, TF15m, TF1h, TF1d}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	for _, tf := range Timeframes {
		if string(tf) == s {
			return tf, nil
		}
	}
	return "", fmt.Errorf("unsupported timeframe %q", s)
}

// Step returns the bar duration.
func (tf Timeframe) Step() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF1d:
		return 24 * time.Hour
	}
	return 0
}

// Lookback returns how much history is loaded for the timeframe.
func (tf Timeframe) Lookback() time.Duration {
	switch tf {
	case TF1m:
		return 12 * time.Hour
	case TF5m, TF15m:
		return 24 * time.Hour
	case TF1h:
		return 7 * 24 * time.Hour
	case TF1d:
		return 30 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// Window returns the [from, to] epoch-second range to fetch for a chart
// opened at now. to is aligned down to the bar boundary so repeated loads
// within one bar request the same range.
func (tf Timeframe) Window(now time.Time) (from, to int64) {
	step := int64(tf.Step() / time.Second)
	to = now.Unix()
	if step > 0 {
		to -= to % step
	}
	from = to - int64(tf.Lookback()/time.Second)
	return from, to
}
