// Package series maps indicator outputs and comparison tickers onto absolute
// bar times so they can be drawn against the primary price series.
package series

import (
	"errors"
	"fmt"

	"marketchart/internal/indicator"
	"marketchart/internal/model"
)

// ErrMisaligned is returned when an output is longer than the price sequence
// it was computed from.
var ErrMisaligned = errors.New("series: output longer than price sequence")

// offset returns n-m, the number of leading bars consumed by warm-up.
func offset(n, m int) (int, error) {
	if m > n {
		return 0, fmt.Errorf("%w: %d > %d", ErrMisaligned, m, n)
	}
	return n - m, nil
}

// Align assigns prices[n-m+i].Time to values[i]. The result always ends on
// the last price bar.
func Align(prices []model.PricePoint, values []float64) ([]model.TimeValue, error) {
	off, err := offset(len(prices), len(values))
	if err != nil {
		return nil, err
	}
	out := make([]model.TimeValue, len(values))
	for i, v := range values {
		out[i] = model.TimeValue{Time: prices[off+i].Time, Value: v}
	}
	return out, nil
}

// AlignBands is Align for Bollinger output.
func AlignBands(prices []model.PricePoint, bands []indicator.Band) ([]model.BandPoint, error) {
	off, err := offset(len(prices), len(bands))
	if err != nil {
		return nil, err
	}
	out := make([]model.BandPoint, len(bands))
	for i, b := range bands {
		out[i] = model.BandPoint{
			Time:   prices[off+i].Time,
			Upper:  b.Upper,
			Middle: b.Middle,
			Lower:  b.Lower,
		}
	}
	return out, nil
}

// AlignMACD aligns each MACD array on its own against the full price
// sequence. The arrays have different warm-ups, so aligning one against
// another would shift it.
func AlignMACD(prices []model.PricePoint, r indicator.MACDResult) (model.MACDSeries, error) {
	var (
		s   model.MACDSeries
		err error
	)
	if s.MACD, err = Align(prices, r.MACD); err != nil {
		return model.MACDSeries{}, fmt.Errorf("macd line: %w", err)
	}
	if s.Signal, err = Align(prices, r.Signal); err != nil {
		return model.MACDSeries{}, fmt.Errorf("macd signal: %w", err)
	}
	if s.Histogram, err = Align(prices, r.Histogram); err != nil {
		return model.MACDSeries{}, fmt.Errorf("macd histogram: %w", err)
	}
	return s, nil
}
