// Package indicator provides technical indicator calculations over price data.
//
// Each indicator exists in two forms. The streaming accumulators (SMAAcc, EMAAcc,
// SMMA, RSIAcc) take one value per Update and report Ready once their warm-up is
// consumed. The batch functions (SMAValues, EMA, RSI, MACD, Bollinger, ...)
// drive an accumulator over a whole sequence and return one output per bar
// after the warm-up, so an output is always shorter than its input by
// warmup-1 elements. Batch functions never mutate their input and return an
// empty slice, not an error, when the input is shorter than the warm-up.
package indicator

import "marketchart/internal/model"

// Accumulator is the interface for streaming indicator state.
type Accumulator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next value and recalculates.
	Update(v float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears the accumulator for reuse.
	Reset()
}

// Output is the result of computing one indicator config. Exactly one of
// Values, Bands or MACD is populated, depending on Type.
type Output struct {
	Type   model.IndicatorType
	Values []float64
	Bands  []Band
	MACD   MACDResult
}

// Len returns the number of output bars (the MACD line length for MACD).
func (o Output) Len() int {
	switch o.Type {
	case model.Bollinger:
		return len(o.Bands)
	case model.MACD:
		return len(o.MACD.MACD)
	default:
		return len(o.Values)
	}
}

// Compute dispatches a config to its batch function.
func Compute(points []model.PricePoint, cfg model.IndicatorConfig) Output {
	cfg = cfg.Resolve()
	out := Output{Type: cfg.Type}
	switch cfg.Type {
	case model.SMA:
		out.Values = SMA(points, cfg.Period)
	case model.EMA:
		out.Values = EMA(points, cfg.Period)
	case model.RSI:
		out.Values = RSI(points, cfg.Period)
	case model.MACD:
		out.MACD = MACD(points, model.MACDFast, model.MACDSlow, model.MACDSignal)
	case model.Bollinger:
		out.Bands = Bollinger(points, cfg.Period, model.BollingerWidth)
	}
	return out
}

// run drives acc over values and collects one output per ready step.
func run(acc Accumulator, values []float64, warmup int) []float64 {
	if warmup <= 0 || len(values) < warmup {
		return []float64{}
	}
	out := make([]float64, 0, len(values)-warmup+1)
	for _, v := range values {
		acc.Update(v)
		if acc.Ready() {
			out = append(out, acc.Value())
		}
	}
	return out
}
