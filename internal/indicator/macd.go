package indicator

import "marketchart/internal/model"

// MACDResult holds the three MACD arrays, each ending on the last input bar.
// MACD has n-slow+1 values; Signal and Histogram have n-slow-signal+2.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// Empty reports whether nothing can be drawn.
func (r MACDResult) Empty() bool { return len(r.MACD) == 0 }

// MACD computes EMA(fast)-EMA(slow) of close, the signal line as an EMA of the
// MACD line seeded by the mean of its first signal values, and the histogram
// MACD-signal. The composite is empty until slow+signal bars are available.
func MACD(points []model.PricePoint, fast, slow, signal int) MACDResult {
	if fast <= 0 || slow <= fast || signal <= 0 || len(points) < slow+signal {
		return MACDResult{}
	}
	closes := model.Closes(points)
	fastEMA := EMAValues(closes, fast)
	slowEMA := EMAValues(closes, slow)

	// fastEMA starts slow-fast bars earlier than slowEMA.
	offset := len(fastEMA) - len(slowEMA)
	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}

	sig := EMAValues(line, signal)
	offset = len(line) - len(sig)
	hist := make([]float64, len(sig))
	for i := range sig {
		hist[i] = line[i+offset] - sig[i]
	}

	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}
