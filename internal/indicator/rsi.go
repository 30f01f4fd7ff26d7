package indicator

import "marketchart/internal/model"

// RSIAcc calculates the Relative Strength Index using Wilder's smoothing method.
// The first value needs period+1 inputs (period price differences).
type RSIAcc struct {
	period    int
	count     int
	prevClose float64
	avgGain   *SMMA
	avgLoss   *SMMA
	current   float64
}

// NewRSI creates a new RSI accumulator with the given period (typically 14).
func NewRSI(period int) *RSIAcc {
	if period < 1 {
		period = 1
	}
	return &RSIAcc{
		period:  period,
		avgGain: NewSMMA(period),
		avgLoss: NewSMMA(period),
	}
}

func (r *RSIAcc) Name() string { return "RSI" }

func (r *RSIAcc) Update(v float64) {
	r.count++

	if r.count == 1 {
		// First value, no delta yet
		r.prevClose = v
		return
	}

	delta := v - r.prevClose
	r.prevClose = v

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.avgGain.Update(gain)
	r.avgLoss.Update(loss)

	if !r.avgLoss.Ready() {
		return
	}
	// No losses in the window is defined as 100, flat windows included.
	if r.avgLoss.Value() == 0 {
		r.current = 100.0
		return
	}
	rs := r.avgGain.Value() / r.avgLoss.Value()
	r.current = 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSIAcc) Value() float64 { return r.current }
func (r *RSIAcc) Ready() bool    { return r.count > r.period }

// Reset clears the RSI state for reuse.
func (r *RSIAcc) Reset() {
	r.count = 0
	r.prevClose = 0
	r.current = 0
	r.avgGain.Reset()
	r.avgLoss.Reset()
}

// RSI returns the Wilder RSI of close: max(0, n-period) values.
func RSI(points []model.PricePoint, period int) []float64 {
	if period <= 0 {
		return []float64{}
	}
	return run(NewRSI(period), model.Closes(points), period+1)
}
