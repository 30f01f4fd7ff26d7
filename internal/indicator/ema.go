package indicator

import "marketchart/internal/model"

// EMAAcc calculates Exponential Moving Average.
// O(1) per update, no window storage needed. The first value is the simple
// mean of the first period inputs, or the input itself when they are all equal.
type EMAAcc struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
	first      float64
	flat       bool
}

// NewEMA creates a new EMA accumulator with the given period.
func NewEMA(period int) *EMAAcc {
	if period < 1 {
		period = 1
	}
	return &EMAAcc{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMAAcc) Name() string { return "EMA" }

func (e *EMAAcc) Update(v float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		if e.count == 1 {
			e.first, e.flat = v, true
		} else if v != e.first {
			e.flat = false
		}
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
			if e.flat {
				e.current = e.first
			}
		}
		return
	}

	e.current = (v-e.current)*e.multiplier + e.current
}

func (e *EMAAcc) Value() float64 { return e.current }
func (e *EMAAcc) Ready() bool    { return e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *EMAAcc) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
	e.first = 0
	e.flat = false
}

// EMA returns the exponential moving average of close, seeded with the mean of
// the first period closes: max(0, n-period+1) values.
func EMA(points []model.PricePoint, period int) []float64 {
	return EMAValues(model.Closes(points), period)
}

// EMAValues is EMA over an arbitrary float series. MACD uses it for the signal line.
func EMAValues(values []float64, period int) []float64 {
	if period <= 0 {
		return []float64{}
	}
	return run(NewEMA(period), values, period)
}
