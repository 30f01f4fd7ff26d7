package indicator

import (
	"math"

	"marketchart/internal/model"
)

// SMAAcc calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer so Update does not allocate. The
// window is re-summed oldest to newest on every update so the value is the
// exact mean of its window, with no running-sum drift.
type SMAAcc struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position (oldest value once full)
	count   int       // total values received
	flat    bool      // every value in the window is equal
	current float64
}

// NewSMA creates a new SMA accumulator with the given period.
func NewSMA(period int) *SMAAcc {
	if period < 1 {
		period = 1
	}
	return &SMAAcc{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMAAcc) Name() string { return "SMA" }

func (s *SMAAcc) Update(v float64) {
	s.buf[s.idx] = v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count < s.period {
		return
	}

	first := s.buf[s.idx]
	sum := 0.0
	s.flat = true
	for i := 0; i < s.period; i++ {
		x := s.buf[(s.idx+i)%s.period]
		sum += x
		if x != first {
			s.flat = false
		}
	}
	if s.flat {
		s.current = first
		return
	}
	s.current = sum / float64(s.period)
}

func (s *SMAAcc) Value() float64 { return s.current }
func (s *SMAAcc) Ready() bool    { return s.count >= s.period }

// StdDev returns the population standard deviation of the current window
// around the current mean. Returns 0 until the window is full, and exactly
// 0 for a flat window.
func (s *SMAAcc) StdDev() float64 {
	if !s.Ready() || s.flat {
		return 0
	}
	var sq float64
	for _, v := range s.buf {
		d := v - s.current
		sq += d * d
	}
	return math.Sqrt(sq / float64(s.period))
}

// Reset clears the SMA state for reuse.
func (s *SMAAcc) Reset() {
	s.idx = 0
	s.count = 0
	s.flat = false
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// SMA returns the simple moving average of close over each trailing window of
// period bars: max(0, n-period+1) values.
func SMA(points []model.PricePoint, period int) []float64 {
	return SMAValues(model.Closes(points), period)
}

// SMAValues is SMA over an arbitrary float series.
func SMAValues(values []float64, period int) []float64 {
	if period <= 0 {
		return []float64{}
	}
	return run(NewSMA(period), values, period)
}
