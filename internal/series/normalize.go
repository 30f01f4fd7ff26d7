package series

import "marketchart/internal/model"

// Normalize rescales a comparison ticker's closes to percent change from its
// own first bar: (close - close0) / close0 * 100.
//
// Returns nil when there is nothing to draw: an empty sequence, or a first
// close of zero, which has no percent basis.
func Normalize(points []model.PricePoint) []model.TimeValue {
	if len(points) == 0 {
		return nil
	}
	base := points[0].Close
	if base == 0 {
		return nil
	}
	out := make([]model.TimeValue, len(points))
	for i, p := range points {
		out[i] = model.TimeValue{Time: p.Time, Value: (p.Close - base) / base * 100}
	}
	return out
}
