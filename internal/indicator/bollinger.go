package indicator

import "marketchart/internal/model"

// Band is one Bollinger output bar.
type Band struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger returns SMA(period) of close as the middle band and middle ± k
// population standard deviations as the outer bands.
func Bollinger(points []model.PricePoint, period int, k float64) []Band {
	if period <= 0 || len(points) < period {
		return []Band{}
	}
	sma := NewSMA(period)
	out := make([]Band, 0, len(points)-period+1)
	for _, p := range points {
		sma.Update(p.Close)
		if !sma.Ready() {
			continue
		}
		mid := sma.Value()
		sd := sma.StdDev()
		out = append(out, Band{Upper: mid + k*sd, Middle: mid, Lower: mid - k*sd})
	}
	return out
}
