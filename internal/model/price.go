package model

// PricePoint is one OHLCV bar. Time is the bar start in epoch seconds.
// Sequences of PricePoint are ordered ascending by Time with unique Times and
// are never mutated after they have been fetched.
type PricePoint struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// TimeValue is a single point of a scalar series keyed by bar time.
type TimeValue struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// BandPoint is a single point of a band series (Bollinger).
type BandPoint struct {
	Time   int64   `json:"time"`
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// MACDSeries holds the three time-aligned MACD arrays. Each array carries its
// own warm-up, so MACD is longer than Signal and Histogram.
type MACDSeries struct {
	MACD      []TimeValue `json:"macd"`
	Signal    []TimeValue `json:"signal"`
	Histogram []TimeValue `json:"histogram"`
}

// Closes extracts the close prices of a bar sequence.
func Closes(points []PricePoint) []float64 {
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}
	return closes
}

// Volumes returns the volume of each bar as a scalar series.
func Volumes(points []PricePoint) []TimeValue {
	out := make([]TimeValue, len(points))
	for i, p := range points {
		out[i] = TimeValue{Time: p.Time, Value: p.Volume}
	}
	return out
}
