package series

import (
	"errors"
	"math"
	"testing"

	"marketchart/internal/indicator"
	"marketchart/internal/model"
)

func daily(closes ...float64) []model.PricePoint {
	out := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = model.PricePoint{Time: 1_704_067_200 + int64(i)*86400, Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func ramp(n int) []model.PricePoint {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 50 + float64(i%7) + float64(i)/3
	}
	return daily(closes...)
}

func TestAlign_AssignsTrailingTimes(t *testing.T) {
	prices := ramp(12)
	for m := 0; m <= len(prices); m++ {
		values := make([]float64, m)
		got, err := Align(prices, values)
		if err != nil {
			t.Fatalf("m=%d: %v", m, err)
		}
		if len(got) != m {
			t.Fatalf("m=%d: len=%d", m, len(got))
		}
		for i := range got {
			if want := prices[len(prices)-m+i].Time; got[i].Time != want {
				t.Errorf("m=%d i=%d: time=%d, want %d", m, i, got[i].Time, want)
			}
		}
	}
}

func TestAlign_RejectsLongerOutput(t *testing.T) {
	_, err := Align(ramp(3), make([]float64, 4))
	if !errors.Is(err, ErrMisaligned) {
		t.Errorf("expected ErrMisaligned, got %v", err)
	}
}

func TestAlign_SMA20OnThirtyBars(t *testing.T) {
	prices := ramp(30)
	got, err := Align(prices, indicator.SMA(prices, 20))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 11 {
		t.Fatalf("expected 11 points, got %d", len(got))
	}
	if got[0].Time != prices[19].Time {
		t.Errorf("first time=%d, want input.time[19]=%d", got[0].Time, prices[19].Time)
	}
	if got[10].Time != prices[29].Time {
		t.Errorf("last time=%d, want %d", got[10].Time, prices[29].Time)
	}
}

func TestAlign_SMA20OnTenBarsIsEmpty(t *testing.T) {
	prices := ramp(10)
	got, err := Align(prices, indicator.SMA(prices, 20))
	if err != nil {
		t.Fatalf("insufficient history must not be an error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no points, got %d", len(got))
	}
}

func TestAlignMACD_EachArrayAgainstPrices(t *testing.T) {
	prices := ramp(60)
	r := indicator.MACD(prices, 12, 26, 9)
	s, err := AlignMACD(prices, r)
	if err != nil {
		t.Fatal(err)
	}
	if s.MACD[0].Time != prices[25].Time {
		t.Errorf("macd starts at %d, want %d", s.MACD[0].Time, prices[25].Time)
	}
	if s.Signal[0].Time != prices[33].Time {
		t.Errorf("signal starts at %d, want %d", s.Signal[0].Time, prices[33].Time)
	}
	if s.Histogram[0].Time != s.Signal[0].Time {
		t.Errorf("histogram and signal start differ: %d vs %d", s.Histogram[0].Time, s.Signal[0].Time)
	}
	last := prices[len(prices)-1].Time
	for name, arr := range map[string][]model.TimeValue{"macd": s.MACD, "signal": s.Signal, "hist": s.Histogram} {
		if arr[len(arr)-1].Time != last {
			t.Errorf("%s does not end on the last bar", name)
		}
	}
}

func TestAlignBands(t *testing.T) {
	prices := ramp(25)
	bands := indicator.Bollinger(prices, 20, 2)
	got, err := AlignBands(prices, bands)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 || got[0].Time != prices[19].Time {
		t.Fatalf("unexpected alignment: len=%d first=%d", len(got), got[0].Time)
	}
	for i, b := range got {
		if b.Middle != bands[i].Middle || b.Upper < b.Middle || b.Lower > b.Middle {
			t.Errorf("band %d malformed: %+v", i, b)
		}
	}
}

func TestNormalize_PercentFromFirstBar(t *testing.T) {
	got := Normalize(daily(100, 110, 90))
	want := []float64{0, 10, -10}
	if len(got) != len(want) {
		t.Fatalf("len=%d", len(got))
	}
	for i := range want {
		if math.Abs(got[i].Value-want[i]) > 1e-9 {
			t.Errorf("value[%d]=%f, want %f", i, got[i].Value, want[i])
		}
	}
	if got[2].Time != daily(100, 110, 90)[2].Time {
		t.Error("normalized series must keep the ticker's own times")
	}
}

func TestNormalize_EmptyAndZeroBasis(t *testing.T) {
	if got := Normalize(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := Normalize(daily(0, 5, 10)); got != nil {
		t.Errorf("expected nil for zero first close, got %v", got)
	}
}
