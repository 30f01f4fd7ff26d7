package indicator

import (
	"math"
	"testing"

	"marketchart/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func bars(closes ...float64) []model.PricePoint {
	out := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = model.PricePoint{
			Time:   1_700_000_000 + int64(i)*86400,
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}

func flat(n int, c float64) []model.PricePoint {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = c
	}
	return bars(closes...)
}

func rising(n int) []model.PricePoint {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return bars(closes...)
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// (100+102+104)/3 = 102, (102+104+103)/3 = 103, (104+103+105)/3 = 104
	got := SMA(bars(100, 102, 104, 103, 105), 3)
	want := []float64{102, 103, 104}
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "SMA(3)", got[i], want[i], 1e-9)
	}
}

func TestSMA_LengthAndWindowMean(t *testing.T) {
	closes := []float64{10, 11, 9.5, 12, 13.25, 12.5, 14, 15.75, 15, 16.5, 17, 16}
	points := bars(closes...)
	for period := 1; period <= len(closes)+2; period++ {
		got := SMA(points, period)
		wantLen := len(closes) - period + 1
		if wantLen < 0 {
			wantLen = 0
		}
		if len(got) != wantLen {
			t.Fatalf("period %d: len=%d, want %d", period, len(got), wantLen)
		}
		for i, v := range got {
			var sum float64
			for _, c := range closes[i : i+period] {
				sum += c
			}
			assertClose(t, "window mean", v, sum/float64(period), 1e-9)
		}
	}
}

func TestSMA_InsufficientHistoryIsEmpty(t *testing.T) {
	got := SMA(rising(10), 20)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil output, got %v", got)
	}
	if out := SMA(rising(10), 0); len(out) != 0 {
		t.Errorf("period 0: expected empty, got %v", out)
	}
}

func TestSMA_ThirtyBarsPeriod20(t *testing.T) {
	if got := SMA(rising(30), 20); len(got) != 11 {
		t.Errorf("expected 11 outputs, got %d", len(got))
	}
}

func TestSMA_ExactWindowMean(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 0.1*float64(i%7) + 1e6*float64(i%3)
	}
	got := SMAValues(closes, 20)
	for i := range got {
		want := 0.0
		for _, v := range closes[i : i+20] {
			want += v
		}
		want /= 20
		if got[i] != want {
			t.Fatalf("sma[%d] = %v, want %v", i, got[i], want)
		}
	}
}

func TestSMA_LargePrefixDoesNotLeak(t *testing.T) {
	closes := make([]float64, 0, 130)
	for i := 0; i < 100; i++ {
		closes = append(closes, 1e9+float64(i)*0.37)
	}
	for i := 0; i < 30; i++ {
		closes = append(closes, 0.5)
	}
	got := SMA(bars(closes...), 20)
	if last := got[len(got)-1]; last != 0.5 {
		t.Fatalf("last sma = %v, want exactly 0.5", last)
	}
	bands := Bollinger(bars(closes...), 20, 2)
	b := bands[len(bands)-1]
	if b.Upper != 0.5 || b.Middle != 0.5 || b.Lower != 0.5 {
		t.Fatalf("last band = %+v, want flat at 0.5", b)
	}
}

func TestSMA_DoesNotMutateInput(t *testing.T) {
	points := bars(1, 2, 3, 4, 5)
	before := append([]model.PricePoint(nil), points...)
	SMA(points, 2)
	EMA(points, 2)
	RSI(points, 2)
	Bollinger(points, 2, 2)
	for i := range points {
		if points[i] != before[i] {
			t.Fatalf("input mutated at %d: %+v != %+v", i, points[i], before[i])
		}
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// multiplier = 2/(3+1) = 0.5
	// seed = (100+102+104)/3 = 102
	// 103: (103-102)*0.5+102 = 102.5
	// 105: (105-102.5)*0.5+102.5 = 103.75
	got := EMA(bars(100, 102, 104, 103, 105), 3)
	want := []float64{102, 102.5, 103.75}
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "EMA(3)", got[i], want[i], 1e-9)
	}
}

func TestEMA_Correctness_Period5(t *testing.T) {
	mult := 2.0 / 6.0
	closes := []float64{44, 44.25, 44.50, 43.75, 44.50, 44.25, 44.00}
	seed := (44.0 + 44.25 + 44.50 + 43.75 + 44.50) / 5.0
	e6 := (44.25-seed)*mult + seed
	e7 := (44.00-e6)*mult + e6

	got := EMA(bars(closes...), 5)
	if len(got) != 3 {
		t.Fatalf("len=%d, want 3", len(got))
	}
	assertClose(t, "EMA(5) seed", got[0], seed, 1e-9)
	assertClose(t, "EMA(5) bar 6", got[1], e6, 1e-9)
	assertClose(t, "EMA(5) bar 7", got[2], e7, 1e-9)
}

func TestEMA_ConstantPriceIsConstant(t *testing.T) {
	for _, period := range []int{1, 3, 9, 20} {
		got := EMA(flat(40, 57.3), period)
		if len(got) != 40-period+1 {
			t.Fatalf("period %d: len=%d", period, len(got))
		}
		for _, v := range got {
			assertClose(t, "EMA constant", v, 57.3, 1e-9)
		}
	}
}

func TestEMA_InexactConstantIsExact(t *testing.T) {
	got := EMA(flat(100, 0.1), 10)
	for i, v := range got {
		if v != 0.1 {
			t.Fatalf("ema[%d] = %v, want exactly 0.1", i, v)
		}
	}
}

func TestEMA_StreamingMatchesBatch(t *testing.T) {
	points := bars(10, 11, 12, 11.5, 13, 14, 13.5, 15)
	batch := EMA(points, 4)
	acc := NewEMA(4)
	var streamed []float64
	for _, p := range points {
		acc.Update(p.Close)
		if acc.Ready() {
			streamed = append(streamed, acc.Value())
		}
	}
	if len(streamed) != len(batch) {
		t.Fatalf("len mismatch: %d vs %d", len(streamed), len(batch))
	}
	for i := range batch {
		assertClose(t, "stream vs batch", streamed[i], batch[i], 1e-12)
	}
}

// ────────────────────────────────────────────────────────────
// SMMA (Wilder's smoothing)
// ────────────────────────────────────────────────────────────

func TestSMMA_Correctness_Period3(t *testing.T) {
	// seed = (100+102+104)/3 = 102
	// (102*2 + 103)/3 = 102.3333
	// (102.3333*2 + 105)/3 = 103.2222
	smma := NewSMMA(3)
	values := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.3333, 103.2222}
	ready := []bool{false, false, true, true, true}

	for i, v := range values {
		smma.Update(v)
		if smma.Ready() != ready[i] {
			t.Errorf("value %d: Ready()=%v, want %v", i, smma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMMA(3)", smma.Value(), expected[i], 0.001)
		}
	}

	smma.Reset()
	if smma.Ready() || smma.Value() != 0 {
		t.Errorf("expected reset state, got ready=%v value=%f", smma.Ready(), smma.Value())
	}
}

// ────────────────────────────────────────────────────────────
// RSI (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Deltas: +0.34 -0.25 -0.48 +0.72 +0.50
	// avgGain = 1.56/5 = 0.312, avgLoss = 0.73/5 = 0.146
	// RSI = 100 - 100/(1+2.13699) = 68.1223
	// then +0.27, +0.32, +0.42 with Wilder smoothing: 72.2169, 76.6587, 81.5087
	got := RSI(bars(44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84), 5)
	want := []float64{68.1223, 72.2169, 76.6587, 81.5087}
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "RSI(5)", got[i], want[i], 0.001)
	}
}

func TestRSI_LengthIsNMinusPeriod(t *testing.T) {
	if got := RSI(rising(30), 14); len(got) != 16 {
		t.Errorf("expected 16 outputs, got %d", len(got))
	}
	if got := RSI(rising(14), 14); len(got) != 0 {
		t.Errorf("expected empty output with exactly period bars, got %d", len(got))
	}
}

func TestRSI_AllUp_Is100(t *testing.T) {
	got := RSI(rising(25), 14)
	if len(got) == 0 {
		t.Fatal("expected output")
	}
	for i, v := range got {
		if v != 100 {
			t.Errorf("RSI[%d] = %f, want 100", i, v)
		}
	}
}

func TestRSI_AllDown_Is0(t *testing.T) {
	closes := make([]float64, 12)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	for _, v := range RSI(bars(closes...), 5) {
		assertClose(t, "RSI all down", v, 0, 1e-9)
	}
}

func TestRSI_Flat_Is100(t *testing.T) {
	// avgGain and avgLoss are both 0; avgLoss == 0 is defined as 100.
	for _, v := range RSI(flat(10, 100), 5) {
		assertClose(t, "RSI flat", v, 100, 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_Lengths(t *testing.T) {
	n := 60
	r := MACD(rising(n), 12, 26, 9)
	if len(r.MACD) != n-26+1 {
		t.Errorf("macd len=%d, want %d", len(r.MACD), n-26+1)
	}
	if len(r.Signal) != n-26-9+2 {
		t.Errorf("signal len=%d, want %d", len(r.Signal), n-26-9+2)
	}
	if len(r.Histogram) != len(r.Signal) {
		t.Errorf("histogram len=%d, want %d", len(r.Histogram), len(r.Signal))
	}
}

func TestMACD_HistogramIsMACDMinusSignal(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/5) + float64(i)/4
	}
	r := MACD(bars(closes...), 12, 26, 9)
	offset := len(r.MACD) - len(r.Signal)
	for i := range r.Histogram {
		assertClose(t, "histogram", r.Histogram[i], r.MACD[i+offset]-r.Signal[i], 1e-12)
	}
}

func TestMACD_LineIsFastMinusSlowEMA(t *testing.T) {
	points := rising(50)
	r := MACD(points, 3, 6, 4)
	fast := EMA(points, 3)
	slow := EMA(points, 6)
	for i := range r.MACD {
		assertClose(t, "macd line", r.MACD[i], fast[i+3]-slow[i], 1e-12)
	}
	sig := EMAValues(r.MACD, 4)
	for i := range r.Signal {
		assertClose(t, "signal seeded by mean", r.Signal[i], sig[i], 1e-12)
	}
}

func TestMACD_InsufficientHistory(t *testing.T) {
	if r := MACD(rising(34), 12, 26, 9); !r.Empty() {
		t.Errorf("expected empty below slow+signal bars, got %d", len(r.MACD))
	}
	if r := MACD(rising(35), 12, 26, 9); r.Empty() {
		t.Error("expected output at slow+signal bars")
	}
	if r := MACD(rising(100), 26, 12, 9); !r.Empty() {
		t.Error("expected empty when fast >= slow")
	}
}

// ────────────────────────────────────────────────────────────
// Bollinger
// ────────────────────────────────────────────────────────────

func TestBollinger_ConstantPriceCollapses(t *testing.T) {
	got := Bollinger(flat(30, 100), 20, 2)
	if len(got) != 11 {
		t.Fatalf("len=%d, want 11", len(got))
	}
	for i, b := range got {
		if b.Upper != b.Middle || b.Lower != b.Middle {
			t.Errorf("band %d: %+v, expected upper == middle == lower", i, b)
		}
	}
}

func TestBollinger_InexactConstantCollapses(t *testing.T) {
	for _, c := range []float64{0.1, 57.3, 1234.567} {
		got := Bollinger(flat(300, c), 20, 2)
		for i, b := range got {
			if b.Upper != c || b.Middle != c || b.Lower != c {
				t.Fatalf("close %v band %d: %+v, expected all equal to close", c, i, b)
			}
		}
	}
}

func TestBollinger_PopulationStdDev(t *testing.T) {
	// Window 2,4,4,4,5,5,7,9: mean 5, population sd 2
	got := Bollinger(bars(2, 4, 4, 4, 5, 5, 7, 9), 8, 2)
	if len(got) != 1 {
		t.Fatalf("len=%d, want 1", len(got))
	}
	assertClose(t, "middle", got[0].Middle, 5, 1e-9)
	assertClose(t, "upper", got[0].Upper, 9, 1e-9)
	assertClose(t, "lower", got[0].Lower, 1, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Compute dispatch
// ────────────────────────────────────────────────────────────

func TestCompute_DefaultPeriods(t *testing.T) {
	points := rising(60)
	cases := []struct {
		cfg  model.IndicatorConfig
		want int
	}{
		{model.IndicatorConfig{Type: model.SMA}, 60 - 20 + 1},
		{model.IndicatorConfig{Type: model.EMA, Period: 9}, 60 - 9 + 1},
		{model.IndicatorConfig{Type: model.RSI}, 60 - 14},
		{model.IndicatorConfig{Type: model.MACD}, 60 - 26 + 1},
		{model.IndicatorConfig{Type: model.Bollinger}, 60 - 20 + 1},
		{model.IndicatorConfig{Type: "SMA", Period: 5}, 60 - 5 + 1},
	}
	for _, tc := range cases {
		if got := Compute(points, tc.cfg).Len(); got != tc.want {
			t.Errorf("%s(%d): len=%d, want %d", tc.cfg.Type, tc.cfg.Period, got, tc.want)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Cross-indicator ordering
// ────────────────────────────────────────────────────────────

func TestIndicators_TrendingUp_Ordering(t *testing.T) {
	points := rising(30)
	sma5 := SMA(points, 5)
	sma20 := SMA(points, 20)
	ema5 := EMA(points, 5)

	last := func(v []float64) float64 { return v[len(v)-1] }
	if last(sma5) <= last(sma20) {
		t.Errorf("SMA(5) should be > SMA(20) in uptrend: %.2f vs %.2f", last(sma5), last(sma20))
	}
	if last(ema5) <= last(sma20) {
		t.Errorf("EMA(5) should be > SMA(20) in uptrend: %.2f vs %.2f", last(ema5), last(sma20))
	}
}

func TestEMA_MoreResponsiveThanSMA(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100
	}
	closes[20] = 120
	points := bars(closes...)
	sma := SMA(points, 10)
	ema := EMA(points, 10)
	if ema[len(ema)-1] <= sma[len(sma)-1] {
		t.Errorf("EMA should react more than SMA to a jump: EMA=%.4f SMA=%.4f", ema[len(ema)-1], sma[len(sma)-1])
	}
}
