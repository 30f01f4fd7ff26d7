package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"marketchart/internal/metrics"
	"marketchart/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// memKV is an in-memory KV. When down is set every call fails.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	down error
	gets int
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memKV) Get(ctx context.Context, key string) *goredis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.down != nil {
		return goredis.NewStringResult("", m.down)
	}
	v, ok := m.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(string(v), nil)
}

func (m *memKV) Set(ctx context.Context, key string, value interface{}, exp time.Duration) *goredis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down != nil {
		return goredis.NewStatusResult("", m.down)
	}
	m.data[key] = value.([]byte)
	m.ttls[key] = exp
	return goredis.NewStatusResult("OK", nil)
}

type countingSource struct {
	calls int
	bars  []model.PricePoint
	err   error
}

func (s *countingSource) FetchPriceHistory(ctx context.Context, ticker string, from, to int64, tf model.Timeframe) ([]model.PricePoint, error) {
	s.calls++
	return s.bars, s.err
}

var sampleBars = []model.PricePoint{
	{Time: 60, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
	{Time: 120, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 12},
}

func TestPriceCache_MissThenHit(t *testing.T) {
	kv := newMemKV()
	src := &countingSource{bars: sampleBars}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	cache := NewPriceCache(kv, src, nil, m)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := cache.FetchPriceHistory(ctx, "AAPL", 0, 120, model.TF1m)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[1] != sampleBars[1] {
			t.Fatalf("bars = %+v", got)
		}
	}
	if src.calls != 1 {
		t.Errorf("backend calls = %d, want 1", src.calls)
	}
	if got := testutil.ToFloat64(m.CacheHits); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if ttl := kv.ttls[BarsKey("AAPL", model.TF1m, 0, 120)]; ttl != time.Minute {
		t.Errorf("ttl = %s, want 1m", ttl)
	}
}

func TestPriceCache_DoesNotCacheEmptyOrErrors(t *testing.T) {
	kv := newMemKV()
	src := &countingSource{}
	cache := NewPriceCache(kv, src, nil, nil)
	ctx := context.Background()

	cache.FetchPriceHistory(ctx, "AAPL", 0, 120, model.TF1h)
	src.err = errors.New("backend down")
	if _, err := cache.FetchPriceHistory(ctx, "AAPL", 0, 120, model.TF1h); err == nil {
		t.Error("backend error swallowed")
	}
	if len(kv.data) != 0 {
		t.Errorf("cached %d entries, want 0", len(kv.data))
	}
}

func TestPriceCache_RedisDownFallsThrough(t *testing.T) {
	kv := newMemKV()
	kv.down = errors.New("connection refused")
	src := &countingSource{bars: sampleBars}
	cache := NewPriceCache(kv, src, NewCircuitBreaker(2, time.Hour), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		got, err := cache.FetchPriceHistory(ctx, "AAPL", 0, 120, model.TF1d)
		if err != nil || len(got) != 2 {
			t.Fatalf("fetch %d: %v, %d bars", i, err, len(got))
		}
	}
	if src.calls != 5 {
		t.Errorf("backend calls = %d, want 5", src.calls)
	}
	if cache.cb.CurrentState() != StateOpen {
		t.Errorf("breaker = %s, want open", cache.cb.CurrentState())
	}
	// The open breaker keeps later fetches off Redis entirely.
	if kv.gets > 2 {
		t.Errorf("redis gets = %d after breaker opened", kv.gets)
	}
}

func TestBarsTTL(t *testing.T) {
	cases := map[model.Timeframe]time.Duration{
		model.TF1m:  time.Minute,
		model.TF15m: 15 * time.Minute,
		model.TF1h:  time.Hour,
		model.TF1d:  time.Hour,
	}
	for tf, want := range cases {
		if got := BarsTTL(tf); got != want {
			t.Errorf("BarsTTL(%s) = %s, want %s", tf, got, want)
		}
	}
}

func TestLayoutStore(t *testing.T) {
	kv := newMemKV()
	store := NewLayoutStore(kv)
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "client-1"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	hidden := false
	want := model.Layout{
		Ticker:    "AAPL",
		Timeframe: model.TF1h,
		Indicators: []model.IndicatorConfig{
			{Type: model.SMA, Period: 50, Color: "#fff", Visible: &hidden},
		},
		Comparisons: []string{"MSFT"},
	}
	if err := store.Save(ctx, "client-1", want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := store.Load(ctx, "client-1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Ticker != "AAPL" || got.Timeframe != model.TF1h || len(got.Comparisons) != 1 {
		t.Errorf("layout = %+v", got)
	}
	if len(got.Indicators) != 1 || got.Indicators[0].IsVisible() {
		t.Errorf("indicators = %+v", got.Indicators)
	}

	kv.down = errors.New("down")
	if _, _, err := store.Load(ctx, "client-1"); err == nil {
		t.Error("redis error swallowed")
	}
}
