package source

import (
	"context"
	"errors"
	"testing"

	"marketchart/internal/model"
	"marketchart/internal/store/sqlite"
)

type stubSource struct {
	bars   []model.PricePoint
	events []model.EventMarker
	err    error
	calls  int
}

func (s *stubSource) FetchPriceHistory(ctx context.Context, ticker string, from, to int64, tf model.Timeframe) ([]model.PricePoint, error) {
	s.calls++
	return s.bars, s.err
}

func (s *stubSource) FetchEvents(ctx context.Context, ticker string, from, to int64) ([]model.EventMarker, error) {
	s.calls++
	return s.events, s.err
}

type recordingWriter struct{ got map[string]int }

func (w *recordingWriter) WriteEvents(ticker string, events []model.EventMarker) error {
	w.got[ticker] += len(events)
	return nil
}

var bars = []model.PricePoint{{Time: 1, Close: 10}, {Time: 2, Close: 11}}

func TestChain_BackendWritesThrough(t *testing.T) {
	backend := &stubSource{bars: bars, events: []model.EventMarker{{ID: "e"}}}
	archive := &stubSource{}
	sink := make(chan sqlite.BarBatch, 1)
	w := &recordingWriter{got: map[string]int{}}
	c := &Chain{Prices: backend, Events: backend, Archive: archive, BarSink: sink, EventWriter: w}

	got, err := c.FetchPriceHistory(context.Background(), "AAPL", 0, 10, model.TF1d)
	if err != nil || len(got) != 2 {
		t.Fatalf("got %v, %v", got, err)
	}
	select {
	case b := <-sink:
		if b.Ticker != "AAPL" || b.Timeframe != model.TF1d || len(b.Bars) != 2 {
			t.Errorf("batch = %+v", b)
		}
	default:
		t.Error("bars not written through")
	}

	if _, err := c.FetchEvents(context.Background(), "AAPL", 0, 10); err != nil {
		t.Fatal(err)
	}
	if w.got["AAPL"] != 1 {
		t.Errorf("events archived = %d", w.got["AAPL"])
	}
	if archive.calls != 0 {
		t.Error("archive consulted while backend healthy")
	}
}

func TestChain_FullSinkDoesNotBlock(t *testing.T) {
	backend := &stubSource{bars: bars}
	sink := make(chan sqlite.BarBatch) // unbuffered, nobody reading
	c := &Chain{Prices: backend, BarSink: sink}
	if _, err := c.FetchPriceHistory(context.Background(), "AAPL", 0, 10, model.TF1d); err != nil {
		t.Fatal(err)
	}
}

func TestChain_FallsBackToArchive(t *testing.T) {
	backend := &stubSource{err: errors.New("503")}
	archive := &stubSource{bars: bars, events: []model.EventMarker{{ID: "old"}}}
	c := &Chain{Prices: backend, Events: backend, Archive: archive}

	got, err := c.FetchPriceHistory(context.Background(), "AAPL", 0, 10, model.TF1d)
	if err != nil || len(got) != 2 {
		t.Fatalf("got %v, %v", got, err)
	}
	evs, err := c.FetchEvents(context.Background(), "AAPL", 0, 10)
	if err != nil || len(evs) != 1 {
		t.Fatalf("events %v, %v", evs, err)
	}
}

func TestChain_EmptyArchiveKeepsBackendError(t *testing.T) {
	backendErr := errors.New("503")
	c := &Chain{Prices: &stubSource{err: backendErr}, Archive: &stubSource{}}
	if _, err := c.FetchPriceHistory(context.Background(), "AAPL", 0, 10, model.TF1d); !errors.Is(err, backendErr) {
		t.Errorf("err = %v, want backend error", err)
	}
}

func TestChain_CancelledFetchSkipsArchive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	archive := &stubSource{bars: bars}
	c := &Chain{Prices: &stubSource{err: context.Canceled}, Archive: archive}
	if _, err := c.FetchPriceHistory(ctx, "AAPL", 0, 10, model.TF1d); err == nil {
		t.Error("expected error")
	}
	if archive.calls != 0 {
		t.Error("archive consulted for cancelled fetch")
	}
}
