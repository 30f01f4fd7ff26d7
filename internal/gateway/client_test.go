package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"marketchart/internal/chart"
)

func queuedClient() *Client {
	return &Client{
		id:     "c1",
		send:   make(chan []byte, 1),
		hub:    &Hub{sendTimeout: 2 * time.Second},
		closed: make(chan struct{}),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestFailureNoticesWaitForRoom(t *testing.T) {
	for _, kind := range []chart.NoticeKind{chart.NoticeDataUnavailable, chart.NoticeExportFailed} {
		c := queuedClient()
		c.send <- []byte("busy")

		done := make(chan struct{})
		go func() {
			c.forwardNotice(chart.Notice{Kind: kind, Ticker: "AAPL", Err: errors.New("backend down")})
			close(done)
		}()

		if got := string(<-c.send); got != "busy" {
			t.Fatalf("%s: first frame = %q", kind, got)
		}
		var msg NoticeMsg
		select {
		case b := <-c.send:
			if err := json.Unmarshal(b, &msg); err != nil {
				t.Fatalf("%s: decode: %v", kind, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: notice dropped on a full queue", kind)
		}
		if msg.Notice.Kind != kind || msg.Error != "backend down" {
			t.Errorf("%s: got %+v", kind, msg)
		}
		<-done
	}
}

func TestInformationalNoticeDroppedWhenFull(t *testing.T) {
	c := queuedClient()
	c.send <- []byte("busy")

	done := make(chan struct{})
	go func() {
		c.forwardNotice(chart.Notice{Kind: chart.NoticeRendered, Ticker: "AAPL"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rendered notice blocked on a full queue")
	}
	if len(c.send) != 1 {
		t.Errorf("queue len = %d, want 1", len(c.send))
	}
}
