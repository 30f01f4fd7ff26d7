package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketchart/internal/chart"
	"marketchart/internal/logger"
	"marketchart/internal/model"
)

var errClientClosed = errors.New("client closed")

type exportResult struct {
	image []byte
	err   error
}

// Client is one browser connection and the chart session it drives.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	session *chart.Session
	log     *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once

	// commands are handled in order on their own goroutine so readPump
	// can keep delivering export results while a command waits.
	cmds chan InMsg

	exportMu sync.Mutex
	exports  map[string]chan exportResult
}

func newClient(h *Hub, conn *websocket.Conn, id string) *Client {
	ctx, cancel := context.WithCancel(h.ctx)
	ctx = logger.WithRequestID(ctx, id)
	c := &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, 256),
		hub:     h,
		log:     logger.ForRequest(ctx, h.log),
		ctx:     ctx,
		cancel:  cancel,
		closed:  make(chan struct{}),
		cmds:    make(chan InMsg, 16),
		exports: make(map[string]chan exportResult),
	}
	comp := chart.NewCompositor(c.newSurface, h.metrics)
	c.session = chart.NewSession(h.prices, h.events, comp, h.sessionCfg, c.log, h.metrics)
	return c
}

// start runs the session and the pumps. It returns immediately.
func (c *Client) start() {
	go c.session.Run(c.ctx)
	go c.forwardNotices()
	go c.writePump()
	go c.dispatch()
	go c.readPump()
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
	})
}

// enqueue marshals v onto the send queue. It waits for room rather than
// dropping, since a lost series message leaves the widget out of sync.
func (c *Client) enqueue(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	timer := time.NewTimer(c.hub.sendTimeout)
	defer timer.Stop()
	select {
	case c.send <- b:
		return nil
	case <-c.closed:
		return errClientClosed
	case <-timer.C:
		return fmt.Errorf("client %s: send queue full", c.id)
	}
}

// trySend is for messages that may be dropped (pong, notices).
func (c *Client) trySend(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: queued messages share one frame,
			// newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.close()
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4 << 20) // export results carry an image
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg InMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.trySend(ReplyMsg{Type: msgError, Error: "invalid message: " + err.Error()})
			continue
		}

		switch msg.Type {
		case msgExportResult:
			c.resolveExport(msg)
		case msgPing:
			c.trySend(ReplyMsg{Type: msgPong, Ping: msg.Ping, Server: time.Now().UnixMilli()})
		default:
			select {
			case c.cmds <- msg:
			default:
				c.trySend(ReplyMsg{Type: msgError, ReqID: msg.ReqID, Error: "too many pending requests"})
			}
		}
	}
}

func (c *Client) dispatch() {
	c.restore()
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.cmds:
			c.handle(msg)
		}
	}
}

func (c *Client) handle(msg InMsg) {
	ctx := c.ctx
	var err error
	persist := false

	switch msg.Type {
	case msgView:
		err = c.session.SetView(ctx, msg.Ticker, msg.Timeframe)
		persist = true
	case msgIndicators:
		err = c.session.SetIndicators(ctx, msg.Indicators)
		persist = true
	case msgComparisons:
		err = c.session.SetComparisons(ctx, msg.Comparisons)
		persist = true
	case msgExport:
		img, err := c.session.Export(ctx)
		if err != nil {
			c.enqueue(ReplyMsg{Type: msgError, ReqID: msg.ReqID, Error: err.Error()})
			return
		}
		c.enqueue(ReplyMsg{Type: msgImage, ReqID: msg.ReqID, Image: img})
		return
	case msgState:
		st, err := c.session.State(ctx)
		if err != nil {
			c.enqueue(ReplyMsg{Type: msgError, ReqID: msg.ReqID, Error: err.Error()})
			return
		}
		c.enqueue(ReplyMsg{Type: msgState, ReqID: msg.ReqID, State: &st})
		return
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		c.log.Warn("chart command rejected", "type", msg.Type, "error", err)
		c.enqueue(ReplyMsg{Type: msgError, ReqID: msg.ReqID, Error: err.Error()})
		return
	}
	c.enqueue(ReplyMsg{Type: msgAck, ReqID: msg.ReqID})
	if persist {
		c.saveLayout()
	}
}

// restore applies the saved layout, or the defaults for a new client, and
// tells the browser which one it got.
func (c *Client) restore() {
	layout, restored := c.hub.initialLayout(c.ctx, c.id)
	if err := c.session.SetIndicators(c.ctx, layout.Indicators); err != nil {
		c.log.Warn("restore indicators", "error", err)
	}
	if err := c.session.SetComparisons(c.ctx, layout.Comparisons); err != nil {
		c.log.Warn("restore comparisons", "error", err)
	}
	c.enqueue(HelloMsg{Type: msgHello, ClientID: c.id, Layout: layout, Restored: restored})
	if layout.Ticker == "" {
		return
	}
	if err := c.session.SetView(c.ctx, layout.Ticker, layout.Timeframe); err != nil {
		c.log.Warn("restore view", "ticker", layout.Ticker, "error", err)
	}
}

func (c *Client) saveLayout() {
	if c.hub.layouts == nil {
		return
	}
	st, err := c.session.State(c.ctx)
	if err != nil {
		return
	}
	layout := model.Layout{
		Ticker:      st.Ticker,
		Timeframe:   st.Timeframe,
		Indicators:  st.Indicators,
		Comparisons: st.Comparisons,
	}
	ctx, cancel := context.WithTimeout(c.ctx, 2*time.Second)
	defer cancel()
	if err := c.hub.layouts.Save(ctx, c.id, layout); err != nil {
		c.log.Warn("save layout failed", "error", err)
	}
}

func (c *Client) forwardNotices() {
	for {
		select {
		case <-c.closed:
			return
		case n := <-c.session.Notices():
			c.forwardNotice(n)
		}
	}
}

// forwardNotice queues a notice for the browser. Failures the user must
// see wait for room; the rest are dropped when the queue is full.
func (c *Client) forwardNotice(n chart.Notice) {
	msg := NoticeMsg{Type: msgNotice, Notice: n}
	if n.Err != nil {
		msg.Error = n.Err.Error()
	}
	switch n.Kind {
	case chart.NoticeDataUnavailable, chart.NoticeExportFailed:
		if err := c.enqueue(msg); err != nil {
			c.log.Warn("notice not delivered", "kind", n.Kind, "error", err)
		}
	default:
		c.trySend(msg)
	}
}

// requestExport sends an export_request and waits for the matching
// export_result.
func (c *Client) requestExport(surfaceID string) ([]byte, error) {
	reqID := logger.NewRequestID()
	ch := make(chan exportResult, 1)
	c.exportMu.Lock()
	c.exports[reqID] = ch
	c.exportMu.Unlock()
	defer func() {
		c.exportMu.Lock()
		delete(c.exports, reqID)
		c.exportMu.Unlock()
	}()

	if err := c.enqueue(SurfaceMsg{Type: msgExportRequest, Surface: surfaceID, ReqID: reqID}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.hub.exportTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.image, res.err
	case <-timer.C:
		return nil, fmt.Errorf("export timed out after %s", c.hub.exportTimeout)
	case <-c.closed:
		return nil, errClientClosed
	}
}

func (c *Client) resolveExport(msg InMsg) {
	c.exportMu.Lock()
	ch, ok := c.exports[msg.ReqID]
	c.exportMu.Unlock()
	if !ok {
		return
	}
	res := exportResult{image: msg.Image}
	if msg.Error != "" {
		res.err = errors.New(msg.Error)
	} else if len(msg.Image) == 0 {
		res.err = errors.New("empty image")
	}
	select {
	case ch <- res:
	default:
	}
}
