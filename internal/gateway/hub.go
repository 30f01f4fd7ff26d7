// Package gateway serves chart sessions to browsers over WebSocket. Each
// connection gets its own chart.Session whose rendering surface is the
// browser's chart widget, driven by JSON messages.
package gateway

import (
	"context"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketchart/config"
	"marketchart/internal/chart"
	"marketchart/internal/metrics"
	"marketchart/internal/model"
)

// LayoutStore persists a client's chart layout between connections.
type LayoutStore interface {
	Load(ctx context.Context, clientID string) (model.Layout, bool, error)
	Save(ctx context.Context, clientID string, layout model.Layout) error
}

// HubConfig wires a Hub to its collaborators. Events, Layouts, Metrics and
// Logger may be nil.
type HubConfig struct {
	Prices   model.PriceSource
	Events   model.EventSource
	Layouts  LayoutStore
	Defaults config.ChartDefaults
	Session  chart.SessionConfig
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	SendTimeout   time.Duration // default: 5s
	ExportTimeout time.Duration // default: 10s
}

// Hub tracks connected clients.
type Hub struct {
	prices     model.PriceSource
	events     model.EventSource
	layouts    LayoutStore
	defaults   config.ChartDefaults
	sessionCfg chart.SessionConfig
	metrics    *metrics.Metrics
	log        *slog.Logger

	sendTimeout   time.Duration
	exportTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a Hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.ExportTimeout <= 0 {
		cfg.ExportTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Session.ComparisonColors) == 0 {
		cfg.Session.ComparisonColors = cfg.Defaults.ComparisonColors
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		prices:        cfg.Prices,
		events:        cfg.Events,
		layouts:       cfg.Layouts,
		defaults:      cfg.Defaults,
		sessionCfg:    cfg.Session,
		metrics:       cfg.Metrics,
		log:           cfg.Logger,
		sendTimeout:   cfg.SendTimeout,
		exportTimeout: cfg.ExportTimeout,
		ctx:           ctx,
		cancel:        cancel,
		clients:       make(map[*Client]bool),
	}
}

// HandleWSRequest registers an upgraded connection and starts its session.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, clientID string) *Client {
	client := newClient(h, conn, clientID)

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ActiveSessions.Inc()
	}
	log.Printf("[gateway] ws client %s connected (%d total)", clientID, count)

	client.start()
	return client
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.metrics != nil {
		h.metrics.ActiveSessions.Dec()
	}
	log.Printf("[gateway] ws client %s disconnected", c.id)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close ends every session and disconnects every client.
func (h *Hub) Close() {
	h.cancel()
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.close()
		<-c.session.Done()
	}
}

// initialLayout returns the client's saved layout, falling back to the
// configured defaults.
func (h *Hub) initialLayout(ctx context.Context, clientID string) (model.Layout, bool) {
	if h.layouts != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		layout, ok, err := h.layouts.Load(ctx, clientID)
		if err != nil {
			log.Printf("[gateway] WARNING: load layout for %s: %v", clientID, err)
		}
		if ok {
			return layout, true
		}
	}
	return model.Layout{
		Ticker:      h.defaults.Ticker,
		Timeframe:   h.defaults.Timeframe,
		Indicators:  append([]model.IndicatorConfig(nil), h.defaults.Indicators...),
		Comparisons: append([]string(nil), h.defaults.Comparisons...),
	}, false
}
