package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"marketchart/config"
	"marketchart/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// TimeframeInfo is the REST response type for /api/timeframes.
type TimeframeInfo struct {
	Timeframe       model.Timeframe `json:"timeframe"`
	StepSeconds     int64           `json:"step_seconds"`
	LookbackSeconds int64           `json:"lookback_seconds"`
}

// IndicatorInfo is the REST response type for /api/indicators.
type IndicatorInfo struct {
	Type          model.IndicatorType `json:"type"`
	DefaultPeriod int                 `json:"default_period"`
	Warmup        int                 `json:"warmup"`
}

func writeJSON(w http.ResponseWriter, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, defaults config.ChartDefaults, processStart time.Time) {
	// WebSocket endpoint. client_id selects the saved layout; a new client
	// gets a fresh id in the hello message.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		clientID := r.URL.Query().Get("client_id")
		if clientID == "" {
			clientID = uuid.NewString()
		}
		hub.HandleWSRequest(conn, clientID)
	})

	mux.HandleFunc("/api/timeframes", func(w http.ResponseWriter, r *http.Request) {
		list := make([]TimeframeInfo, len(model.Timeframes))
		for i, tf := range model.Timeframes {
			list[i] = TimeframeInfo{
				Timeframe:       tf,
				StepSeconds:     int64(tf.Step() / time.Second),
				LookbackSeconds: int64(tf.Lookback() / time.Second),
			}
		}
		writeJSON(w, list)
	})

	mux.HandleFunc("/api/indicators", func(w http.ResponseWriter, r *http.Request) {
		types := []model.IndicatorType{model.SMA, model.EMA, model.RSI, model.MACD, model.Bollinger}
		list := make([]IndicatorInfo, len(types))
		for i, t := range types {
			list[i] = IndicatorInfo{
				Type:          t,
				DefaultPeriod: t.DefaultPeriod(),
				Warmup:        model.IndicatorConfig{Type: t}.Warmup(),
			}
		}
		writeJSON(w, list)
	})

	mux.HandleFunc("/api/defaults", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, defaults)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status":     "ok",
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
