package model

import "context"

// ── Collaborator Port Interfaces ──
// The chart engine never talks to the backend directly; concrete sources
// (HTTP backend, SQLite archive, Redis cache) satisfy these interfaces.

// PriceSource supplies OHLCV history for one ticker.
type PriceSource interface {
	// FetchPriceHistory returns bars in [from, to] ordered ascending by time.
	FetchPriceHistory(ctx context.Context, ticker string, from, to int64, interval Timeframe) ([]PricePoint, error)
}

// EventSource supplies discrete events for one ticker.
type EventSource interface {
	// FetchEvents returns events in [from, to] ordered ascending by timestamp.
	FetchEvents(ctx context.Context, ticker string, from, to int64) ([]EventMarker, error)
}
