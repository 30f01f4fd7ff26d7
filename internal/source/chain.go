// Package source chains the chart's data sources: the dashboard backend
// first, the local SQLite archive when the backend fails. Bars and events
// fetched from the backend are written through to the archive.
package source

import (
	"context"
	"errors"
	"fmt"
	"log"

	"marketchart/internal/metrics"
	"marketchart/internal/model"
	"marketchart/internal/store/sqlite"
)

// Archive is the local fallback store.
type Archive interface {
	model.PriceSource
	model.EventSource
}

// EventWriter persists fetched events.
type EventWriter interface {
	WriteEvents(ticker string, events []model.EventMarker) error
}

// Chain implements model.PriceSource and model.EventSource.
type Chain struct {
	Prices model.PriceSource
	Events model.EventSource

	// Optional
	Archive     Archive
	BarSink     chan<- sqlite.BarBatch
	EventWriter EventWriter
	Health      *metrics.HealthStatus
}

// FetchPriceHistory asks the backend, then the archive.
func (c *Chain) FetchPriceHistory(ctx context.Context, ticker string, from, to int64, tf model.Timeframe) ([]model.PricePoint, error) {
	bars, err := c.Prices.FetchPriceHistory(ctx, ticker, from, to, tf)
	if err == nil {
		c.backendOK(true)
		c.archiveBars(ticker, tf, bars)
		return bars, nil
	}
	// A cancelled fetch belongs to a view that is gone; nobody wants the
	// archive answer either.
	if ctx.Err() != nil || c.Archive == nil {
		return nil, err
	}
	c.backendOK(false)

	archived, aerr := c.Archive.FetchPriceHistory(ctx, ticker, from, to, tf)
	if aerr != nil {
		return nil, errors.Join(err, fmt.Errorf("archive: %w", aerr))
	}
	if len(archived) == 0 {
		return nil, err
	}
	log.Printf("[source] %s/%s: %d bars from archive, backend error: %v", ticker, tf, len(archived), err)
	return archived, nil
}

// FetchEvents asks the backend, then the archive.
func (c *Chain) FetchEvents(ctx context.Context, ticker string, from, to int64) ([]model.EventMarker, error) {
	events, err := c.Events.FetchEvents(ctx, ticker, from, to)
	if err == nil {
		if c.EventWriter != nil && len(events) > 0 {
			if werr := c.EventWriter.WriteEvents(ticker, events); werr != nil {
				log.Printf("[source] archive events %s: %v", ticker, werr)
			}
		}
		return events, nil
	}
	if ctx.Err() != nil || c.Archive == nil {
		return nil, err
	}

	archived, aerr := c.Archive.FetchEvents(ctx, ticker, from, to)
	if aerr != nil {
		return nil, errors.Join(err, fmt.Errorf("archive: %w", aerr))
	}
	if len(archived) == 0 {
		return nil, err
	}
	log.Printf("[source] %s: %d events from archive, backend error: %v", ticker, len(archived), err)
	return archived, nil
}

// archiveBars hands bars to the archive writer without blocking the fetch.
func (c *Chain) archiveBars(ticker string, tf model.Timeframe, bars []model.PricePoint) {
	if c.BarSink == nil || len(bars) == 0 {
		return
	}
	select {
	case c.BarSink <- sqlite.BarBatch{Ticker: ticker, Timeframe: tf, Bars: bars}:
	default:
		log.Printf("[source] archive queue full, dropping %d bars for %s/%s", len(bars), ticker, tf)
	}
}

func (c *Chain) backendOK(ok bool) {
	if c.Health != nil {
		c.Health.SetBackendOK(ok)
	}
}
