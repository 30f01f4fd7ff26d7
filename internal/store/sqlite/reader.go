package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"marketchart/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to the archive. It serves as a
// model.PriceSource and model.EventSource when the backend is unreachable,
// and as the data source of chartctl.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// FetchPriceHistory reads bars in [from, to] ordered by time ascending.
func (r *Reader) FetchPriceHistory(ctx context.Context, ticker string, from, to int64, tf model.Timeframe) ([]model.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM price_bars
		WHERE ticker = ? AND tf = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, ticker, string(tf), from, to)
	if err != nil {
		return nil, fmt.Errorf("sqlite query price_bars: %w", err)
	}
	defer rows.Close()

	var bars []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		if err := rows.Scan(&p.Time, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan price_bars: %w", err)
		}
		bars = append(bars, p)
	}
	return bars, rows.Err()
}

// LatestBars reads the most recent limit bars, ordered by time ascending.
func (r *Reader) LatestBars(ctx context.Context, ticker string, tf model.Timeframe, limit int) ([]model.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM price_bars
			WHERE ticker = ? AND tf = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, ticker, string(tf), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query latest price_bars: %w", err)
	}
	defer rows.Close()

	var bars []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		if err := rows.Scan(&p.Time, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan price_bars: %w", err)
		}
		bars = append(bars, p)
	}
	return bars, rows.Err()
}

// FetchEvents reads events in [from, to] ordered by timestamp ascending.
func (r *Reader) FetchEvents(ctx context.Context, ticker string, from, to int64) ([]model.EventMarker, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, ts, event_type, severity, sentiment_score
		FROM events
		WHERE ticker = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("sqlite query events: %w", err)
	}
	defer rows.Close()

	var events []model.EventMarker
	for rows.Next() {
		var e model.EventMarker
		if err := rows.Scan(&e.ID, &e.Title, &e.Timestamp, &e.EventType, &e.Severity, &e.SentimentScore); err != nil {
			return nil, fmt.Errorf("sqlite scan events: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Tickers lists the tickers with archived bars for a timeframe.
func (r *Reader) Tickers(ctx context.Context, tf model.Timeframe) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ticker FROM price_bars WHERE tf = ? ORDER BY ticker`, string(tf))
	if err != nil {
		return nil, fmt.Errorf("sqlite query tickers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
