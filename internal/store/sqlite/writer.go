package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"marketchart/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/charts.db"
}

// BarBatch is a run of bars for one ticker and timeframe, as fetched.
type BarBatch struct {
	Ticker    string
	Timeframe model.Timeframe
	Bars      []model.PricePoint
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB
}

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Create table if not exists
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS price_bars (
			ticker     TEXT    NOT NULL,
			tf         TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (ticker, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS events (
			id              TEXT    PRIMARY KEY,
			ticker          TEXT    NOT NULL,
			ts              INTEGER NOT NULL,
			title           TEXT    NOT NULL,
			event_type      TEXT    NOT NULL,
			severity        REAL    NOT NULL DEFAULT 0,
			sentiment_score REAL    NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_events_ticker_ts ON events (ticker, ts);
	`)
	return err
}

// Run reads bar batches from batchCh and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or batchCh is closed.
func (w *Writer) Run(ctx context.Context, batchCh <-chan BarBatch) {
	pending := make([]BarBatch, 0, 8)
	bars := 0
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatches(pending); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d bars in %v", bars, time.Since(start))
		}
		pending = pending[:0]
		bars = 0
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case b, ok := <-batchCh:
			if !ok {
				flush()
				return
			}
			pending = append(pending, b)
			bars += len(b.Bars)
			if bars >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteBars stores one batch synchronously.
func (w *Writer) WriteBars(ticker string, tf model.Timeframe, bars []model.PricePoint) error {
	return w.insertBatches([]BarBatch{{Ticker: ticker, Timeframe: tf, Bars: bars}})
}

// insertBatches inserts all bars in a single transaction.
func (w *Writer) insertBatches(batches []BarBatch) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO price_bars (ticker, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range batches {
		for _, p := range b.Bars {
			_, err := stmt.Exec(b.Ticker, string(b.Timeframe), p.Time, p.Open, p.High, p.Low, p.Close, p.Volume)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("insert %s/%s@%d: %w", b.Ticker, b.Timeframe, p.Time, err)
			}
		}
	}

	return tx.Commit()
}

// WriteEvents upserts events for a ticker.
func (w *Writer) WriteEvents(ticker string, events []model.EventMarker) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO events (id, ticker, ts, title, event_type, severity, sentiment_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(e.ID, ticker, e.Timestamp, e.Title, e.EventType, e.Severity, e.SentimentScore); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored bar time for a ticker and timeframe.
// Returns 0 if no bars exist.
func (w *Writer) GetLastTimestamp(ticker string, tf model.Timeframe) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM price_bars WHERE ticker = ? AND tf = ?`,
		ticker, string(tf),
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
