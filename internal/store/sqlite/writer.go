package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to the database file, e.g. "data/signals.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// It archives closed bars, pipeline runs and engine snapshots.
type Writer struct {
	db *sql.DB
}

var _ model.KlineWriter = (*Writer)(nil)

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol   TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   REAL,
			PRIMARY KEY (symbol, interval, ts)
		);

		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			symbol     TEXT NOT NULL,
			interval   TEXT NOT NULL,
			rule       TEXT NOT NULL,
			set_name   TEXT NOT NULL,
			winning    INTEGER NOT NULL,
			losing     INTEGER NOT NULL,
			total      INTEGER NOT NULL,
			accuracy   REAL    NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS indicator_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads klines from ch and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Forming updates never hit the archive. Blocks until ctx is cancelled
// or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan model.Kline) {
	batch := make([]model.Kline, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.WriteBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d bars in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case k, ok := <-ch:
			if !ok {
				flush()
				return
			}
			if !k.Closed {
				continue
			}
			batch = append(batch, k)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteBatch inserts a batch of bars in a single transaction. Re-delivered
// bars replace their earlier row, so replays stay idempotent.
func (w *Writer) WriteBatch(kls []model.Kline) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, k := range kls {
		_, err := stmt.Exec(k.Symbol, string(k.Interval), k.Time, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LastTimestamp returns the last stored bar time for a symbol+interval.
// Returns 0 if no bars exist.
func (w *Writer) LastTimestamp(symbol string, interval model.Interval) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM bars WHERE symbol = ? AND interval = ?`,
		symbol, string(interval),
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// SaveSnapshotJSON persists a JSON-encoded engine snapshot and prunes the
// table to the last 10.
func (w *Writer) SaveSnapshotJSON(data []byte) error {
	_, err := w.db.Exec(`INSERT INTO indicator_snapshots (data) VALUES (?)`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.Exec(`DELETE FROM indicator_snapshots WHERE id NOT IN
		(SELECT id FROM indicator_snapshots ORDER BY created_at DESC, id DESC LIMIT 10)`)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}

	return nil
}

// RunRecord is one pipeline run as archived in the runs table.
type RunRecord struct {
	ID        string
	Symbol    string
	Interval  model.Interval
	Rule      string
	Set       string
	Counts    model.OutcomeCounts
	ElapsedMs int64
	CreatedAt int64
}

// InsertRun archives one finished pipeline run.
func (w *Writer) InsertRun(rec RunRecord) error {
	_, err := w.db.Exec(`
		INSERT OR REPLACE INTO runs
			(id, symbol, interval, rule, set_name, winning, losing, total, accuracy, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Symbol, string(rec.Interval), rec.Rule, rec.Set,
		rec.Counts.Winning, rec.Counts.Losing, rec.Counts.Total, rec.Counts.AccuracyPct,
		rec.ElapsedMs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite insert run: %w", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
