package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	"signal-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backfill, replay and
// snapshot restore.
type Reader struct {
	db *sql.DB
}

var _ model.KlineReader = (*Reader)(nil)

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

// ReadRange reads stored bars for a symbol+interval with ts in
// [fromTS, toTS], ordered by timestamp ascending for correct replay order.
// toTS <= 0 means no upper bound.
func (r *Reader) ReadRange(symbol string, interval model.Interval, fromTS, toTS int64) ([]model.Kline, error) {
	query := `
		SELECT symbol, interval, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND interval = ? AND ts >= ?`
	args := []any{symbol, string(interval), fromTS}
	if toTS > 0 {
		query += ` AND ts <= ?`
		args = append(args, toTS)
	}
	query += ` ORDER BY ts ASC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var kls []model.Kline
	for rows.Next() {
		var (
			k   model.Kline
			iv  string
			vol sql.NullFloat64
		)
		if err := rows.Scan(&k.Symbol, &iv, &k.Time, &k.Open, &k.High, &k.Low, &k.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		k.Interval = model.Interval(iv)
		k.Volume = vol.Float64
		k.Closed = true
		kls = append(kls, k)
	}
	return kls, rows.Err()
}

// ReadLatestSnapshotJSON loads the most recent engine snapshot as raw JSON.
// Returns nil, nil if no snapshot exists.
func (r *Reader) ReadLatestSnapshotJSON() ([]byte, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM indicator_snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // no snapshot
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// RecentRuns returns the newest archived runs, most recent first.
func (r *Reader) RecentRuns(limit int) ([]RunRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, symbol, interval, rule, set_name, winning, losing, total, accuracy, elapsed_ms, created_at
		FROM runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var (
			rec RunRecord
			iv  string
		)
		if err := rows.Scan(&rec.ID, &rec.Symbol, &iv, &rec.Rule, &rec.Set,
			&rec.Counts.Winning, &rec.Counts.Losing, &rec.Counts.Total, &rec.Counts.AccuracyPct,
			&rec.ElapsedMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan runs: %w", err)
		}
		rec.Interval = model.Interval(iv)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
