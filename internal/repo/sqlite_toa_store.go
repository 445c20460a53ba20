package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/miradorstack/autotoa/internal/models"
)

// SQLiteTOAStore persists TOAs to a SQLite table, tagged with the run id so
// several runs can share one database.
type SQLiteTOAStore struct {
	db     *sql.DB
	insert *sql.Stmt
	runID  string
	next   int64
}

// NewSQLiteTOAStore opens (or creates) the database at path and ensures the schema exists.
func NewSQLiteTOAStore(path, runID string) (*SQLiteTOAStore, error) {
	if runID == "" {
		return nil, errors.New("toa store: run id must be set")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("toa store: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("toa store: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initTOASchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("toa store: schema: %w", err)
	}
	insert, err := db.Prepare(`INSERT INTO toas
    (run_id, seq, file, subint, chan, frequency_mhz, mjd_day, mjd_frac, mjd, error_us, site, snr)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("toa store: prepare: %w", err)
	}
	store := &SQLiteTOAStore{db: db, insert: insert, runID: runID}
	if err := db.QueryRow(`SELECT COALESCE(MAX(seq) + 1, 0) FROM toas WHERE run_id = ?`, runID).Scan(&store.next); err != nil {
		store.Close()
		return nil, fmt.Errorf("toa store: resume seq: %w", err)
	}
	return store, nil
}

func initTOASchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS toas (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    file TEXT,
    subint INTEGER,
    chan INTEGER,
    frequency_mhz REAL,
    mjd_day INTEGER,
    mjd_frac REAL,
    mjd TEXT,
    error_us REAL,
    site TEXT,
    snr REAL
);`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_toas_run ON toas(run_id, seq)`)
	return err
}

// Write inserts one TOA. seq preserves the processing order.
func (s *SQLiteTOAStore) Write(ctx context.Context, toa models.TOA) error {
	_, err := s.insert.ExecContext(ctx,
		s.runID, s.next, toa.File, toa.Subint, toa.Chan, toa.Frequency,
		toa.Arrival.Day, toa.Arrival.Frac, toa.Arrival.String(), toa.ErrorMicros, toa.Telescope, toa.SNR)
	if err != nil {
		return fmt.Errorf("toa store: insert: %w", err)
	}
	s.next++
	return nil
}

// Close releases the prepared statement and the database handle.
func (s *SQLiteTOAStore) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	return s.db.Close()
}
