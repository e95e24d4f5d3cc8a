package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink stores rows in the biou_results table of a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDSN)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS biou_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		label TEXT NOT NULL,
		mode TEXT NOT NULL,
		score REAL NOT NULL,
		correct BOOLEAN NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_biou_results_label ON biou_results(label, mode);
	`)
	return err
}

// Write implements Sink.
func (s *SQLiteSink) Write(ctx context.Context, r Row) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO biou_results (filename, label, mode, score, correct) VALUES (?, ?, ?, ?, ?)`,
		r.Filename, r.Label, r.Mode, r.Score, r.Correct)
	if err != nil {
		return fmt.Errorf("failed to insert result for %s: %w", r.Filename, err)
	}
	return nil
}

// List implements Lister in insertion order.
func (s *SQLiteSink) List(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT filename, label, mode, score, correct FROM biou_results ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Filename, &r.Label, &r.Mode, &r.Score, &r.Correct); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close implements Sink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
