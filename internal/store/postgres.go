package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// PostgresSink stores rows in the biou_results table of a PostgreSQL
// database. A single connection is shared under a mutex.
type PostgresSink struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// NewPostgres connects and ensures the schema exists.
func NewPostgres(ctx context.Context, connString string) (*PostgresSink, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &PostgresSink{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS biou_results (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT NOT NULL,
			label TEXT NOT NULL,
			mode TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			correct BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS biou_results_label_idx ON biou_results (label, mode);
	`)
	return err
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, r Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO biou_results (filename, label, mode, score, correct)
		VALUES ($1, $2, $3, $4, $5)
	`, r.Filename, r.Label, r.Mode, r.Score, r.Correct)
	if err != nil {
		return fmt.Errorf("failed to insert result for %s: %w", r.Filename, err)
	}
	return nil
}

// List implements Lister in insertion order.
func (s *PostgresSink) List(ctx context.Context) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.conn.Query(ctx,
		`SELECT filename, label, mode, score, correct FROM biou_results ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var r Row
		err := row.Scan(&r.Filename, &r.Label, &r.Mode, &r.Score, &r.Correct)
		return r, err
	})
}

// Close implements Sink. The main context may already be cancelled, so the
// connection is closed with a fresh one.
func (s *PostgresSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close(context.Background())
}
