// Package store persists per-input classification results.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Row is one result line: the input file, its dataset label, the pipeline
// mode that produced the score, and whether the verdict matched the label.
type Row struct {
	Filename string
	Label    string // "real" or "synthetic"
	Mode     string // "eye", "face" or "video"
	Score    float64
	Correct  bool
}

// Sink receives result rows. Implementations are safe for concurrent Write.
type Sink interface {
	Write(ctx context.Context, r Row) error
	Close() error
}

// Lister is implemented by sinks that can read their rows back.
type Lister interface {
	List(ctx context.Context) ([]Row, error)
}

// ErrUnsupportedDSN is returned for result DSNs with an unknown scheme.
var ErrUnsupportedDSN = errors.New("store: unsupported results DSN")

// Open returns the database sink for dsn: "sqlite3://<path>" or
// "postgres://..." / "postgresql://...".
func Open(ctx context.Context, dsn string) (Sink, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite3://"):
		return NewSQLite(strings.TrimPrefix(dsn, "sqlite3://"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}
}

// Multi fans rows out to several sinks.
type Multi []Sink

// Write writes to every sink and joins their errors.
func (m Multi) Write(ctx context.Context, r Row) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
