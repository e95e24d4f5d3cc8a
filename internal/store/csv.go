package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// CSVHeader is the column layout of CSV result files.
var CSVHeader = []string{"Filename", "Type", "BIoU", "Mode", "Correct"}

// CSVSink writes rows as CSV.
type CSVSink struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
}

// NewCSV creates (or truncates) a CSV file and writes the header.
func NewCSV(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create results file: %w", err)
	}
	s, err := NewCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewCSVWriter writes CSV rows to w. Close flushes but does not close w.
func NewCSVWriter(w io.Writer) (*CSVSink, error) {
	s := &CSVSink{w: csv.NewWriter(w)}
	if err := s.w.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("failed to write results header: %w", err)
	}
	return s, nil
}

// Write implements Sink.
func (s *CSVSink) Write(_ context.Context, r Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write([]string{
		r.Filename,
		r.Label,
		strconv.FormatFloat(r.Score, 'f', 6, 64),
		r.Mode,
		strconv.FormatBool(r.Correct),
	}); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close implements Sink.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
