// Package logging provides subsystem-prefixed loggers that share one
// redirectable output.
package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu  sync.RWMutex
	out io.Writer = os.Stderr
)

type sharedWriter struct{}

func (sharedWriter) Write(p []byte) (int, error) {
	mu.RLock()
	w := out
	mu.RUnlock()
	return w.Write(p)
}

// New returns a logger whose messages carry a "[subsystem] " prefix.
func New(subsystem string) *log.Logger {
	return log.New(sharedWriter{}, "["+subsystem+"] ", log.LstdFlags|log.Lmsgprefix)
}

// SetOutput redirects every logger created by New.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// Discard silences every logger created by New.
func Discard() {
	SetOutput(io.Discard)
}
