// Package logging centralizes log-file path resolution and per-component
// *log.Logger construction: flat-file, standard-library logging with one
// file per component under the logs directory.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// New returns a *log.Logger that writes to both stderr and, if logsDir is
// non-empty, a file named "<component>.log" under it, opened in append mode.
// Every message is prefixed with "[component] " so log.Printf call
// sites stay attributable by file without passing a logger everywhere.
func New(logsDir, component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	w := io.Writer(os.Stderr)

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err == nil {
			path := filepath.Join(logsDir, component+".log")
			f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err == nil {
				w = io.MultiWriter(os.Stderr, f)
			}
		}
	}

	return log.New(w, prefix, log.LstdFlags)
}

// Discard returns a logger that writes nowhere, for tests that don't want
// log noise but still need a non-nil *log.Logger to satisfy a dependency.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
