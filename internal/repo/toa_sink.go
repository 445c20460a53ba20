package repo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/miradorstack/autotoa/internal/models"
)

// TOASink receives TOAs in processing order.
type TOASink interface {
	Write(ctx context.Context, toa models.TOA) error
	Close() error
}

// OpenTOASink chooses a SQLite store for .db/.sqlite paths and a tempo2
// text file otherwise.
func OpenTOASink(path, runID string) (TOASink, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteTOAStore(path, runID)
	default:
		return CreateTimFile(path)
	}
}

// TimWriter streams TOAs as a tempo2 FORMAT 1 .tim file.
type TimWriter struct {
	w      *bufio.Writer
	closer io.Closer
}

// NewTimWriter writes the FORMAT header to w immediately.
func NewTimWriter(w io.Writer) (*TimWriter, error) {
	tw := &TimWriter{w: bufio.NewWriter(w)}
	if _, err := tw.w.WriteString("FORMAT 1\n"); err != nil {
		return nil, fmt.Errorf("tim header: %w", err)
	}
	return tw, nil
}

// CreateTimFile truncates or creates path and returns a writer for it.
func CreateTimFile(path string) (*TimWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tim file: ensure dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("tim file: %w", err)
	}
	tw, err := NewTimWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	tw.closer = f
	return tw, nil
}

// Write appends one TOA line.
func (t *TimWriter) Write(_ context.Context, toa models.TOA) error {
	if _, err := t.w.WriteString(toa.Line() + "\n"); err != nil {
		return fmt.Errorf("write toa: %w", err)
	}
	return nil
}

// Close flushes buffered lines and closes the underlying file, if any.
func (t *TimWriter) Close() error {
	err := t.w.Flush()
	if t.closer != nil {
		if cerr := t.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
