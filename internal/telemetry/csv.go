package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/roach88/npu/internal/engine"
)

// CSVWriter appends BurstRecords to a CSV stream. The header is written
// with the first record only.
type CSVWriter struct {
	mu            sync.Mutex
	w             io.Writer
	closer        io.Closer
	headerWritten bool
	rows          int
	err           error
}

var _ engine.Observer = (*CSVWriter)(nil)

// NewCSVWriter wraps w. The caller keeps ownership of w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: w}
}

// CreateCSV creates (or truncates) the file at path. Returns nil if path
// is empty (output disabled); every method is a no-op on a nil writer.
func CreateCSV(path string) (*CSVWriter, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating telemetry directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	return &CSVWriter{w: f, closer: f}, nil
}

// Write appends one record.
func (c *CSVWriter) Write(rec BurstRecord) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	records := []BurstRecord{rec}
	if !c.headerWritten {
		if err := gocsv.Marshal(records, c.w); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		c.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, c.w); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
	}
	c.rows++
	return nil
}

// ObserveBurst implements engine.Observer. The first write error is kept
// and returned by Err.
func (c *CSVWriter) ObserveBurst(r *engine.StepResult) {
	if c == nil {
		return
	}
	if err := c.Write(RecordFromStep(r)); err != nil {
		c.mu.Lock()
		if c.err == nil {
			c.err = err
		}
		c.mu.Unlock()
	}
}

// Rows returns how many records have been written.
func (c *CSVWriter) Rows() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// Err returns the first error seen by ObserveBurst.
func (c *CSVWriter) Err() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the underlying file if CreateCSV opened it.
func (c *CSVWriter) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// ReadCSV parses records written by a CSVWriter.
func ReadCSV(r io.Reader) ([]BurstRecord, error) {
	var records []BurstRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("reading telemetry: %w", err)
	}
	return records, nil
}
