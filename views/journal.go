package views

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// CSVWriter is a buffered, mutex-guarded CSV journal. HTTP handlers add
// rows concurrently; the owning controller flushes it on a timer, so a
// request never waits on disk I/O.
type CSVWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows uint64
	err  error
}

// NewCSVWriter opens path for appending. The header is written only when
// the file is new or empty, so a reopened journal keeps a single header.
func NewCSVWriter(path string, bufSizeBytes int, writeHeader bool, header []string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat journal %s: %w", path, err)
	}

	if bufSizeBytes <= 0 {
		bufSizeBytes = 64 * 1024
	}
	bw := bufio.NewWriterSize(f, bufSizeBytes)
	w := &CSVWriter{file: f, buf: bw, csv: csv.NewWriter(bw)}

	if writeHeader && len(header) > 0 && info.Size() == 0 {
		if err := w.csv.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write journal header: %w", err)
		}
	}
	return w, nil
}

// WriteRow appends one row. Write errors are kept and reported by Err.
func (w *CSVWriter) WriteRow(row []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.csv.Write(row); err != nil && w.err == nil {
		w.err = err
	}
	w.rows++
}

// Flush pushes buffered rows to the file.
func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *CSVWriter) flushLocked() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil && w.err == nil {
		w.err = err
	}
	if err := w.buf.Flush(); err != nil && w.err == nil {
		w.err = err
	}
	return w.err
}

// Close flushes and closes the file.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ferr := w.flushLocked()
	if err := w.file.Close(); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}

// Err is the first write or flush error seen, if any.
func (w *CSVWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Rows counts data rows written since open (the header excluded).
func (w *CSVWriter) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}
