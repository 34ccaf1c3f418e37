package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SafeCSVWriter appends CSV records to a file from multiple goroutines,
// flushing on a fixed interval so a crash loses at most one window of
// samples. Headers are the caller's concern; an appended file keeps its
// own.
type SafeCSVWriter struct {
	mu   sync.Mutex
	w    *csv.Writer
	file *os.File

	ticker *time.Ticker
	done   chan struct{}
	logger *zap.Logger
	path   string

	records uint64
	flushes uint64
}

// NewSafeCSVWriter opens (or creates) the file at path in append mode
// and starts the periodic flush loop.
func NewSafeCSVWriter(path string, flushInterval time.Duration, logger *zap.Logger) (*SafeCSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	scw := &SafeCSVWriter{
		w:      csv.NewWriter(file),
		file:   file,
		ticker: time.NewTicker(flushInterval),
		done:   make(chan struct{}),
		logger: logger,
		path:   path,
	}
	go scw.flushLoop()

	return scw, nil
}

// WriteRecord appends one CSV record.
func (scw *SafeCSVWriter) WriteRecord(record []string) error {
	scw.mu.Lock()
	defer scw.mu.Unlock()

	if err := scw.w.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	scw.records++
	return nil
}

// Flush forces buffered records onto disk.
func (scw *SafeCSVWriter) Flush() error {
	scw.mu.Lock()
	defer scw.mu.Unlock()
	return scw.flushLocked()
}

func (scw *SafeCSVWriter) flushLocked() error {
	scw.w.Flush()
	if err := scw.w.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := scw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	scw.flushes++
	return nil
}

func (scw *SafeCSVWriter) flushLoop() {
	for {
		select {
		case <-scw.ticker.C:
			if err := scw.Flush(); err != nil {
				scw.logger.Error("Periodic CSV flush failed",
					zap.String("file", scw.path),
					zap.Error(err))
			}
		case <-scw.done:
			return
		}
	}
}

// Close stops the flush loop, writes out remaining records and closes
// the file.
func (scw *SafeCSVWriter) Close() error {
	close(scw.done)
	scw.ticker.Stop()

	scw.mu.Lock()
	defer scw.mu.Unlock()

	scw.w.Flush()
	if err := scw.w.Error(); err != nil {
		return fmt.Errorf("CSV writer error on close: %w", err)
	}
	if err := scw.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	scw.logger.Info("CSV writer closed",
		zap.String("file", scw.path),
		zap.Uint64("records", scw.records),
		zap.Uint64("flushes", scw.flushes))
	return nil
}

// GetStats returns the written record and flush counts.
func (scw *SafeCSVWriter) GetStats() (records, flushes uint64) {
	scw.mu.Lock()
	defer scw.mu.Unlock()
	return scw.records, scw.flushes
}
