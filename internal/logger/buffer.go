package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LogEntry is a single captured log line.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogBuffer is a thread-safe ring buffer for logs with a file spill.
// The TUI reads recent entries from it instead of stdout.
type LogBuffer struct {
	mu           sync.Mutex
	ringBuffer   []LogEntry
	maxSize      int
	currentIndex int
	wrapped      bool
	spillFile    *os.File
	spillWriter  *bufio.Writer
	logger       *zap.Logger

	totalEntries   uint64
	spilledEntries uint64
}

// NewLogBuffer creates a buffer holding maxSize entries in memory;
// older entries spill to the given file.
func NewLogBuffer(maxSize int, spillFilePath string, logger *zap.Logger) (*LogBuffer, error) {
	dir := filepath.Dir(spillFilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	spillFile, err := os.OpenFile(spillFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open spill file: %w", err)
	}

	return &LogBuffer{
		ringBuffer:  make([]LogEntry, maxSize),
		maxSize:     maxSize,
		spillFile:   spillFile,
		spillWriter: bufio.NewWriter(spillFile),
		logger:      logger,
	}, nil
}

// Write implements io.Writer for zapcore. Each call carries one JSON
// encoded log line from the buffer core.
func (lb *LogBuffer) Write(p []byte) (int, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(p, &raw); err != nil {
		// Not a JSON line; keep the raw text rather than losing it.
		return len(p), lb.Add("info", string(p), nil)
	}

	level, _ := raw["level"].(string)
	msg, _ := raw["msg"].(string)
	delete(raw, "level")
	delete(raw, "msg")
	delete(raw, "time")

	fields := raw
	if len(fields) == 0 {
		fields = nil
	}
	return len(p), lb.Add(level, msg, fields)
}

// Add appends a log entry, spilling the oldest once the ring is full.
func (lb *LogBuffer) Add(level, message string, fields map[string]interface{}) error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Fields:    fields,
	}

	lb.ringBuffer[lb.currentIndex] = entry
	lb.currentIndex = (lb.currentIndex + 1) % lb.maxSize

	if lb.currentIndex == 0 && lb.totalEntries > 0 {
		lb.wrapped = true
	}
	lb.totalEntries++

	if lb.wrapped {
		oldest := lb.ringBuffer[lb.currentIndex]
		if err := lb.spillToFile(oldest); err != nil {
			return err
		}
		lb.spilledEntries++
	}
	return nil
}

func (lb *LogBuffer) spillToFile(entry LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	if _, err := lb.spillWriter.Write(data); err != nil {
		return fmt.Errorf("failed to write to spill file: %w", err)
	}
	if _, err := lb.spillWriter.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	// Flushing is periodic, not per write.
	return nil
}

// GetRecentLogs returns the most recent entries, oldest first.
func (lb *LogBuffer) GetRecentLogs(limit int) []LogEntry {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	count := lb.currentIndex
	startIndex := 0
	if lb.wrapped {
		count = lb.maxSize
		startIndex = lb.currentIndex
	}
	if limit > 0 && limit < count {
		startIndex = (startIndex + count - limit) % lb.maxSize
		count = limit
	}

	logs := make([]LogEntry, 0, count)
	for i := 0; i < count; i++ {
		logs = append(logs, lb.ringBuffer[(startIndex+i)%lb.maxSize])
	}
	return logs
}

// Flush forces buffered spill data to disk.
func (lb *LogBuffer) Flush() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if err := lb.spillWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush spill writer: %w", err)
	}
	if err := lb.spillFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync spill file: %w", err)
	}
	return nil
}

// Close spills everything still in memory and closes the file.
func (lb *LogBuffer) Close() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	count := lb.currentIndex
	start := 0
	if lb.wrapped {
		count = lb.maxSize
		start = lb.currentIndex
	}
	for i := 0; i < count; i++ {
		if err := lb.spillToFile(lb.ringBuffer[(start+i)%lb.maxSize]); err != nil {
			lb.logger.Error("Failed to spill entry during close", zap.Error(err))
		}
	}

	if err := lb.spillWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush during close: %w", err)
	}
	if err := lb.spillFile.Close(); err != nil {
		return fmt.Errorf("failed to close spill file: %w", err)
	}
	return nil
}

// GetStats returns total and spilled entry counts.
func (lb *LogBuffer) GetStats() (total, spilled uint64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.totalEntries, lb.spilledEntries
}

// StartPeriodicFlush flushes the spill file on an interval until the
// returned channel is closed.
func (lb *LogBuffer) StartPeriodicFlush(interval time.Duration) chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := lb.Flush(); err != nil {
					lb.logger.Error("Periodic flush failed", zap.Error(err))
				}
			case <-done:
				return
			}
		}
	}()
	return done
}
