// internal/monitor/history.go
package monitor

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/events"
	"github.com/hlhdaiaaii/trophy-token/internal/logger"
)

// PriceHistory keeps a bounded in-memory window of price samples and
// appends every sample to a CSV file for later analysis.
type PriceHistory struct {
	mu         sync.RWMutex
	csvWriter  *logger.SafeCSVWriter
	samples    []PriceUpdate
	maxSamples int
	logger     *zap.Logger

	totalSamples int
	minPrice     float64
	maxPrice     float64

	// Written only from the bus dispatch goroutine.
	sub      events.Subscription
	baseline float64
}

func historyCSVHeaders() []string {
	return []string{"timestamp", "price_native", "percent", "reserve_token", "reserve_native"}
}

// NewPriceHistory creates a history writing CSV under logDir.
func NewPriceHistory(logDir string, maxSamples int, zapLogger *zap.Logger) (*PriceHistory, error) {
	pricesDir := filepath.Join(logDir, "prices")

	filename := fmt.Sprintf("prices_%s.csv", time.Now().Format("20060102_150405"))
	csvPath := filepath.Join(pricesDir, filename)

	csvWriter, err := logger.NewSafeCSVWriter(csvPath, 30*time.Second, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	if err := csvWriter.WriteRecord(historyCSVHeaders()); err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	ph := &PriceHistory{
		csvWriter:  csvWriter,
		samples:    make([]PriceUpdate, 0, maxSamples),
		maxSamples: maxSamples,
		logger:     zapLogger,
	}

	zapLogger.Info("Price history initialized",
		zap.String("csv_file", csvPath),
		zap.Int("max_memory_samples", maxSamples))

	return ph, nil
}

// Record appends one sample.
func (ph *PriceHistory) Record(update PriceUpdate) error {
	ph.mu.Lock()
	defer ph.mu.Unlock()

	if update.At.IsZero() {
		update.At = time.Now()
	}

	record := []string{
		update.At.UTC().Format(time.RFC3339Nano),
		strconv.FormatFloat(update.PriceNative, 'f', -1, 64),
		strconv.FormatFloat(update.Percent, 'f', 2, 64),
		strconv.FormatFloat(update.ReserveToken, 'f', -1, 64),
		strconv.FormatFloat(update.ReserveNative, 'f', -1, 64),
	}
	if err := ph.csvWriter.WriteRecord(record); err != nil {
		ph.logger.Error("Failed to write price sample to CSV", zap.Error(err))
		return err
	}

	ph.samples = append(ph.samples, update)
	if len(ph.samples) > ph.maxSamples {
		ph.samples = ph.samples[1:]
	}

	ph.totalSamples++
	if ph.totalSamples == 1 || update.PriceNative < ph.minPrice {
		ph.minPrice = update.PriceNative
	}
	if update.PriceNative > ph.maxPrice {
		ph.maxPrice = update.PriceNative
	}
	return nil
}

// Attach subscribes the history to price updates on the bus. The first
// delivered sample anchors the percent-change baseline.
func (ph *PriceHistory) Attach(bus *events.Bus) {
	ph.sub = bus.SubscribeFunc(events.PriceUpdated, ph.onPrice)
}

// Detach removes the bus subscription.
func (ph *PriceHistory) Detach() {
	if ph.sub != nil {
		ph.sub.Unsubscribe()
		ph.sub = nil
	}
}

func (ph *PriceHistory) onPrice(_ context.Context, event events.Event) error {
	ev, ok := event.(*events.PriceUpdatedEvent)
	if !ok {
		return nil
	}

	price := unitsFloat(ev.PriceNative)
	if ph.baseline == 0 {
		ph.baseline = price
	}
	percent := 0.0
	if ph.baseline > 0 {
		percent = (price - ph.baseline) / ph.baseline * 100
	}

	return ph.Record(PriceUpdate{
		PriceNative:   price,
		InitialPrice:  ph.baseline,
		Percent:       percent,
		ReserveToken:  unitsFloat(ev.ReserveToken),
		ReserveNative: unitsFloat(ev.ReserveNative),
		At:            ev.Timestamp(),
	})
}

// Recent returns up to limit samples, newest last.
func (ph *PriceHistory) Recent(limit int) []PriceUpdate {
	ph.mu.RLock()
	defer ph.mu.RUnlock()

	if limit <= 0 || limit > len(ph.samples) {
		limit = len(ph.samples)
	}
	out := make([]PriceUpdate, limit)
	copy(out, ph.samples[len(ph.samples)-limit:])
	return out
}

// Stats returns the sample count and the observed price range.
func (ph *PriceHistory) Stats() (total int, min, max float64) {
	ph.mu.RLock()
	defer ph.mu.RUnlock()
	return ph.totalSamples, ph.minPrice, ph.maxPrice
}

// Close flushes and closes the CSV file.
func (ph *PriceHistory) Close() error {
	ph.Detach()
	return ph.csvWriter.Close()
}

// unitsFloat converts an 18-dec fixed-point amount to whole units,
// accepting float truncation for display and history purposes.
func unitsFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f / 1e18
}
