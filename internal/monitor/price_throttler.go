// internal/monitor/price_throttler.go
package monitor

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// PriceThrottler rate-limits price updates on their way to the UI so a
// fast sampling loop cannot overwhelm the render loop.
type PriceThrottler struct {
	mu             sync.RWMutex
	updateInterval time.Duration
	lastUpdate     time.Time
	pendingUpdate  *PriceUpdate
	outputCh       chan tea.Msg
	logger         *zap.Logger

	droppedUpdates uint64
	sentUpdates    uint64
}

// NewPriceThrottler creates a throttler emitting at most one update per
// interval onto outputCh.
func NewPriceThrottler(updateInterval time.Duration, outputCh chan tea.Msg, logger *zap.Logger) *PriceThrottler {
	return &PriceThrottler{
		updateInterval: updateInterval,
		outputCh:       outputCh,
		logger:         logger,
	}
}

// SendPriceUpdate forwards an update, holding it back as pending when
// one was sent within the interval. Safe for concurrent use.
func (pt *PriceThrottler) SendPriceUpdate(update PriceUpdate) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := time.Now()

	if now.Sub(pt.lastUpdate) < pt.updateInterval {
		pt.pendingUpdate = &update
		pt.droppedUpdates++
		pt.logger.Debug("Price update throttled",
			zap.Float64("price", update.PriceNative),
			zap.Duration("since_last", now.Sub(pt.lastUpdate)))
		return
	}

	select {
	case pt.outputCh <- update:
		pt.lastUpdate = now
		pt.sentUpdates++
		pt.pendingUpdate = nil
		pt.logger.Debug("Price update sent",
			zap.Float64("price", update.PriceNative),
			zap.Float64("percent", update.Percent))
	default:
		// Channel is full; keep the newest sample as pending.
		pt.pendingUpdate = &update
		pt.droppedUpdates++
		pt.logger.Warn("Price update channel full, storing as pending",
			zap.Float64("price", update.PriceNative))
	}
}

// FlushPending sends the held-back update once the interval has passed.
// Call periodically so the last sample of a burst is not lost.
func (pt *PriceThrottler) FlushPending() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.pendingUpdate == nil {
		return
	}

	now := time.Now()
	if now.Sub(pt.lastUpdate) >= pt.updateInterval {
		select {
		case pt.outputCh <- *pt.pendingUpdate:
			pt.lastUpdate = now
			pt.sentUpdates++
			pt.logger.Debug("Pending price update flushed",
				zap.Float64("price", pt.pendingUpdate.PriceNative))
			pt.pendingUpdate = nil
		default:
			pt.logger.Debug("Cannot flush pending update, channel still full")
		}
	}
}

// GetStats returns sent and dropped counts.
func (pt *PriceThrottler) GetStats() (sent, dropped uint64) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.sentUpdates, pt.droppedUpdates
}

// GetLastUpdate returns the last send time.
func (pt *PriceThrottler) GetLastUpdate() time.Time {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.lastUpdate
}

// HasPendingUpdate reports whether an update is held back.
func (pt *PriceThrottler) HasPendingUpdate() bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.pendingUpdate != nil
}
