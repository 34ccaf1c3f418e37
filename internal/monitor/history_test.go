package monitor

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
)

func TestPriceHistoryRecordAndRecent(t *testing.T) {
	dir := t.TempDir()
	ph, err := NewPriceHistory(dir, 3, zap.NewNop())
	require.NoError(t, err)
	defer ph.Close()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	prices := []float64{0.00005, 0.00006, 0.00004, 0.00007}
	for i, p := range prices {
		require.NoError(t, ph.Record(PriceUpdate{
			PriceNative: p,
			Percent:     float64(i),
			At:          at.Add(time.Duration(i) * time.Second),
		}))
	}

	// Memory window keeps only the newest three.
	recent := ph.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, 0.00006, recent[0].PriceNative)
	assert.Equal(t, 0.00007, recent[2].PriceNative)

	one := ph.Recent(1)
	require.Len(t, one, 1)
	assert.Equal(t, 0.00007, one[0].PriceNative)

	total, min, max := ph.Stats()
	assert.Equal(t, 4, total)
	assert.Equal(t, 0.00004, min)
	assert.Equal(t, 0.00007, max)
}

func TestPriceHistoryRecordsBusUpdates(t *testing.T) {
	dir := t.TempDir()
	ph, err := NewPriceHistory(dir, 10, zap.NewNop())
	require.NoError(t, err)
	defer ph.Close()

	bus := events.NewBus(zap.NewNop(), 16)
	defer bus.Close()
	ph.Attach(bus)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, bus.PublishSync(ctx, &events.PriceUpdatedEvent{
		BaseEvent:     events.At(events.PriceUpdated, at),
		PriceNative:   chain.MustParseUnits("0.00005"),
		ReserveToken:  chain.MustParseUnits("14000"),
		ReserveNative: chain.MustParseUnits("0.7"),
	}))
	require.NoError(t, bus.PublishSync(ctx, &events.PriceUpdatedEvent{
		BaseEvent:     events.At(events.PriceUpdated, at.Add(time.Second)),
		PriceNative:   chain.MustParseUnits("0.00006"),
		ReserveToken:  chain.MustParseUnits("14000"),
		ReserveNative: chain.MustParseUnits("0.84"),
	}))

	recent := ph.Recent(0)
	require.Len(t, recent, 2)
	assert.InDelta(t, 0.00005, recent[0].PriceNative, 1e-12)
	assert.InDelta(t, 0, recent[0].Percent, 1e-9)
	// The first sample is the baseline; the second is 20% above it.
	assert.InDelta(t, 20, recent[1].Percent, 1e-6)
	assert.Equal(t, at.Add(time.Second), recent[1].At)

	ph.Detach()
	require.NoError(t, bus.PublishSync(ctx, &events.PriceUpdatedEvent{
		BaseEvent:   events.At(events.PriceUpdated, at.Add(2*time.Second)),
		PriceNative: chain.MustParseUnits("0.00007"),
	}))
	assert.Len(t, ph.Recent(0), 2)
}

func TestPriceHistoryCSVOutput(t *testing.T) {
	dir := t.TempDir()
	ph, err := NewPriceHistory(dir, 10, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, ph.Record(PriceUpdate{
		PriceNative:   0.00005,
		Percent:       25,
		ReserveToken:  14000,
		ReserveNative: 0.7,
		At:            time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, ph.Close())

	files, err := filepath.Glob(filepath.Join(dir, "prices", "prices_*.csv"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, historyCSVHeaders(), rows[0])
	assert.Equal(t, "0.00005", rows[1][1])
	assert.Equal(t, "25.00", rows[1][2])
}
