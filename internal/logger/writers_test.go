package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSafeCSVWriterConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")

	writer, err := NewSafeCSVWriter(path, 50*time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	workers := 5
	recordsPerWorker := 50

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < recordsPerWorker; j++ {
				record := []string{
					time.Now().Format(time.RFC3339),
					fmt.Sprintf("acc:purchaser_%d", id),
					fmt.Sprintf("%d", j),
					"0.4",
				}
				assert.NoError(t, writer.WriteRecord(record))
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, writer.Close())

	records, _ := writer.GetStats()
	assert.Equal(t, uint64(workers*recordsPerWorker), records)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, workers*recordsPerWorker)
}

func TestSafeCSVWriterPeriodicFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flush.csv")

	writer, err := NewSafeCSVWriter(path, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer writer.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, writer.WriteRecord([]string{fmt.Sprintf("row-%d", i)}))
		time.Sleep(15 * time.Millisecond)
	}

	_, flushes := writer.GetStats()
	assert.GreaterOrEqual(t, flushes, uint64(2),
		"the flush loop should have fired between writes")
}
