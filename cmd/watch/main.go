package main

import (
	"context"
	"flag"
	"log"
	"math/big"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/app"
	"github.com/hlhdaiaaii/trophy-token/internal/config"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
	"github.com/hlhdaiaaii/trophy-token/internal/logger"
	"github.com/hlhdaiaaii/trophy-token/internal/monitor"
	"github.com/hlhdaiaaii/trophy-token/internal/ui"
)

const (
	logBufferSize    = 500
	throttleInterval = 250 * time.Millisecond
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// All logging goes through the buffer; stdout belongs to the TUI.
	buffer, err := logger.NewLogBuffer(logBufferSize,
		filepath.Join("logs", "watch_spill.log"), zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to create log buffer: %v", err)
	}
	flushDone := buffer.StartPeriodicFlush(5 * time.Second)
	defer func() {
		close(flushDone)
		_ = buffer.Close()
	}()

	appLogger, err := logger.CreateTUILoggerWithBuffer(cfg.DebugLogging, buffer)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	runner, err := app.NewRunner(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize runner: %v", err)
	}
	defer runner.Close()

	// Price events fan through the throttler so a busy pool cannot
	// flood the render loop.
	msgCh := make(chan tea.Msg, 64)
	throttler := monitor.NewPriceThrottler(throttleInterval, msgCh, appLogger)

	var initialPrice float64
	sub := runner.Bus().SubscribeFunc(events.PriceUpdated, func(_ context.Context, e events.Event) error {
		pe, ok := e.(*events.PriceUpdatedEvent)
		if !ok {
			return nil
		}
		price := unitsFloat(pe.PriceNative)
		if initialPrice == 0 {
			initialPrice = price
		}
		percent := 0.0
		if initialPrice > 0 {
			percent = (price - initialPrice) / initialPrice * 100
		}
		throttler.SendPriceUpdate(monitor.PriceUpdate{
			PriceNative:   price,
			InitialPrice:  initialPrice,
			Percent:       percent,
			ReserveToken:  unitsFloat(pe.ReserveToken),
			ReserveNative: unitsFloat(pe.ReserveNative),
			At:            pe.Timestamp(),
		})
		return nil
	})
	defer sub.Unsubscribe()

	// Drain held-back samples so the last update of a burst lands.
	go func() {
		ticker := time.NewTicker(throttleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				throttler.FlushPending()
			case <-rootCtx.Done():
				return
			}
		}
	}()

	program := tea.NewProgram(
		ui.NewDashboard(runner.Controller(), runner.Ledger(), buffer, msgCh),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	go func() {
		if err := runner.Run(rootCtx); err != nil {
			appLogger.Error("Runner failed", zap.Error(err))
		}
	}()

	go func() {
		if _, err := program.Run(); err != nil {
			appLogger.Error("TUI application failed", zap.Error(err))
		}
		stop()
	}()

	<-rootCtx.Done()
	program.Quit()
}

func unitsFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f / 1e18
}
