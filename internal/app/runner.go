// internal/app/runner.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hlhdaiaaii/trophy-token/internal/amm"
	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/config"
	"github.com/hlhdaiaaii/trophy-token/internal/crowdsale"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
	"github.com/hlhdaiaaii/trophy-token/internal/export"
	"github.com/hlhdaiaaii/trophy-token/internal/metrics"
	"github.com/hlhdaiaaii/trophy-token/internal/monitor"
	"github.com/hlhdaiaaii/trophy-token/internal/scenario"
	"github.com/hlhdaiaaii/trophy-token/internal/storage"
	"github.com/hlhdaiaaii/trophy-token/internal/storage/postgres"
	"github.com/hlhdaiaaii/trophy-token/internal/token"
)

const (
	eventBufferSize     = 256
	priceHistorySamples = 512
)

// Runner wires the ledger, sale, market monitor and observability
// together from configuration and drives a scripted run.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	bus       *events.Bus
	env       *chain.Env
	ledger    *token.Ledger
	router    *amm.DexRouter
	ctrl      *crowdsale.Controller
	collector *metrics.Collector
	monitor   *monitor.MarketMonitor
	history   *monitor.PriceHistory
	recorder  *storage.Recorder
}

// NewRunner builds the full system from cfg. The environment clock
// starts at the sale's opening time so scripted runs are reproducible.
func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	start, end, err := cfg.Sale.SaleWindow()
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(logger, eventBufferSize)
	env := chain.NewEnv(start, logger)

	owner := chain.Address(cfg.Token.Owner)
	symbol := strings.ToLower(cfg.Token.Symbol)
	tokenAddr := chain.Address("token:" + symbol)
	saleAddr := chain.Address("sale:" + symbol)

	recipients := make([]token.FeeRecipient, 0, len(cfg.Token.FeeRecipients))
	for _, fr := range cfg.Token.FeeRecipients {
		recipients = append(recipients, token.FeeRecipient{
			Addr:     chain.Address(fr.Address),
			ShareBps: fr.ShareBps,
		})
	}

	ledger, err := token.NewLedger(tokenAddr, token.Config{
		Name:            cfg.Token.Name,
		Symbol:          cfg.Token.Symbol,
		Owner:           owner,
		FeeRateBps:      cfg.Token.FeeRateBps,
		BurnShareBps:    cfg.Token.BurnShareBps,
		BurnAddress:     chain.Address(cfg.Token.BurnAddress),
		FeeRecipients:   recipients,
		LiquidityTo:     chain.Address(cfg.Token.LiquidityTo),
		BridgeThreshold: chain.MustParseUnits(cfg.Token.BridgeThreshold),
	}, env, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	router := amm.NewDexRouter(env, logger)
	if err := ledger.BindRouter(owner, router); err != nil {
		return nil, err
	}

	ctrl, err := crowdsale.NewController(saleAddr, crowdsale.Config{
		Owner:        owner,
		Price:        chain.MustParseUnits(cfg.Sale.Price),
		ListingPrice: chain.MustParseUnits(cfg.Sale.ListingPrice),
		MinPurchase:  chain.MustParseUnits(cfg.Sale.MinPurchase),
		MaxPurchase:  chain.MustParseUnits(cfg.Sale.MaxPurchase),
		HardCap:      chain.MustParseUnits(cfg.Sale.HardCap),
		StartTime:    start,
		EndTime:      end,
		LpPercentBps: cfg.Sale.LpPercentBps,
	}, env, ledger, router, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sale: %w", err)
	}
	if err := ledger.AddExcludedFromFee(owner, saleAddr); err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(logger)
	collector.Attach(bus)

	interval := time.Duration(cfg.Monitor.PriceDelay) * time.Millisecond
	mon := monitor.NewMarketMonitor(router, tokenAddr, env, bus,
		interval, cfg.Monitor.Retries, logger)

	var history *monitor.PriceHistory
	if cfg.ExportDir != "" {
		history, err = monitor.NewPriceHistory(cfg.ExportDir, priceHistorySamples, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create price history: %w", err)
		}
		history.Attach(bus)
	}

	r := &Runner{
		cfg:       cfg,
		logger:    logger.Named("app"),
		bus:       bus,
		env:       env,
		ledger:    ledger,
		router:    router,
		ctrl:      ctrl,
		collector: collector,
		monitor:   mon,
		history:   history,
	}

	if cfg.PostgresURL != "" {
		store, err := postgres.NewStorage(cfg.PostgresURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect storage: %w", err)
		}
		if err := store.RunMigrations(); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		r.recorder = storage.NewRecorder(store, bus,
			chain.MustParseUnits(cfg.Sale.Price), logger)
	}

	return r, nil
}

// Controller exposes the sale for read access.
func (r *Runner) Controller() *crowdsale.Controller { return r.ctrl }

// Ledger exposes the token ledger for read access.
func (r *Runner) Ledger() *token.Ledger { return r.ledger }

// Bus exposes the event bus so external consumers can subscribe.
func (r *Runner) Bus() *events.Bus { return r.bus }

// Run executes the configured scenario and serves metrics until ctx is
// canceled. The scenario drives every state change; Run itself never
// mutates the sale.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if r.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return r.collector.Serve(gctx, r.cfg.MetricsAddr)
		})
	}

	g.Go(func() error {
		if err := r.runScenario(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) runScenario(ctx context.Context) error {
	loader := scenario.NewLoader(r.logger)
	sc, err := loader.LoadYAML(r.cfg.ScenarioFile)
	if err != nil {
		return err
	}

	exec := scenario.NewExecutor(r.env, r.ledger, r.router, r.ctrl, r.logger).
		WithObserver(r.collector)
	results, err := exec.Run(ctx, sc)
	if err != nil {
		return err
	}

	passed := 0
	for _, res := range results {
		if res.Passed() {
			passed++
		}
	}
	r.logger.Info("Scenario finished",
		zap.String("scenario", sc.Name),
		zap.Int("steps", len(results)),
		zap.Int("passed", passed))

	if r.ctrl.Status() == crowdsale.StatusFinalized {
		r.startMonitor(ctx)
	}
	return r.exportResults()
}

// startMonitor begins price sampling once the pool is live. A sale that
// never finalizes has no pool, so this is best effort.
func (r *Runner) startMonitor(ctx context.Context) {
	if err := r.monitor.WaitForLiquidity(ctx); err != nil {
		r.logger.Warn("Pool never became liquid", zap.Error(err))
		return
	}
	r.monitor.Start(ctx)
}

func (r *Runner) exportResults() error {
	if r.cfg.ExportDir == "" {
		return nil
	}

	price := chain.MustParseUnits(r.cfg.Sale.Price)
	exporter := export.NewSaleExporter(r.logger)
	records := export.SnapshotPurchasers(r.ctrl, price)
	if len(records) == 0 {
		r.logger.Info("No purchasers to export")
		return nil
	}

	path, err := exporter.ExportPurchasers(records, export.ExportOptions{
		Format:    export.FormatCSV,
		OutputDir: r.cfg.ExportDir,
	})
	if err != nil {
		return fmt.Errorf("failed to export purchasers: %w", err)
	}
	reportPath, err := exporter.ExportSaleReport(r.ctrl, price, r.cfg.ExportDir)
	if err != nil {
		return fmt.Errorf("failed to export sale report: %w", err)
	}
	r.logger.Info("Exported sale results",
		zap.String("purchasers", path),
		zap.String("report", reportPath))
	return nil
}

// Close releases bus subscriptions and stops background work.
func (r *Runner) Close() {
	r.monitor.Stop()
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			r.logger.Warn("Failed to close price history", zap.Error(err))
		}
	}
	if r.recorder != nil {
		r.recorder.Detach()
	}
	r.collector.Detach()
	r.bus.Close()
}
