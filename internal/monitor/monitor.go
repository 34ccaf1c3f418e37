// internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/amm"
	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
)

// ErrNoLiquidity is returned while the pool has no reserves to price.
var ErrNoLiquidity = errors.New("pool has no liquidity")

// PriceUpdate is one spot-price sample, shaped for UI consumption.
type PriceUpdate struct {
	PriceNative   float64 // native per token
	InitialPrice  float64 // first priced sample
	Percent       float64 // change since the initial sample
	ReserveToken  float64
	ReserveNative float64
	At            time.Time
}

// MarketMonitor samples the token's pool reserves on a fixed cadence and
// publishes spot-price updates to the event bus.
type MarketMonitor struct {
	router    *amm.DexRouter
	tokenAddr chain.Address
	env       *chain.Env
	bus       *events.Bus
	interval  time.Duration
	retries   int

	initialPrice *uint256.Int

	logger *zap.Logger
	cancel context.CancelFunc
}

// NewMarketMonitor creates a monitor for the given token's pool.
func NewMarketMonitor(router *amm.DexRouter, tokenAddr chain.Address, env *chain.Env,
	bus *events.Bus, interval time.Duration, retries int, logger *zap.Logger) *MarketMonitor {
	return &MarketMonitor{
		router:    router,
		tokenAddr: tokenAddr,
		env:       env,
		bus:       bus,
		interval:  interval,
		retries:   retries,
		logger:    logger.Named("monitor"),
	}
}

// SpotPrice reads the pool and returns native per token in 18-dec fixed
// point, with the raw reserves.
func (m *MarketMonitor) SpotPrice() (price, reserveToken, reserveNative *uint256.Int, err error) {
	p := m.router.Pair(m.tokenAddr)
	if p == nil {
		return nil, nil, nil, amm.ErrPairNotFound
	}
	reserveToken, reserveNative = p.GetReserves()
	if reserveToken.IsZero() || reserveNative.IsZero() {
		return nil, nil, nil, ErrNoLiquidity
	}
	price = new(uint256.Int).Mul(reserveNative, chain.Wad())
	price.Div(price, reserveToken)
	return price, reserveToken, reserveNative, nil
}

// WaitForLiquidity blocks until the pool prices, retrying on the
// monitor's backoff schedule.
func (m *MarketMonitor) WaitForLiquidity(ctx context.Context) error {
	operation := func() (*uint256.Int, error) {
		price, _, _, err := m.SpotPrice()
		return price, err
	}

	price, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(m.retries)))
	if err != nil {
		return err
	}
	m.logger.Info("Pool liquidity discovered",
		zap.String("token", string(m.tokenAddr)),
		zap.String("price", chain.FormatUnits(price)))
	return nil
}

// Start begins sampling until ctx is canceled or Stop is called. The
// first sample is taken immediately.
func (m *MarketMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.logger.Info("Starting market monitor",
		zap.String("token", string(m.tokenAddr)),
		zap.Duration("interval", m.interval))

	m.sample()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-ctx.Done():
			m.logger.Debug("Market monitor stopped")
			return
		}
	}
}

// Stop cancels a running Start loop.
func (m *MarketMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// InitialPrice returns the first priced sample, or nil before one.
func (m *MarketMonitor) InitialPrice() *uint256.Int {
	if m.initialPrice == nil {
		return nil
	}
	return new(uint256.Int).Set(m.initialPrice)
}

func (m *MarketMonitor) sample() {
	price, reserveToken, reserveNative, err := m.SpotPrice()
	if err != nil {
		if !errors.Is(err, ErrNoLiquidity) {
			m.logger.Error("Failed to sample pool price", zap.Error(err))
		}
		return
	}
	if m.initialPrice == nil {
		m.initialPrice = new(uint256.Int).Set(price)
	}

	if m.bus != nil {
		_ = m.bus.Publish(&events.PriceUpdatedEvent{
			BaseEvent:     events.At(events.PriceUpdated, m.env.Now()),
			PriceNative:   price,
			ReserveToken:  reserveToken,
			ReserveNative: reserveNative,
		})
	}
}
