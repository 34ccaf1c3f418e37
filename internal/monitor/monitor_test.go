package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/amm"
	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
	"github.com/hlhdaiaaii/trophy-token/internal/token"
)

func poolFixture(t *testing.T, seedLiquidity bool) (*chain.Env, *token.Ledger, *amm.DexRouter) {
	t.Helper()
	logger := zap.NewNop()
	owner := chain.Address("acc:owner")

	env := chain.NewEnv(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), logger)
	env.Credit(owner, chain.MustParseUnits("100"))

	tok, err := token.NewLedger("token:trophy", token.Config{
		Name:            "Trophy",
		Symbol:          "TRP",
		Owner:           owner,
		FeeRateBps:      500,
		BurnShareBps:    2000,
		BurnAddress:     "acc:burn",
		LiquidityTo:     owner,
		BridgeThreshold: chain.MustParseUnits("100000"),
	}, env, nil, logger)
	require.NoError(t, err)

	router := amm.NewDexRouter(env, logger)
	require.NoError(t, tok.BindRouter(owner, router))

	if seedLiquidity {
		seed := chain.MustParseUnits("14000")
		require.NoError(t, tok.Mint(owner, owner, seed))
		require.NoError(t, tok.Approve(owner, amm.RouterAddress, seed))
		_, err = router.AddLiquidityNative(owner, tok.Address(),
			seed, seed, chain.MustParseUnits("0.7"), chain.MustParseUnits("0.7"),
			owner, env.Now().Add(time.Minute))
		require.NoError(t, err)
	}
	return env, tok, router
}

func TestSpotPrice(t *testing.T) {
	env, tok, router := poolFixture(t, true)

	m := NewMarketMonitor(router, tok.Address(), env, nil, time.Second, 3, zap.NewNop())
	price, resToken, resNative, err := m.SpotPrice()
	require.NoError(t, err)

	// 0.7 native over 14000 tokens prices at 0.00005.
	assert.Equal(t, chain.MustParseUnits("0.00005"), price)
	assert.Equal(t, chain.MustParseUnits("14000"), resToken)
	assert.Equal(t, chain.MustParseUnits("0.7"), resNative)
}

func TestSpotPriceNoLiquidity(t *testing.T) {
	env, tok, router := poolFixture(t, false)

	m := NewMarketMonitor(router, tok.Address(), env, nil, time.Second, 3, zap.NewNop())
	_, _, _, err := m.SpotPrice()
	assert.ErrorIs(t, err, ErrNoLiquidity)
}

func TestWaitForLiquidityGivesUp(t *testing.T) {
	env, tok, router := poolFixture(t, false)

	m := NewMarketMonitor(router, tok.Address(), env, nil, time.Second, 2, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.WaitForLiquidity(ctx)
	assert.Error(t, err)
}

func TestSamplePublishesPriceUpdate(t *testing.T) {
	env, tok, router := poolFixture(t, true)

	bus := events.NewBus(zap.NewNop(), 16)
	defer bus.Close()

	got := make(chan *events.PriceUpdatedEvent, 1)
	bus.SubscribeFunc(events.PriceUpdated, func(_ context.Context, event events.Event) error {
		if ev, ok := event.(*events.PriceUpdatedEvent); ok {
			select {
			case got <- ev:
			default:
			}
		}
		return nil
	})

	m := NewMarketMonitor(router, tok.Address(), env, bus, time.Second, 3, zap.NewNop())
	m.sample()

	select {
	case ev := <-got:
		assert.Equal(t, chain.MustParseUnits("0.00005"), ev.PriceNative)
		assert.Equal(t, chain.MustParseUnits("14000"), ev.ReserveToken)
	case <-time.After(2 * time.Second):
		t.Fatal("No price update delivered")
	}

	// The first priced sample is retained as the baseline.
	assert.Equal(t, chain.MustParseUnits("0.00005"), m.InitialPrice())
}
