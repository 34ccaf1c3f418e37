// =============================
// File: internal/token/token_test.go
// =============================
package token

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/amm"
	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
)

const (
	owner     = chain.Address("acc:owner")
	alice     = chain.Address("acc:alice")
	bob       = chain.Address("acc:bob")
	treasury  = chain.Address("acc:treasury")
	burnSink  = chain.Address("acc:burn")
	liqHolder = chain.Address("acc:liquidity")
	tokenAddr = chain.Address("token:trophy")
)

func baseConfig() Config {
	return Config{
		Name:            "Trophy",
		Symbol:          "TRP",
		Owner:           owner,
		FeeRateBps:      500,
		BurnShareBps:    2000,
		BurnAddress:     burnSink,
		FeeRecipients:   []FeeRecipient{{Addr: treasury, ShareBps: 3000}},
		LiquidityTo:     liqHolder,
		BridgeThreshold: chain.MustParseUnits("20"),
	}
}

func newTestLedger(t *testing.T, cfg Config) (*chain.Env, *Ledger) {
	t.Helper()
	env := chain.NewEnv(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), zap.NewNop())
	l, err := NewLedger(tokenAddr, cfg, env, nil, zap.NewNop())
	require.NoError(t, err)
	return env, l
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero owner", func(c *Config) { c.Owner = chain.ZeroAddress }},
		{"zero burn address", func(c *Config) { c.BurnAddress = chain.ZeroAddress }},
		{"zero liquidity recipient", func(c *Config) { c.LiquidityTo = chain.ZeroAddress }},
		{"fee rate above denom", func(c *Config) { c.FeeRateBps = 10_001 }},
		{"shares above denom", func(c *Config) { c.FeeRecipients[0].ShareBps = 9000 }},
		{"zero recipient address", func(c *Config) { c.FeeRecipients[0].Addr = chain.ZeroAddress }},
		{"nil threshold", func(c *Config) { c.BridgeThreshold = nil }},
		{"zero threshold", func(c *Config) { c.BridgeThreshold = uint256.NewInt(0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			_, err := NewLedger(tokenAddr, cfg, chain.NewEnv(time.Unix(0, 0), zap.NewNop()), nil, zap.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestMint(t *testing.T) {
	_, l := newTestLedger(t, baseConfig())

	require.NoError(t, l.Mint(owner, alice, chain.MustParseUnits("1000")))
	assert.Equal(t, "1000", chain.FormatUnits(l.BalanceOf(alice)))
	assert.Equal(t, "1000", chain.FormatUnits(l.TotalSupply()))

	assert.ErrorIs(t, l.Mint(alice, alice, chain.MustParseUnits("1")), ErrNotOwner)
	assert.ErrorIs(t, l.Mint(owner, chain.ZeroAddress, chain.MustParseUnits("1")), ErrZeroAddress)
}

func TestTaxedTransferSplit(t *testing.T) {
	_, l := newTestLedger(t, baseConfig())
	require.NoError(t, l.Mint(owner, alice, chain.MustParseUnits("1000")))

	require.NoError(t, l.Transfer(alice, bob, chain.MustParseUnits("100")))

	// 5% fee on 100: burn 20% of the fee, treasury 30%, the rest
	// accrues to the ledger for the bridge.
	assert.Equal(t, "95", chain.FormatUnits(l.BalanceOf(bob)))
	assert.Equal(t, "1", chain.FormatUnits(l.BalanceOf(burnSink)))
	assert.Equal(t, "1.5", chain.FormatUnits(l.BalanceOf(treasury)))
	assert.Equal(t, "2.5", chain.FormatUnits(l.BalanceOf(tokenAddr)))
	assert.Equal(t, "900", chain.FormatUnits(l.BalanceOf(alice)))

	// Supply is conserved; the fee is redistributed, not destroyed.
	assert.Equal(t, "1000", chain.FormatUnits(l.TotalSupply()))
}

func TestTaxedTransferRemainderToLastRecipient(t *testing.T) {
	_, l := newTestLedger(t, baseConfig())
	require.NoError(t, l.Mint(owner, alice, uint256.NewInt(1000)))

	// 101 wei: fee 5, burn 1, treasury 1, liquidity 2; the 1 wei
	// truncation remainder lands on the last recipient.
	require.NoError(t, l.Transfer(alice, bob, uint256.NewInt(101)))

	assert.Equal(t, uint64(96), l.BalanceOf(bob).Uint64())
	assert.Equal(t, uint64(1), l.BalanceOf(burnSink).Uint64())
	assert.Equal(t, uint64(2), l.BalanceOf(treasury).Uint64())
	assert.Equal(t, uint64(2), l.BalanceOf(tokenAddr).Uint64())
}

func TestTaxedTransferRemainderToLiquidityWithoutRecipients(t *testing.T) {
	cfg := baseConfig()
	cfg.FeeRecipients = nil
	_, l := newTestLedger(t, cfg)
	require.NoError(t, l.Mint(owner, alice, uint256.NewInt(1000)))

	// Fee 5: burn 1, liquidity share 80% = 4, remainder 0 stays with
	// the pot. With recipients gone the whole non-burn side accrues.
	require.NoError(t, l.Transfer(alice, bob, uint256.NewInt(101)))

	assert.Equal(t, uint64(96), l.BalanceOf(bob).Uint64())
	assert.Equal(t, uint64(1), l.BalanceOf(burnSink).Uint64())
	assert.Equal(t, uint64(4), l.BalanceOf(tokenAddr).Uint64())
}

func TestExcludedTransfersSkipFee(t *testing.T) {
	_, l := newTestLedger(t, baseConfig())
	require.NoError(t, l.Mint(owner, owner, chain.MustParseUnits("100")))

	// Owner is excluded at deployment.
	require.NoError(t, l.Transfer(owner, alice, chain.MustParseUnits("100")))
	assert.Equal(t, "100", chain.FormatUnits(l.BalanceOf(alice)))

	// Exclusion can be granted and revoked by the owner only.
	require.NoError(t, l.AddExcludedFromFee(owner, alice))
	require.NoError(t, l.Transfer(alice, bob, chain.MustParseUnits("10")))
	assert.Equal(t, "10", chain.FormatUnits(l.BalanceOf(bob)))

	require.NoError(t, l.RemoveExcludedFromFee(owner, alice))
	require.NoError(t, l.Transfer(alice, bob, chain.MustParseUnits("10")))
	assert.Equal(t, "19.5", chain.FormatUnits(l.BalanceOf(bob)))

	assert.ErrorIs(t, l.AddExcludedFromFee(alice, bob), ErrNotOwner)
}

func TestTransferRejections(t *testing.T) {
	_, l := newTestLedger(t, baseConfig())
	require.NoError(t, l.Mint(owner, alice, chain.MustParseUnits("1")))

	assert.ErrorIs(t, l.Transfer(alice, chain.ZeroAddress, uint256.NewInt(1)), ErrZeroAddress)
	assert.ErrorIs(t, l.Transfer(alice, bob, chain.MustParseUnits("2")), ErrInsufficientBalance)
	assert.ErrorIs(t, l.Transfer(bob, alice, uint256.NewInt(1)), ErrInsufficientBalance)
}

func TestTransferFromAllowance(t *testing.T) {
	_, l := newTestLedger(t, baseConfig())
	require.NoError(t, l.Mint(owner, alice, chain.MustParseUnits("100")))

	spender := chain.Address("acc:spender")
	assert.ErrorIs(t, l.TransferFrom(spender, alice, bob, uint256.NewInt(1)), ErrInsufficientAllowance)

	require.NoError(t, l.Approve(alice, spender, chain.MustParseUnits("10")))
	require.NoError(t, l.TransferFrom(spender, alice, bob, chain.MustParseUnits("4")))
	assert.Equal(t, "6", chain.FormatUnits(l.Allowance(alice, spender)))

	// A failed transfer must not burn allowance.
	err := l.TransferFrom(spender, alice, chain.ZeroAddress, chain.MustParseUnits("1"))
	assert.Error(t, err)
	assert.Equal(t, "6", chain.FormatUnits(l.Allowance(alice, spender)))
}

func TestFeeRecipientManagement(t *testing.T) {
	_, l := newTestLedger(t, baseConfig())

	assert.ErrorIs(t, l.AddFeeTo(alice, bob, 100), ErrNotOwner)
	assert.ErrorIs(t, l.AddFeeTo(owner, treasury, 100), ErrFeeToExists)
	assert.ErrorIs(t, l.RemoveFeeTo(owner, bob), ErrFeeToNotFound)

	require.NoError(t, l.AddFeeTo(owner, bob, 1000))
	assert.Len(t, l.FeeToList(), 2)
	require.NoError(t, l.RemoveFeeTo(owner, bob))
	assert.Len(t, l.FeeToList(), 1)
}

func TestSnapshotRestore(t *testing.T) {
	_, l := newTestLedger(t, baseConfig())
	require.NoError(t, l.Mint(owner, alice, chain.MustParseUnits("100")))

	snap := l.Snapshot()
	require.NoError(t, l.Transfer(alice, bob, chain.MustParseUnits("50")))
	require.NoError(t, l.Approve(alice, bob, chain.MustParseUnits("5")))

	l.Restore(snap)
	assert.Equal(t, "100", chain.FormatUnits(l.BalanceOf(alice)))
	assert.True(t, l.BalanceOf(bob).IsZero())
	assert.True(t, l.Allowance(alice, bob).IsZero())
}

func TestCollectOwnTokenDust(t *testing.T) {
	_, l := newTestLedger(t, baseConfig())
	require.NoError(t, l.Mint(owner, alice, chain.MustParseUnits("1000")))
	require.NoError(t, l.Transfer(alice, bob, chain.MustParseUnits("100")))
	require.Equal(t, "2.5", chain.FormatUnits(l.BalanceOf(tokenAddr)))

	require.NoError(t, l.CollectTokenDust(owner, l, treasury))
	assert.True(t, l.BalanceOf(tokenAddr).IsZero())
	assert.Equal(t, "4", chain.FormatUnits(l.BalanceOf(treasury)))

	assert.ErrorIs(t, l.CollectTokenDust(alice, l, treasury), ErrNotOwner)
}

// bridgeFixture binds the router and seeds the pool so the bridge has a
// market to trade against.
func bridgeFixture(t *testing.T) (*chain.Env, *Ledger, *amm.DexRouter, *events.Bus) {
	t.Helper()
	env := chain.NewEnv(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), zap.NewNop())
	bus := events.NewBus(zap.NewNop(), 64)
	t.Cleanup(bus.Close)

	l, err := NewLedger(tokenAddr, baseConfig(), env, bus, zap.NewNop())
	require.NoError(t, err)

	router := amm.NewDexRouter(env, zap.NewNop())
	require.NoError(t, l.BindRouter(owner, router))

	require.NoError(t, l.Mint(owner, owner, chain.MustParseUnits("100000")))
	env.Credit(owner, chain.MustParseUnits("10"))
	require.NoError(t, l.Approve(owner, amm.RouterAddress, chain.MustParseUnits("100000")))
	_, err = router.AddLiquidityNative(owner, tokenAddr,
		chain.MustParseUnits("50000"), uint256.NewInt(0), uint256.NewInt(0),
		chain.MustParseUnits("5"), owner, env.Now().Add(time.Minute))
	require.NoError(t, err)

	require.NoError(t, l.Transfer(owner, alice, chain.MustParseUnits("40000")))
	return env, l, router, bus
}

func TestBridgeFiresAtThreshold(t *testing.T) {
	_, l, router, bus := bridgeFixture(t)

	bridged := make(chan events.Event, 1)
	sub := bus.SubscribeFunc(events.LiquidityBridged, func(_ context.Context, e events.Event) error {
		select {
		case bridged <- e:
		default:
		}
		return nil
	})
	defer sub.Unsubscribe()

	// 5% of 1000 is 50; half of that accrues to the ledger, which is
	// above the 20-token threshold.
	require.NoError(t, l.Transfer(alice, bob, chain.MustParseUnits("1000")))
	accrued := l.BalanceOf(tokenAddr)
	require.True(t, accrued.Gt(chain.MustParseUnits("20")))

	// The bridge arms on the next transfer, before the amount moves.
	require.NoError(t, l.Transfer(alice, bob, chain.MustParseUnits("10")))

	assert.True(t, l.BalanceOf(tokenAddr).Lt(chain.MustParseUnits("20")),
		"accumulated fees should have been converted")
	pair := router.Pair(tokenAddr)
	require.NotNil(t, pair)
	assert.False(t, pair.BalanceOf(liqHolder).IsZero(),
		"pool shares go to the liquidity recipient")

	select {
	case e := <-bridged:
		// Consumers type-assert the pointer form.
		ev, ok := e.(*events.LiquidityBridgedEvent)
		require.True(t, ok, "bridge event must be published as a pointer")
		assert.False(t, ev.PoolShares.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no bridge event published")
	}
}

func TestBridgeFailureIsSwallowed(t *testing.T) {
	// Router bound but the pool never seeded: the swap has no
	// liquidity and must fail without failing the transfer.
	env := chain.NewEnv(time.Unix(0, 0), zap.NewNop())
	bus := events.NewBus(zap.NewNop(), 16)
	t.Cleanup(bus.Close)
	l, err := NewLedger(tokenAddr, baseConfig(), env, bus, zap.NewNop())
	require.NoError(t, err)
	router := amm.NewDexRouter(env, zap.NewNop())
	require.NoError(t, l.BindRouter(owner, router))

	failed := make(chan events.Event, 1)
	sub := bus.SubscribeFunc(events.LiquidityBridgeFailed, func(_ context.Context, e events.Event) error {
		select {
		case failed <- e:
		default:
		}
		return nil
	})
	defer sub.Unsubscribe()

	require.NoError(t, l.Mint(owner, owner, chain.MustParseUnits("10000")))
	require.NoError(t, l.Transfer(owner, alice, chain.MustParseUnits("5000")))

	require.NoError(t, l.Transfer(alice, bob, chain.MustParseUnits("2000")))
	accrued := chain.FormatUnits(l.BalanceOf(tokenAddr))

	require.NoError(t, l.Transfer(alice, bob, chain.MustParseUnits("100")))

	// The failed bridge keeps the fee balance for a later attempt, plus
	// the new transfer's accrual.
	assert.True(t, l.BalanceOf(tokenAddr).Gt(chain.MustParseUnits(accrued)))
	assert.Equal(t, "1995", chain.FormatUnits(l.BalanceOf(bob)))

	select {
	case e := <-failed:
		ev, ok := e.(*events.LiquidityBridgeFailedEvent)
		require.True(t, ok, "failure event must be published as a pointer")
		assert.NotEmpty(t, ev.Reason)
	case <-time.After(time.Second):
		t.Fatal("no bridge failure event published")
	}
}

func TestBridgeSkipsTransfersFromPair(t *testing.T) {
	env, l, router, _ := bridgeFixture(t)

	// Arm the bridge.
	require.NoError(t, l.Transfer(alice, bob, chain.MustParseUnits("1000")))
	accrued := l.BalanceOf(tokenAddr)
	require.True(t, accrued.Gt(chain.MustParseUnits("20")))

	// A buy pulls tokens out of the pair; the bridge must not run on
	// that leg or it would re-enter the pool mid-swap.
	env.Credit(bob, chain.MustParseUnits("1"))
	_, err := router.SwapExactNativeForTokens(bob,
		chain.MustParseUnits("0.1"), uint256.NewInt(0),
		[]chain.Address{router.WNative(), tokenAddr}, bob, env.Now().Add(time.Minute))
	require.NoError(t, err)

	// The buy leg is itself taxed, so the fee balance only grows; a
	// fired bridge would instead have minted shares to the recipient.
	assert.False(t, l.BalanceOf(tokenAddr).Lt(accrued))
	pair := router.Pair(tokenAddr)
	require.NotNil(t, pair)
	assert.True(t, pair.BalanceOf(liqHolder).IsZero(),
		"pair-origin transfers must not trigger the bridge")
}
