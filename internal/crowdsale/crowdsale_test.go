package crowdsale

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/amm"
	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/token"
)

const (
	owner    = chain.Address("acc:owner")
	userA    = chain.Address("acc:alice")
	userB    = chain.Address("acc:bob")
	userC    = chain.Address("acc:carol")
	treasury = chain.Address("acc:treasury")
	burnSink = chain.Address("acc:burn")
	saleAddr = chain.Address("sale:trophy")
)

type fixture struct {
	env    *chain.Env
	tok    *token.Ledger
	router *amm.DexRouter
	ctrl   *Controller
	start  time.Time
	end    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(72 * time.Hour)

	env := chain.NewEnv(start, logger)
	for _, a := range []chain.Address{owner, userA, userB, userC} {
		env.Credit(a, chain.MustParseUnits("100"))
	}

	tok, err := token.NewLedger("token:trophy", token.Config{
		Name:            "Trophy",
		Symbol:          "TRP",
		Owner:           owner,
		FeeRateBps:      500,
		BurnShareBps:    2000,
		BurnAddress:     burnSink,
		FeeRecipients:   []token.FeeRecipient{{Addr: treasury, ShareBps: 3000}},
		LiquidityTo:     owner,
		BridgeThreshold: chain.MustParseUnits("100000"),
	}, env, nil, logger)
	require.NoError(t, err)

	router := amm.NewDexRouter(env, logger)
	require.NoError(t, tok.BindRouter(owner, router))

	ctrl, err := NewController(saleAddr, Config{
		Owner:        owner,
		Price:        chain.MustParseUnits("0.00004"),
		ListingPrice: chain.MustParseUnits("0.00005"),
		MinPurchase:  chain.MustParseUnits("0.2"),
		MaxPurchase:  chain.MustParseUnits("1"),
		HardCap:      chain.MustParseUnits("1000"),
		StartTime:    start,
		EndTime:      end,
		LpPercentBps: 5000,
	}, env, tok, router, nil, logger)
	require.NoError(t, err)

	require.NoError(t, tok.AddExcludedFromFee(owner, saleAddr))
	return &fixture{env: env, tok: tok, router: router, ctrl: ctrl, start: start, end: end}
}

// mintRequired mints exactly the settlement requirement to the sale.
func (f *fixture) mintRequired(t *testing.T) *uint256.Int {
	t.Helper()
	required := f.ctrl.CalcTotalTokensRequired()
	require.NoError(t, f.tok.Mint(owner, saleAddr, required))
	return required
}

func TestPurchaseAccounting(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.Purchase(userA, chain.MustParseUnits("1")))
	require.NoError(t, f.ctrl.Purchase(userB, chain.MustParseUnits("0.4")))

	assert.Equal(t, chain.MustParseUnits("1.4"), f.ctrl.CurrentCap())
	assert.Equal(t, []chain.Address{userA, userB}, f.ctrl.AllPurchasers())

	rec, ok := f.ctrl.PurchaserOf(userB)
	require.True(t, ok)
	assert.Equal(t, chain.MustParseUnits("0.4"), rec.Contribution)
	assert.Equal(t, Unclaimed, rec.Terminal)

	// Contributions are in custody.
	assert.Equal(t, chain.MustParseUnits("1.4"), f.env.BalanceOf(saleAddr))
	assert.Equal(t, chain.MustParseUnits("99"), f.env.BalanceOf(userA))
}

func TestPurchaseRejections(t *testing.T) {
	f := newFixture(t)
	ok := chain.MustParseUnits("0.5")

	t.Run("before window", func(t *testing.T) {
		f.env.SetTime(f.start.Add(-time.Second))
		assert.ErrorIs(t, f.ctrl.Purchase(userA, ok), ErrNotOccurring)
	})

	t.Run("window bounds inclusive", func(t *testing.T) {
		f.env.SetTime(f.start)
		assert.NoError(t, f.ctrl.Purchase(userA, ok))
		f.env.SetTime(f.end)
		assert.NoError(t, f.ctrl.Purchase(userB, ok))
	})

	t.Run("after window", func(t *testing.T) {
		f.env.SetTime(f.end.Add(time.Second))
		assert.ErrorIs(t, f.ctrl.Purchase(userC, ok), ErrNotOccurring)
	})

	t.Run("double purchase", func(t *testing.T) {
		f.env.SetTime(f.start.Add(time.Hour))
		assert.ErrorIs(t, f.ctrl.Purchase(userA, ok), ErrAlreadyPurchased)
	})

	t.Run("size bounds", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Purchase(userC, chain.MustParseUnits("0.1")), ErrPurchaseTooSmall)
		assert.ErrorIs(t, f.ctrl.Purchase(userC, chain.MustParseUnits("1.5")), ErrPurchaseTooLarge)
	})

	t.Run("insufficient native", func(t *testing.T) {
		broke := chain.Address("acc:broke")
		err := f.ctrl.Purchase(broke, ok)
		assert.ErrorIs(t, err, chain.ErrInsufficientNative)
		_, recorded := f.ctrl.PurchaserOf(broke)
		assert.False(t, recorded)
	})
}

func TestPurchaseHardCap(t *testing.T) {
	f := newFixture(t)

	// Small cap sale to hit the ceiling with two buyers.
	ctrl, err := NewController(saleAddr, Config{
		Owner:        owner,
		Price:        chain.MustParseUnits("0.00004"),
		ListingPrice: chain.MustParseUnits("0.00005"),
		MinPurchase:  chain.MustParseUnits("0.2"),
		MaxPurchase:  chain.MustParseUnits("1"),
		HardCap:      chain.MustParseUnits("1.2"),
		StartTime:    f.start,
		EndTime:      f.end,
		LpPercentBps: 5000,
	}, f.env, f.tok, f.router, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, ctrl.Purchase(userA, chain.MustParseUnits("1")))
	assert.ErrorIs(t, ctrl.Purchase(userB, chain.MustParseUnits("0.3")), ErrMetHardCap)
	// A smaller amount still fits under the ceiling.
	require.NoError(t, ctrl.Purchase(userB, chain.MustParseUnits("0.2")))
	assert.Equal(t, chain.MustParseUnits("1.2"), ctrl.CurrentCap())
}

func TestCalcTotalTokensRequired(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.Purchase(userA, chain.MustParseUnits("1")))
	require.NoError(t, f.ctrl.Purchase(userB, chain.MustParseUnits("0.4")))

	// Claims: 1/0.00004 + 0.4/0.00004 = 25000 + 10000.
	// Liquidity: half the 1.4 cap at the 0.00005 listing price = 14000.
	assert.Equal(t, chain.MustParseUnits("49000"), f.ctrl.CalcTotalTokensRequired())
}

func TestFinalizeAndClaim(t *testing.T) {
	f := newFixture(t)
	payout := chain.Address("acc:payout")

	require.NoError(t, f.ctrl.Purchase(userA, chain.MustParseUnits("1")))
	require.NoError(t, f.ctrl.Purchase(userB, chain.MustParseUnits("0.4")))
	f.mintRequired(t)

	require.NoError(t, f.ctrl.Finalize(owner, payout))
	assert.Equal(t, StatusFinalized, f.ctrl.Status())

	// Half of the 1.4 raised went to the pool, half to the operator.
	assert.Equal(t, chain.MustParseUnits("0.7"), f.env.BalanceOf(payout))
	resToken, resNative := f.router.Pair(f.tok.Address()).GetReserves()
	assert.Equal(t, chain.MustParseUnits("14000"), resToken)
	assert.Equal(t, chain.MustParseUnits("0.7"), resNative)

	// Pool shares landed with the configured liquidity recipient.
	assert.True(t, f.router.Pair(f.tok.Address()).BalanceOf(owner).Sign() > 0)

	require.NoError(t, f.ctrl.Claim(userA))
	require.NoError(t, f.ctrl.Claim(userB))
	assert.Equal(t, chain.MustParseUnits("25000"), f.tok.BalanceOf(userA))
	assert.Equal(t, chain.MustParseUnits("10000"), f.tok.BalanceOf(userB))

	// Exactly the required amount was minted, so custody drains to zero.
	assert.True(t, f.tok.BalanceOf(saleAddr).IsZero())

	t.Run("claim is one-shot", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Claim(userA), ErrInvalidAction)
	})
	t.Run("refund unavailable after finalize", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Refund(userB), ErrInvalidAction)
	})
	t.Run("finalize is exactly-once", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Finalize(owner, payout), ErrAlreadyFinalizedOrCanceled)
	})
	t.Run("purchase after finalize", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Purchase(userC, chain.MustParseUnits("0.5")), ErrNotOccurring)
	})
}

func TestFinalizeGuards(t *testing.T) {
	f := newFixture(t)
	payout := chain.Address("acc:payout")

	require.NoError(t, f.ctrl.Purchase(userA, chain.MustParseUnits("1")))

	t.Run("owner only", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Finalize(userA, payout), ErrNotOwner)
	})

	t.Run("insufficient sale tokens", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Finalize(owner, payout), ErrInsufficientTokens)
		assert.Equal(t, StatusActive, f.ctrl.Status())
	})

	t.Run("zero payout address", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Finalize(owner, chain.ZeroAddress), chain.ErrZeroAddress)
	})
}

func TestFinalizeRollbackOnLiquidityFailure(t *testing.T) {
	f := newFixture(t)
	payout := chain.Address("acc:payout")

	require.NoError(t, f.ctrl.Purchase(userA, chain.MustParseUnits("1")))
	f.mintRequired(t)

	// Skew the pool so the ratio-matched deposit trips the strict
	// minimum-amount bounds.
	seed := chain.MustParseUnits("1000")
	require.NoError(t, f.tok.Mint(owner, owner, seed))
	require.NoError(t, f.tok.Approve(owner, amm.RouterAddress, seed))
	_, err := f.router.AddLiquidityNative(owner, f.tok.Address(),
		seed, seed, chain.MustParseUnits("1"), chain.MustParseUnits("1"),
		owner, f.env.Now().Add(time.Minute))
	require.NoError(t, err)

	capBefore := f.env.BalanceOf(saleAddr)
	tokBefore := f.tok.BalanceOf(saleAddr)

	err = f.ctrl.Finalize(owner, payout)
	require.Error(t, err)
	assert.ErrorIs(t, err, amm.ErrInsufficientAmount)

	// No partial effects: still active, custody untouched, no payout.
	assert.Equal(t, StatusActive, f.ctrl.Status())
	assert.Equal(t, capBefore, f.env.BalanceOf(saleAddr))
	assert.Equal(t, tokBefore, f.tok.BalanceOf(saleAddr))
	assert.True(t, f.env.BalanceOf(payout).IsZero())
}

func TestCancelAndRefund(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.Purchase(userA, chain.MustParseUnits("1")))
	require.NoError(t, f.ctrl.Purchase(userB, chain.MustParseUnits("0.4")))

	t.Run("owner only", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.CancelSale(userA), ErrNotOwner)
	})

	require.NoError(t, f.ctrl.CancelSale(owner))
	assert.Equal(t, StatusCanceled, f.ctrl.Status())

	t.Run("cancel is exactly-once", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.CancelSale(owner), ErrAlreadyCanceledOrFinalized)
	})
	t.Run("finalize after cancel", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Finalize(owner, owner), ErrAlreadyFinalizedOrCanceled)
	})
	t.Run("claim unavailable after cancel", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Claim(userA), ErrInvalidAction)
	})

	require.NoError(t, f.ctrl.Refund(userA))
	require.NoError(t, f.ctrl.Refund(userB))
	assert.Equal(t, chain.MustParseUnits("100"), f.env.BalanceOf(userA))
	assert.Equal(t, chain.MustParseUnits("100"), f.env.BalanceOf(userB))
	assert.True(t, f.env.BalanceOf(saleAddr).IsZero())

	t.Run("refund is one-shot", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Refund(userA), ErrInvalidAction)
	})
	t.Run("refund without purchase", func(t *testing.T) {
		assert.ErrorIs(t, f.ctrl.Refund(userC), ErrInvalidAction)
	})
}

func TestConfigValidation(t *testing.T) {
	f := newFixture(t)
	base := Config{
		Owner:        owner,
		Price:        chain.MustParseUnits("0.00004"),
		ListingPrice: chain.MustParseUnits("0.00005"),
		MinPurchase:  chain.MustParseUnits("0.2"),
		MaxPurchase:  chain.MustParseUnits("1"),
		HardCap:      chain.MustParseUnits("1000"),
		StartTime:    f.start,
		EndTime:      f.end,
		LpPercentBps: 5000,
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero price", func(c *Config) { c.Price = uint256.NewInt(0) }},
		{"zero listing price", func(c *Config) { c.ListingPrice = nil }},
		{"min above max", func(c *Config) { c.MinPurchase = chain.MustParseUnits("2") }},
		{"zero hard cap", func(c *Config) { c.HardCap = uint256.NewInt(0) }},
		{"end before start", func(c *Config) { c.EndTime = f.start.Add(-time.Hour) }},
		{"lp share above denom", func(c *Config) { c.LpPercentBps = 10_001 }},
		{"zero owner", func(c *Config) { c.Owner = chain.ZeroAddress }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			_, err := NewController(saleAddr, cfg, f.env, f.tok, f.router, nil, zap.NewNop())
			assert.Error(t, err)
		})
	}
}
