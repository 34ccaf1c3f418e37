// =============================
// File: internal/amm/types.go
// =============================
package amm

import (
	"errors"
	"time"

	"github.com/holiman/uint256"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
)

// ERC20 is the token surface the AMM consumes. The caller argument makes
// the acting identity explicit on every mutating call.
type ERC20 interface {
	BalanceOf(addr chain.Address) *uint256.Int
	Transfer(caller, to chain.Address, amount *uint256.Int) error
	TransferFrom(caller, from, to chain.Address, amount *uint256.Int) error
}

// AddLiquidityResult reports the amounts actually deposited and the
// pool-share amount minted.
type AddLiquidityResult struct {
	AmountToken  *uint256.Int
	AmountNative *uint256.Int
	Liquidity    *uint256.Int
}

// Router is the published AMM entry point consumed by the fee ledger and
// the crowdsale controller. Swap paths are ordered address pairs; the
// wrapped-native leg is addressed via WNative().
type Router interface {
	WNative() chain.Address
	PairFor(token chain.Address) chain.Address

	// SyncPair forces the pool's reserves back in line with its actual
	// balances, the pair's public sync entry point.
	SyncPair(token chain.Address)

	GetAmountsOut(amountIn *uint256.Int, path []chain.Address) ([]*uint256.Int, error)

	AddLiquidityNative(caller, token chain.Address,
		amountTokenDesired, amountTokenMin, amountNativeMin, nativeValue *uint256.Int,
		to chain.Address, deadline time.Time) (*AddLiquidityResult, error)

	SwapExactNativeForTokens(caller chain.Address, value, amountOutMin *uint256.Int,
		path []chain.Address, to chain.Address, deadline time.Time) (*uint256.Int, error)

	SwapExactTokensForNativeSupportingFeeOnTransferTokens(caller chain.Address,
		amountIn, amountOutMin *uint256.Int,
		path []chain.Address, to chain.Address, deadline time.Time) (*uint256.Int, error)
}

var (
	ErrExpired               = errors.New("EXPIRED")
	ErrInvalidPath           = errors.New("INVALID_PATH")
	ErrPairNotFound          = errors.New("PAIR_NOT_FOUND")
	ErrPairExists            = errors.New("PAIR_EXISTS")
	ErrInsufficientOutput    = errors.New("INSUFFICIENT_OUTPUT_AMOUNT")
	ErrInsufficientAmount    = errors.New("INSUFFICIENT_AMOUNT")
	ErrInsufficientLiquidity = errors.New("INSUFFICIENT_LIQUIDITY")
)
