// =============================
// File: internal/amm/router.go
// =============================
package amm

import (
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
)

// Swap fee: 25 bps taken on input, PancakeSwap-style.
const (
	swapFeeNumerator   = 9975
	swapFeeDenominator = 10_000
)

// RouterAddress is the router's own account.
const RouterAddress chain.Address = "amm:router"

// WNativeAddress marks the wrapped-native leg in swap paths.
const WNativeAddress chain.Address = "amm:wnative"

// DexRouter is the in-process constant-product router. It implements the
// Router interface the ledger and controller consume.
type DexRouter struct {
	env     *chain.Env
	factory *Factory
	logger  *zap.Logger
}

// NewDexRouter creates a router over a fresh factory.
func NewDexRouter(env *chain.Env, logger *zap.Logger) *DexRouter {
	return &DexRouter{
		env:     env,
		factory: NewFactory(env),
		logger:  logger.Named("amm"),
	}
}

// Factory exposes pair creation for token deployment.
func (r *DexRouter) Factory() *Factory { return r.factory }

// WNative returns the wrapped-native path marker.
func (r *DexRouter) WNative() chain.Address { return WNativeAddress }

// PairFor returns the pool address for a token, or the zero address.
func (r *DexRouter) PairFor(token chain.Address) chain.Address {
	if p := r.factory.GetPair(token); p != nil {
		return p.Address()
	}
	return chain.ZeroAddress
}

// Pair returns the pool itself, for reserve inspection.
func (r *DexRouter) Pair(token chain.Address) *Pair {
	return r.factory.GetPair(token)
}

// SyncPair re-syncs the pool's reserves with its balances.
func (r *DexRouter) SyncPair(token chain.Address) {
	if p := r.factory.GetPair(token); p != nil {
		p.Sync()
	}
}

// getAmountOut applies the constant-product formula with the swap fee on
// the input side.
func getAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	inWithFee := new(uint256.Int).Mul(amountIn, uint256.NewInt(swapFeeNumerator))
	num := new(uint256.Int).Mul(inWithFee, reserveOut)
	den := new(uint256.Int).Mul(reserveIn, uint256.NewInt(swapFeeDenominator))
	den.Add(den, inWithFee)
	return num.Div(num, den), nil
}

// resolvePath validates a two-hop path and returns the pair plus the swap
// direction (true when the input leg is the token).
func (r *DexRouter) resolvePath(path []chain.Address) (*Pair, bool, error) {
	if len(path) != 2 {
		return nil, false, ErrInvalidPath
	}
	var tokenAddr chain.Address
	var tokenIn bool
	switch {
	case path[0] == WNativeAddress:
		tokenAddr, tokenIn = path[1], false
	case path[1] == WNativeAddress:
		tokenAddr, tokenIn = path[0], true
	default:
		return nil, false, ErrInvalidPath
	}
	p := r.factory.GetPair(tokenAddr)
	if p == nil {
		return nil, false, ErrPairNotFound
	}
	return p, tokenIn, nil
}

// GetAmountsOut estimates swap output along a path without moving funds.
func (r *DexRouter) GetAmountsOut(amountIn *uint256.Int, path []chain.Address) ([]*uint256.Int, error) {
	p, tokenIn, err := r.resolvePath(path)
	if err != nil {
		return nil, err
	}
	resToken, resNative := p.GetReserves()
	resIn, resOut := resNative, resToken
	if tokenIn {
		resIn, resOut = resToken, resNative
	}
	out, err := getAmountOut(amountIn, resIn, resOut)
	if err != nil {
		return nil, err
	}
	return []*uint256.Int{new(uint256.Int).Set(amountIn), out}, nil
}

func (r *DexRouter) ensure(deadline time.Time) error {
	if r.env.Now().After(deadline) {
		return ErrExpired
	}
	return nil
}

// AddLiquidityNative deposits tokens plus native currency and mints pool
// shares to `to`. Token amounts are pulled from the caller through the
// router's allowance; unused native value never leaves the caller.
func (r *DexRouter) AddLiquidityNative(caller, token chain.Address,
	amountTokenDesired, amountTokenMin, amountNativeMin, nativeValue *uint256.Int,
	to chain.Address, deadline time.Time) (*AddLiquidityResult, error) {

	if err := r.ensure(deadline); err != nil {
		return nil, err
	}
	p := r.factory.GetPair(token)
	if p == nil {
		return nil, ErrPairNotFound
	}

	resToken, resNative := p.GetReserves()
	amountToken := new(uint256.Int).Set(amountTokenDesired)
	amountNative := new(uint256.Int).Set(nativeValue)

	if !resToken.IsZero() && !resNative.IsZero() {
		// Match the pool ratio: prefer the full token amount, fall back to
		// the full native value.
		nativeOptimal := new(uint256.Int).Mul(amountTokenDesired, resNative)
		nativeOptimal.Div(nativeOptimal, resToken)
		if !nativeOptimal.Gt(nativeValue) {
			if nativeOptimal.Lt(amountNativeMin) {
				return nil, ErrInsufficientAmount
			}
			amountNative = nativeOptimal
		} else {
			tokenOptimal := new(uint256.Int).Mul(nativeValue, resToken)
			tokenOptimal.Div(tokenOptimal, resNative)
			if tokenOptimal.Gt(amountTokenDesired) || tokenOptimal.Lt(amountTokenMin) {
				return nil, ErrInsufficientAmount
			}
			amountToken = tokenOptimal
		}
	}

	if err := p.token.TransferFrom(RouterAddress, caller, p.Address(), amountToken); err != nil {
		return nil, err
	}
	if err := r.env.Transfer(caller, p.Address(), amountNative); err != nil {
		return nil, err
	}
	liquidity, err := p.mint(to)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Liquidity added",
		zap.String("token", string(token)),
		zap.String("amount_token", amountToken.Dec()),
		zap.String("amount_native", amountNative.Dec()),
		zap.String("liquidity", liquidity.Dec()))

	return &AddLiquidityResult{
		AmountToken:  amountToken,
		AmountNative: amountNative,
		Liquidity:    liquidity,
	}, nil
}

// SwapExactNativeForTokens swaps attached native value for tokens. The
// output leg goes through the token's transfer path, so a fee-on-transfer
// token delivers less than the quoted amount.
func (r *DexRouter) SwapExactNativeForTokens(caller chain.Address, value, amountOutMin *uint256.Int,
	path []chain.Address, to chain.Address, deadline time.Time) (*uint256.Int, error) {

	if err := r.ensure(deadline); err != nil {
		return nil, err
	}
	p, tokenIn, err := r.resolvePath(path)
	if err != nil {
		return nil, err
	}
	if tokenIn {
		return nil, ErrInvalidPath
	}

	resToken, resNative := p.GetReserves()
	out, err := getAmountOut(value, resNative, resToken)
	if err != nil {
		return nil, err
	}
	if out.Lt(amountOutMin) {
		return nil, ErrInsufficientOutput
	}
	if err := r.env.Transfer(caller, p.Address(), value); err != nil {
		return nil, err
	}
	p.sync()
	if err := p.sendToken(to, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SwapExactTokensForNativeSupportingFeeOnTransferTokens swaps an exact
// token amount for native currency. The input is measured on the pool
// side after transfer, which tolerates transfer fees on the token.
func (r *DexRouter) SwapExactTokensForNativeSupportingFeeOnTransferTokens(caller chain.Address,
	amountIn, amountOutMin *uint256.Int,
	path []chain.Address, to chain.Address, deadline time.Time) (*uint256.Int, error) {

	if err := r.ensure(deadline); err != nil {
		return nil, err
	}
	p, tokenIn, err := r.resolvePath(path)
	if err != nil {
		return nil, err
	}
	if !tokenIn {
		return nil, ErrInvalidPath
	}

	if err := p.token.TransferFrom(RouterAddress, caller, p.Address(), amountIn); err != nil {
		return nil, err
	}
	// Reserves are read after the pull: the token's transfer path may have
	// taken its fee or run the liquidity bridge in between, and only the
	// balance delta on the pool side is the real input.
	resToken, resNative := p.GetReserves()
	received := new(uint256.Int).Sub(p.token.BalanceOf(p.Address()), resToken)
	out, err := getAmountOut(received, resToken, resNative)
	if err != nil {
		return nil, err
	}
	if out.Lt(amountOutMin) {
		return nil, ErrInsufficientOutput
	}
	p.sync()
	if err := p.sendNative(to, out); err != nil {
		return nil, err
	}
	return out, nil
}
