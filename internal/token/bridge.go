// =============================
// File: internal/token/bridge.go
// =============================
package token

import (
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
)

// bridgeDeadline bounds the router calls made by one bridge step.
const bridgeDeadline = time.Minute

// maybeBridge runs the liquidity bridge if it is armed: the accumulated
// fee-token balance is at or above the threshold, the sender is not the
// pair, and no bridge step is already on the stack. The inSwap flag is
// the re-entrancy lock: router calls made by the bridge re-enter the
// transfer path, and must not re-trigger it.
func (l *Ledger) maybeBridge(from chain.Address) {
	l.mu.Lock()
	if l.router == nil || l.inSwap || from == l.pairAddr {
		l.mu.Unlock()
		return
	}
	acc, ok := l.balances[l.addr]
	if !ok || acc.Lt(l.bridgeThreshold) {
		l.mu.Unlock()
		return
	}
	work := new(uint256.Int).Set(acc)
	l.inSwap = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.inSwap = false
		l.mu.Unlock()
	}()

	l.swapAndLiquify(work)
}

// swapAndLiquify converts the accumulated balance into a pooled position:
// half is swapped for native currency, then both halves are deposited as
// liquidity credited to the liquidity recipient. Any failure restores the
// balance it attempted to use and is swallowed; an ordinary transfer
// must never fail because this side effect did.
func (l *Ledger) swapAndLiquify(work *uint256.Int) {
	tokenSnap := l.Snapshot()
	envSnap := l.env.Snapshot()

	pairPortion := new(uint256.Int).Rsh(work, 1)
	swapPortion := new(uint256.Int).Sub(work, pairPortion)

	deadline := l.env.Now().Add(bridgeDeadline)
	path := []chain.Address{l.addr, l.router.WNative()}

	swapped, err := l.router.SwapExactTokensForNativeSupportingFeeOnTransferTokens(
		l.addr, swapPortion, uint256.NewInt(0), path, l.addr, deadline)
	if err != nil {
		l.Restore(tokenSnap)
		l.env.Restore(envSnap)
		l.router.SyncPair(l.addr)
		l.logger.Warn("Liquidity bridge swap failed, fee balance retained",
			zap.Error(err))
		l.publish(&events.LiquidityBridgeFailedEvent{
			BaseEvent: events.At(events.LiquidityBridgeFailed, l.env.Now()),
			Reason:    err.Error(),
		})
		return
	}

	res, err := l.router.AddLiquidityNative(l.addr, l.addr,
		pairPortion, uint256.NewInt(0), uint256.NewInt(0), swapped,
		l.liquidityTo, deadline)
	if err != nil {
		l.Restore(tokenSnap)
		l.env.Restore(envSnap)
		l.router.SyncPair(l.addr)
		l.logger.Warn("Liquidity bridge deposit failed, fee balance retained",
			zap.Error(err))
		l.publish(&events.LiquidityBridgeFailedEvent{
			BaseEvent: events.At(events.LiquidityBridgeFailed, l.env.Now()),
			Reason:    err.Error(),
		})
		return
	}

	l.logger.Info("Liquidity bridged",
		zap.String("tokens_swapped", swapPortion.Dec()),
		zap.String("tokens_paired", res.AmountToken.Dec()),
		zap.String("native_paired", res.AmountNative.Dec()),
		zap.String("pool_shares", res.Liquidity.Dec()))

	l.publish(&events.LiquidityBridgedEvent{
		BaseEvent:     events.At(events.LiquidityBridged, l.env.Now()),
		TokensSwapped: swapPortion,
		TokensPaired:  res.AmountToken,
		NativePaired:  res.AmountNative,
		PoolShares:    res.Liquidity,
	})
}
