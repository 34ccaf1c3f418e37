// =================================
// File: internal/crowdsale/operations.go
// =================================
package crowdsale

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/amm"
	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
)

// finalizeDeadline bounds the settlement's AMM interaction.
const finalizeDeadline = time.Minute

// Purchase accepts a native-currency contribution from caller. Each
// address gets exactly one accepted purchase; the window bounds are
// inclusive on both ends.
func (c *Controller) Purchase(caller chain.Address, value *uint256.Int) error {
	if caller == chain.ZeroAddress {
		return chain.ErrZeroAddress
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusActive {
		return ErrNotOccurring
	}
	now := c.env.Now()
	if now.Before(c.startTime) || now.After(c.endTime) {
		return ErrNotOccurring
	}
	if _, ok := c.purchasers[caller]; ok {
		return ErrAlreadyPurchased
	}
	if value.Lt(c.minPurchase) {
		return ErrPurchaseTooSmall
	}
	if value.Gt(c.maxPurchase) {
		return ErrPurchaseTooLarge
	}
	newCap := new(uint256.Int).Add(c.currentCap, value)
	if newCap.Gt(c.hardCap) {
		return ErrMetHardCap
	}

	// Custody transfer last: a failed debit leaves no record behind.
	if err := c.env.Transfer(caller, c.addr, value); err != nil {
		return err
	}

	c.currentCap = newCap
	c.purchasers[caller] = &Purchaser{
		Addr:         caller,
		Contribution: new(uint256.Int).Set(value),
		Terminal:     Unclaimed,
		PurchasedAt:  now,
	}
	c.order = append(c.order, caller)

	c.logger.Info("Purchase accepted",
		zap.String("purchaser", string(caller)),
		zap.String("contribution", chain.FormatUnits(value)),
		zap.String("current_cap", chain.FormatUnits(c.currentCap)))

	c.publish(&events.PurchaseAcceptedEvent{
		BaseEvent:    events.At(events.PurchaseAccepted, now),
		Purchaser:    caller,
		Contribution: new(uint256.Int).Set(value),
		CurrentCap:   new(uint256.Int).Set(c.currentCap),
	})
	return nil
}

// tokensOwed is the claim entitlement for one contribution, floored.
func (c *Controller) tokensOwed(contribution *uint256.Int) *uint256.Int {
	return chain.TokensForNative(contribution, c.price)
}

// liquiditySplit projects the settlement split of the current cap: the
// native slice destined for the pool, the tokens that pair with it at
// the listing price, and the operator remainder.
func (c *Controller) liquiditySplit() (liqNative, liqTokens, operator *uint256.Int) {
	liqNative = chain.BpsShare(c.currentCap, c.lpPercentBps)
	liqTokens = chain.TokensForNative(liqNative, c.listingPrice)
	operator = new(uint256.Int).Sub(c.currentCap, liqNative)
	return
}

// CalcTotalTokensRequired returns the total token amount settlement
// needs on the controller: every purchaser's claim entitlement plus the
// listing-price tokens that back the liquidity deposit. Minting exactly
// this amount is sufficient for Finalize.
func (c *Controller) CalcTotalTokensRequired() *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := uint256.NewInt(0)
	for _, addr := range c.order {
		total.Add(total, c.tokensOwed(c.purchasers[addr].Contribution))
	}
	_, liqTokens, _ := c.liquiditySplit()
	return total.Add(total, liqTokens)
}

// Finalize settles the sale: it seeds the AMM pool with the configured
// share of raised funds at the listing price, sends the remaining native
// currency to payout, and flips the status to Finalized. The whole
// settlement is atomic; any failed step leaves the sale Active with no
// partial effects.
func (c *Controller) Finalize(caller, payout chain.Address) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if payout == chain.ZeroAddress {
		return chain.ErrZeroAddress
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusActive {
		return ErrAlreadyFinalizedOrCanceled
	}

	required := uint256.NewInt(0)
	for _, addr := range c.order {
		required.Add(required, c.tokensOwed(c.purchasers[addr].Contribution))
	}
	liqNative, liqTokens, operator := c.liquiditySplit()
	required.Add(required, liqTokens)

	if c.tok.BalanceOf(c.addr).Lt(required) {
		return ErrInsufficientTokens
	}

	envSnap := c.env.Snapshot()
	tokSnap := c.tok.Snapshot()
	rollback := func() {
		c.tok.Restore(tokSnap)
		c.env.Restore(envSnap)
		c.router.SyncPair(c.tok.Address())
	}

	var shares *uint256.Int
	if !liqNative.IsZero() && !liqTokens.IsZero() {
		if err := c.tok.Approve(c.addr, amm.RouterAddress, liqTokens); err != nil {
			return fmt.Errorf("approve liquidity tokens: %w", err)
		}
		res, err := c.router.AddLiquidityNative(c.addr, c.tok.Address(),
			liqTokens, liqTokens, liqNative, liqNative,
			c.tok.LiquidityTo(), c.env.Now().Add(finalizeDeadline))
		if err != nil {
			rollback()
			return fmt.Errorf("seed liquidity: %w", err)
		}
		shares = res.Liquidity
	} else {
		shares = uint256.NewInt(0)
	}

	if !operator.IsZero() {
		if err := c.env.Transfer(c.addr, payout, operator); err != nil {
			rollback()
			return fmt.Errorf("operator payout: %w", err)
		}
	}

	c.status = StatusFinalized

	c.logger.Info("Sale finalized",
		zap.String("payout", string(payout)),
		zap.String("liquidity_native", chain.FormatUnits(liqNative)),
		zap.String("liquidity_tokens", chain.FormatUnits(liqTokens)),
		zap.String("operator_native", chain.FormatUnits(operator)))

	c.publish(&events.SaleFinalizedEvent{
		BaseEvent:       events.At(events.SaleFinalized, c.env.Now()),
		Payout:          payout,
		LiquidityNative: liqNative,
		LiquidityTokens: liqTokens,
		OperatorNative:  operator,
		PoolShares:      shares,
	})
	return nil
}

// CancelSale permanently cancels the sale, switching purchasers from the
// claim path to the refund path.
func (c *Controller) CancelSale(caller chain.Address) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusActive {
		return ErrAlreadyCanceledOrFinalized
	}
	c.status = StatusCanceled

	c.logger.Info("Sale canceled",
		zap.String("current_cap", chain.FormatUnits(c.currentCap)))

	c.publish(&events.SaleCanceledEvent{
		BaseEvent: events.At(events.SaleCanceled, c.env.Now()),
	})
	return nil
}

// Claim withdraws the caller's token entitlement after a finalized sale.
// One shot: a claimed record never pays again, and a canceled sale never
// pays tokens at all.
func (c *Controller) Claim(caller chain.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusFinalized {
		return ErrInvalidAction
	}
	rec, ok := c.purchasers[caller]
	if !ok || rec.Terminal != Unclaimed {
		return ErrInvalidAction
	}

	tokens := c.tokensOwed(rec.Contribution)
	if err := c.tok.Transfer(c.addr, caller, tokens); err != nil {
		return fmt.Errorf("claim payout: %w", err)
	}
	rec.Terminal = Claimed

	c.logger.Info("Tokens claimed",
		zap.String("purchaser", string(caller)),
		zap.String("tokens", chain.FormatUnits(tokens)))

	c.publish(&events.TokensClaimedEvent{
		BaseEvent: events.At(events.TokensClaimed, c.env.Now()),
		Purchaser: caller,
		Tokens:    tokens,
	})
	return nil
}

// Refund returns the caller's contribution after a canceled sale. One
// shot, mutually exclusive with Claim.
func (c *Controller) Refund(caller chain.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusCanceled {
		return ErrInvalidAction
	}
	rec, ok := c.purchasers[caller]
	if !ok || rec.Terminal != Unclaimed {
		return ErrInvalidAction
	}

	amount := new(uint256.Int).Set(rec.Contribution)
	if err := c.env.Transfer(c.addr, caller, amount); err != nil {
		return fmt.Errorf("refund: %w", err)
	}
	rec.Terminal = Refunded

	c.logger.Info("Contribution refunded",
		zap.String("purchaser", string(caller)),
		zap.String("amount", chain.FormatUnits(amount)))

	c.publish(&events.ContributionRefundedEvent{
		BaseEvent: events.At(events.ContributionRefunded, c.env.Now()),
		Purchaser: caller,
		Amount:    amount,
	})
	return nil
}
