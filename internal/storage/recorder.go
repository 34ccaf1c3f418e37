// internal/storage/recorder.go
package storage

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
	"github.com/hlhdaiaaii/trophy-token/internal/storage/models"
)

// Recorder subscribes to the event bus and persists sale and ledger
// history. Persistence failures are logged, never propagated back into
// ledger operations.
type Recorder struct {
	store  Storage
	price  *uint256.Int
	subs   []events.Subscription
	logger *zap.Logger
}

// NewRecorder attaches a recorder to the bus. price is the sale's
// native-per-token rate, used to denormalize the token entitlement onto
// the stored contribution row.
func NewRecorder(store Storage, bus *events.Bus, price *uint256.Int, logger *zap.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		price:  new(uint256.Int).Set(price),
		logger: logger.Named("recorder"),
	}

	r.subs = append(r.subs,
		bus.SubscribeFunc(events.PurchaseAccepted, r.onPurchase),
		bus.SubscribeFunc(events.TokensClaimed, r.onClaim),
		bus.SubscribeFunc(events.ContributionRefunded, r.onRefund),
		bus.SubscribeFunc(events.FeeCollected, r.onFee),
		bus.SubscribeFunc(events.LiquidityBridged, r.onBridge),
		bus.SubscribeFunc(events.SaleFinalized, r.onFinalize),
	)
	return r
}

// Detach removes all bus subscriptions.
func (r *Recorder) Detach() {
	for _, s := range r.subs {
		s.Unsubscribe()
	}
	r.subs = nil
}

func (r *Recorder) onPurchase(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.PurchaseAcceptedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}
	err := r.store.SaveContribution(ctx, &models.Contribution{
		Purchaser:   string(ev.Purchaser),
		Amount:      ev.Contribution.Dec(),
		TokensOwed:  chain.TokensForNative(ev.Contribution, r.price).Dec(),
		Status:      models.ContributionPending,
		PurchasedAt: ev.Timestamp(),
	})
	if err != nil {
		r.logger.Error("Failed to persist contribution",
			zap.String("purchaser", string(ev.Purchaser)), zap.Error(err))
	}
	return nil
}

func (r *Recorder) onClaim(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.TokensClaimedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}
	err := r.store.UpdateContributionStatus(ctx, string(ev.Purchaser), models.ContributionClaimed)
	if err != nil {
		r.logger.Error("Failed to mark contribution claimed",
			zap.String("purchaser", string(ev.Purchaser)), zap.Error(err))
	}
	return nil
}

func (r *Recorder) onRefund(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.ContributionRefundedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}
	err := r.store.UpdateContributionStatus(ctx, string(ev.Purchaser), models.ContributionRefunded)
	if err != nil {
		r.logger.Error("Failed to mark contribution refunded",
			zap.String("purchaser", string(ev.Purchaser)), zap.Error(err))
	}
	return nil
}

func (r *Recorder) onFee(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.FeeCollectedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}
	err := r.store.SaveFeeRecord(ctx, &models.FeeRecord{
		FromAddress: string(ev.From),
		ToAddress:   string(ev.To),
		Amount:      ev.Amount.Dec(),
		Fee:         ev.Fee.Dec(),
		Burned:      ev.Burned.Dec(),
		ToLiquidity: ev.Liquidity.Dec(),
		OccurredAt:  ev.Timestamp(),
	})
	if err != nil {
		r.logger.Error("Failed to persist fee record", zap.Error(err))
	}
	return nil
}

func (r *Recorder) onBridge(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.LiquidityBridgedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}
	err := r.store.SaveLiquidityEvent(ctx, &models.LiquidityEvent{
		Source:        models.LiquiditySourceBridge,
		TokensSwapped: ev.TokensSwapped.Dec(),
		TokensPaired:  ev.TokensPaired.Dec(),
		NativePaired:  ev.NativePaired.Dec(),
		PoolShares:    ev.PoolShares.Dec(),
		OccurredAt:    ev.Timestamp(),
	})
	if err != nil {
		r.logger.Error("Failed to persist bridge event", zap.Error(err))
	}
	return nil
}

func (r *Recorder) onFinalize(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.SaleFinalizedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}
	err := r.store.SaveLiquidityEvent(ctx, &models.LiquidityEvent{
		Source:       models.LiquiditySourceSettlement,
		TokensPaired: ev.LiquidityTokens.Dec(),
		NativePaired: ev.LiquidityNative.Dec(),
		PoolShares:   ev.PoolShares.Dec(),
		OccurredAt:   ev.Timestamp(),
	})
	if err != nil {
		r.logger.Error("Failed to persist settlement event", zap.Error(err))
	}
	return nil
}
