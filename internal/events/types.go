// internal/events/types.go
package events

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
)

// EventType represents the type of event.
type EventType string

const (
	// Sale lifecycle
	PurchaseAccepted     EventType = "sale.purchase"
	SaleFinalized        EventType = "sale.finalized"
	SaleCanceled         EventType = "sale.canceled"
	TokensClaimed        EventType = "sale.claimed"
	ContributionRefunded EventType = "sale.refunded"

	// Ledger
	FeeCollected          EventType = "token.fee_collected"
	LiquidityBridged      EventType = "token.liquidity_bridged"
	LiquidityBridgeFailed EventType = "token.liquidity_bridge_failed"

	// Market
	PriceUpdated EventType = "market.price_updated"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType { return e.EventType }

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }

// At builds the shared base for an event occurring at t.
func At(t EventType, at time.Time) BaseEvent {
	return BaseEvent{EventType: t, EventTime: at}
}

// PurchaseAcceptedEvent is emitted when a contribution is accepted.
type PurchaseAcceptedEvent struct {
	BaseEvent
	Purchaser    chain.Address
	Contribution *uint256.Int
	CurrentCap   *uint256.Int
}

// SaleFinalizedEvent is emitted once, at settlement.
type SaleFinalizedEvent struct {
	BaseEvent
	Payout          chain.Address
	LiquidityNative *uint256.Int
	LiquidityTokens *uint256.Int
	OperatorNative  *uint256.Int
	PoolShares      *uint256.Int
}

// SaleCanceledEvent is emitted when the sale is permanently canceled.
type SaleCanceledEvent struct {
	BaseEvent
}

// TokensClaimedEvent is emitted when a purchaser withdraws tokens.
type TokensClaimedEvent struct {
	BaseEvent
	Purchaser chain.Address
	Tokens    *uint256.Int
}

// ContributionRefundedEvent is emitted when a contribution is returned.
type ContributionRefundedEvent struct {
	BaseEvent
	Purchaser chain.Address
	Amount    *uint256.Int
}

// FeeCollectedEvent is emitted for every taxed transfer.
type FeeCollectedEvent struct {
	BaseEvent
	From      chain.Address
	To        chain.Address
	Amount    *uint256.Int
	Fee       *uint256.Int
	Burned    *uint256.Int
	Liquidity *uint256.Int
}

// LiquidityBridgedEvent is emitted when the bridge converts accumulated
// fees into a pooled position.
type LiquidityBridgedEvent struct {
	BaseEvent
	TokensSwapped *uint256.Int
	TokensPaired  *uint256.Int
	NativePaired  *uint256.Int
	PoolShares    *uint256.Int
}

// LiquidityBridgeFailedEvent is emitted when a bridge attempt fails and
// its fee balance is retained for a later run.
type LiquidityBridgeFailedEvent struct {
	BaseEvent
	Reason string
}

// PriceUpdatedEvent carries the latest pair spot price.
type PriceUpdatedEvent struct {
	BaseEvent
	PriceNative   *uint256.Int
	ReserveToken  *uint256.Int
	ReserveNative *uint256.Int
}
