// internal/storage/models/liquidity_event.go
package models

import "time"

// Liquidity event sources.
const (
	LiquiditySourceBridge     = "bridge"
	LiquiditySourceSettlement = "settlement"
)

// LiquidityEvent is one pool deposit, made either by the fee bridge or
// by sale settlement.
type LiquidityEvent struct {
	BaseModel
	Source        string    `gorm:"index;not null;type:varchar(20)"`
	TokensSwapped string    `gorm:"type:numeric(78,0)"`
	TokensPaired  string    `gorm:"type:numeric(78,0);not null"`
	NativePaired  string    `gorm:"type:numeric(78,0);not null"`
	PoolShares    string    `gorm:"type:numeric(78,0);not null"`
	OccurredAt    time.Time `gorm:"index;not null"`
}
