// internal/storage/models/contribution.go
package models

import "time"

// Contribution status values.
const (
	ContributionPending  = "pending"
	ContributionClaimed  = "claimed"
	ContributionRefunded = "refunded"
)

// Contribution is one accepted purchase. Amounts are 18-dec fixed-point
// integers stored as numeric strings; numeric(78,0) fits a full 256-bit
// value.
type Contribution struct {
	BaseModel
	Purchaser   string     `gorm:"unique;not null;type:varchar(128)"`
	Amount      string     `gorm:"type:numeric(78,0);not null"`
	TokensOwed  string     `gorm:"type:numeric(78,0);not null"`
	Status      string     `gorm:"index;not null;type:varchar(20)"`
	PurchasedAt time.Time  `gorm:"index;not null"`
	SettledAt   *time.Time `gorm:"index"`
}
