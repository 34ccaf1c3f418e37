// internal/storage/models/fee_record.go
package models

import "time"

// FeeRecord is the persisted form of one taxed transfer.
type FeeRecord struct {
	BaseModel
	FromAddress string    `gorm:"index;not null;type:varchar(128)"`
	ToAddress   string    `gorm:"index;not null;type:varchar(128)"`
	Amount      string    `gorm:"type:numeric(78,0);not null"`
	Fee         string    `gorm:"type:numeric(78,0);not null"`
	Burned      string    `gorm:"type:numeric(78,0);not null"`
	ToLiquidity string    `gorm:"type:numeric(78,0);not null"`
	OccurredAt  time.Time `gorm:"index;not null"`
}
