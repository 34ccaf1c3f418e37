// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/hlhdaiaaii/trophy-token/internal/storage/models"
)

// Storage is the persistence surface for sale and ledger history.
type Storage interface {
	// Contributions
	SaveContribution(ctx context.Context, c *models.Contribution) error
	GetContribution(ctx context.Context, purchaser string) (*models.Contribution, error)
	ListContributions(ctx context.Context, limit, offset int) ([]*models.Contribution, error)
	UpdateContributionStatus(ctx context.Context, purchaser string, status string) error

	// Fee history
	SaveFeeRecord(ctx context.Context, rec *models.FeeRecord) error
	ListFeeRecords(ctx context.Context, limit, offset int) ([]*models.FeeRecord, error)

	// Liquidity history
	SaveLiquidityEvent(ctx context.Context, ev *models.LiquidityEvent) error
	ListLiquidityEvents(ctx context.Context, source string, limit, offset int) ([]*models.LiquidityEvent, error)

	RunMigrations() error
}
