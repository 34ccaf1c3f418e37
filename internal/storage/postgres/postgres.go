// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hlhdaiaaii/trophy-token/internal/storage"
	"github.com/hlhdaiaaii/trophy-token/internal/storage/models"
)

// gormLogger adapts zap to GORM's logger.Interface.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStorage opens a pooled connection to dsn.
func NewStorage(dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	gormLogger := newGormLogger(zapLogger.Named("gorm"))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStorage{
		db:     db,
		logger: zapLogger,
	}, nil
}

// RunMigrations applies the schema under an advisory lock so that only
// one deployment migrates at a time.
func (p *postgresStorage) RunMigrations() error {
	var lockObtained bool
	err := p.db.Raw("SELECT pg_try_advisory_lock(101)").Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(101)")

	err = p.db.AutoMigrate(
		&models.Contribution{},
		&models.FeeRecord{},
		&models.LiquidityEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (p *postgresStorage) SaveContribution(ctx context.Context, c *models.Contribution) error {
	return p.db.WithContext(ctx).Create(c).Error
}

func (p *postgresStorage) GetContribution(ctx context.Context, purchaser string) (*models.Contribution, error) {
	var c models.Contribution
	err := p.db.WithContext(ctx).Where("purchaser = ?", purchaser).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *postgresStorage) ListContributions(ctx context.Context, limit, offset int) ([]*models.Contribution, error) {
	var cs []*models.Contribution
	err := p.db.WithContext(ctx).
		Order("purchased_at asc").
		Limit(limit).
		Offset(offset).
		Find(&cs).Error
	return cs, err
}

func (p *postgresStorage) UpdateContributionStatus(ctx context.Context, purchaser string, status string) error {
	now := time.Now().UTC()
	return p.db.WithContext(ctx).Model(&models.Contribution{}).
		Where("purchaser = ?", purchaser).
		Updates(map[string]interface{}{
			"status":     status,
			"settled_at": &now,
		}).Error
}

func (p *postgresStorage) SaveFeeRecord(ctx context.Context, rec *models.FeeRecord) error {
	return p.db.WithContext(ctx).Create(rec).Error
}

func (p *postgresStorage) ListFeeRecords(ctx context.Context, limit, offset int) ([]*models.FeeRecord, error) {
	var recs []*models.FeeRecord
	err := p.db.WithContext(ctx).
		Order("occurred_at asc").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	return recs, err
}

func (p *postgresStorage) SaveLiquidityEvent(ctx context.Context, ev *models.LiquidityEvent) error {
	return p.db.WithContext(ctx).Create(ev).Error
}

func (p *postgresStorage) ListLiquidityEvents(ctx context.Context, source string, limit, offset int) ([]*models.LiquidityEvent, error) {
	q := p.db.WithContext(ctx).Order("occurred_at asc").Limit(limit).Offset(offset)
	if source != "" {
		q = q.Where("source = ?", source)
	}
	var evs []*models.LiquidityEvent
	err := q.Find(&evs).Error
	return evs, err
}
