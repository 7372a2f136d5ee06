package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tollgate/contexts/billing-core/subscription-ledger/domain/entities"
	"tollgate/contexts/billing-core/subscription-ledger/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetRecord(ctx context.Context, subscriber string) (entities.SubscriberRecord, bool, error) {
	var row subscriberRecordModel
	err := r.db.WithContext(ctx).
		Where("subscriber = ?", subscriber).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.SubscriberRecord{}, false, nil
		}
		return entities.SubscriberRecord{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) UpsertRecord(ctx context.Context, record entities.SubscriberRecord) error {
	row := subscriberRecordModelFromEntity(record)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subscriber"}},
			UpdateAll: true,
		}).
		Create(&row).
		Error
}

// SystemClock implements ports.Clock using wall-clock UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type subscriberRecordModel struct {
	Subscriber        string    `gorm:"column:subscriber;primaryKey"`
	Tier              string    `gorm:"column:tier"`
	LastTransactionID uint64    `gorm:"column:last_transaction_id"`
	ExpiresAt         time.Time `gorm:"column:expires_at"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (subscriberRecordModel) TableName() string {
	return "subscriber_records"
}

func subscriberRecordModelFromEntity(record entities.SubscriberRecord) subscriberRecordModel {
	return subscriberRecordModel{
		Subscriber:        record.Subscriber,
		Tier:              record.Tier.String(),
		LastTransactionID: record.LastTransactionID,
		ExpiresAt:         record.ExpiresAt.UTC(),
		CreatedAt:         record.CreatedAt.UTC(),
		UpdatedAt:         record.UpdatedAt.UTC(),
	}
}

func (m subscriberRecordModel) toEntity() entities.SubscriberRecord {
	tier, err := entities.ParseTier(m.Tier)
	if err != nil {
		tier = entities.TierMonthly
	}
	return entities.SubscriberRecord{
		Subscriber:        m.Subscriber,
		Tier:              tier,
		LastTransactionID: m.LastTransactionID,
		ExpiresAt:         m.ExpiresAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

var _ ports.Repository = (*Repository)(nil)
