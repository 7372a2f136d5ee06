package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ledgerentities "tollgate/contexts/billing-core/subscription-ledger/domain/entities"
	"tollgate/contexts/billing-core/subscription-manager/domain/entities"
	domainerrors "tollgate/contexts/billing-core/subscription-manager/domain/errors"
	"tollgate/contexts/billing-core/subscription-manager/ports"
	"tollgate/internal/shared/outbox"
)

const (
	vaultAccount = "@vault"

	settingBeneficiary = "beneficiary"
	settingEndpoint    = "oracle_endpoint"
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

func (r *Repository) CreateRequest(ctx context.Context, request entities.VerificationRequest) error {
	row := requestModelFromEntity(request)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrInvalidRequest
		}
		return err
	}
	return nil
}

func (r *Repository) GetRequest(ctx context.Context, requestID string) (entities.VerificationRequest, bool, error) {
	var row verificationRequestModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VerificationRequest{}, false, nil
		}
		return entities.VerificationRequest{}, false, err
	}
	return row.toEntity(), true, nil
}

// CompleteRequest relies on the state predicate in the UPDATE to guarantee at
// most one applied transition per request id.
func (r *Repository) CompleteRequest(
	ctx context.Context,
	requestID string,
	state entities.VerificationState,
	completedAt time.Time,
) (entities.VerificationRequest, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&verificationRequestModel{}).
		Where("request_id = ? AND state = ?", requestID, string(entities.StateRequested)).
		Updates(map[string]any{
			"state":        string(state),
			"completed_at": completedAt.UTC(),
		})
	if result.Error != nil {
		return entities.VerificationRequest{}, false, result.Error
	}
	applied := result.RowsAffected > 0

	request, found, err := r.GetRequest(ctx, requestID)
	if err != nil {
		return entities.VerificationRequest{}, false, err
	}
	if !found {
		return entities.VerificationRequest{}, false, nil
	}
	return request, applied, nil
}

func (r *Repository) ListRequestedBefore(ctx context.Context, cutoff time.Time, limit int) ([]entities.VerificationRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []verificationRequestModel
	if err := r.db.WithContext(ctx).
		Where("state = ? AND requested_at < ?", string(entities.StateRequested), cutoff.UTC()).
		Order("requested_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.VerificationRequest, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) Credit(ctx context.Context, amount uint64) error {
	return r.adjustBalance(ctx, vaultAccount, int64(amount))
}

func (r *Repository) Debit(ctx context.Context, amount uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return debitLocked(tx, amount)
	})
}

func (r *Repository) TransferTo(ctx context.Context, account string, amount uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := debitLocked(tx, amount); err != nil {
			return err
		}
		return creditAccount(tx, account, int64(amount))
	})
}

func (r *Repository) WithdrawAll(ctx context.Context, account string) (uint64, error) {
	var amount uint64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockedVaultRow(tx)
		if err != nil {
			return err
		}
		amount = row.Balance
		if amount == 0 {
			return nil
		}
		if err := tx.Model(&vaultAccountModel{}).
			Where("account = ?", vaultAccount).
			Update("balance", 0).
			Error; err != nil {
			return err
		}
		return creditAccount(tx, account, int64(amount))
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func (r *Repository) Balance(ctx context.Context) (uint64, error) {
	return r.accountBalance(ctx, vaultAccount)
}

func (r *Repository) AccountBalance(ctx context.Context, account string) (uint64, error) {
	return r.accountBalance(ctx, account)
}

func (r *Repository) GetBeneficiary(ctx context.Context) (string, error) {
	return r.getSetting(ctx, settingBeneficiary)
}

func (r *Repository) SetBeneficiary(ctx context.Context, account string) error {
	return r.putSetting(ctx, settingBeneficiary, account)
}

func (r *Repository) GetEndpoint(ctx context.Context) (string, error) {
	return r.getSetting(ctx, settingEndpoint)
}

func (r *Repository) SetEndpoint(ctx context.Context, url string) error {
	return r.putSetting(ctx, settingEndpoint, url)
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     envelope.EventID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.EntityID,
		Payload:      payload,
		Status:       outbox.StatusPending,
		CreatedAt:    envelope.OccurredAtUTC.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      row.Payload,
			CreatedAt:    row.CreatedAt,
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outbox.StatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("outbox row not found")
	}
	return nil
}

func (r *Repository) adjustBalance(ctx context.Context, account string, delta int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return creditAccount(tx, account, delta)
	})
}

func (r *Repository) accountBalance(ctx context.Context, account string) (uint64, error) {
	var row vaultAccountModel
	err := r.db.WithContext(ctx).
		Where("account = ?", account).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Balance, nil
}

func (r *Repository) getSetting(ctx context.Context, key string) (string, error) {
	var row settingModel
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return row.Value, nil
}

func (r *Repository) putSetting(ctx context.Context, key string, value string) error {
	row := settingModel{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).
		Error
}

func lockedVaultRow(tx *gorm.DB) (vaultAccountModel, error) {
	var row vaultAccountModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account = ?", vaultAccount).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return vaultAccountModel{Account: vaultAccount}, nil
		}
		return vaultAccountModel{}, err
	}
	return row, nil
}

func debitLocked(tx *gorm.DB, amount uint64) error {
	row, err := lockedVaultRow(tx)
	if err != nil {
		return err
	}
	if row.Balance < amount {
		return domainerrors.ErrInsufficientFunds
	}
	return tx.Model(&vaultAccountModel{}).
		Where("account = ?", vaultAccount).
		Update("balance", row.Balance-amount).
		Error
}

func creditAccount(tx *gorm.DB, account string, delta int64) error {
	row := vaultAccountModel{
		Account:   account,
		Balance:   uint64(delta),
		UpdatedAt: time.Now().UTC(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":    gorm.Expr("vault_accounts.balance + ?", delta),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&row).Error
}

// SystemClock implements ports.Clock using wall-clock UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDGenerator implements ports.IDGenerator using RFC 4122 UUID v4 values.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

type verificationRequestModel struct {
	RequestID     string     `gorm:"column:request_id;primaryKey"`
	TransactionID uint64     `gorm:"column:transaction_id"`
	Tier          string     `gorm:"column:tier"`
	Payer         string     `gorm:"column:payer"`
	Payment       uint64     `gorm:"column:payment"`
	GasPrice      uint64     `gorm:"column:gas_price"`
	GasLimit      uint64     `gorm:"column:gas_limit"`
	OracleCost    uint64     `gorm:"column:oracle_cost"`
	Retained      uint64     `gorm:"column:retained"`
	State         string     `gorm:"column:state"`
	RequestedAt   time.Time  `gorm:"column:requested_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at"`
}

func (verificationRequestModel) TableName() string {
	return "verification_requests"
}

func requestModelFromEntity(request entities.VerificationRequest) verificationRequestModel {
	row := verificationRequestModel{
		RequestID:     request.RequestID,
		TransactionID: request.TransactionID,
		Tier:          request.Tier.String(),
		Payer:         request.Payer,
		Payment:       request.Payment,
		GasPrice:      request.GasPrice,
		GasLimit:      request.GasLimit,
		OracleCost:    request.OracleCost,
		Retained:      request.Retained,
		State:         string(request.State),
		RequestedAt:   request.RequestedAt.UTC(),
	}
	if request.CompletedAt != nil {
		ts := request.CompletedAt.UTC()
		row.CompletedAt = &ts
	}
	return row
}

func (m verificationRequestModel) toEntity() entities.VerificationRequest {
	tier, err := ledgerentities.ParseTier(m.Tier)
	if err != nil {
		tier = ledgerentities.TierMonthly
	}
	request := entities.VerificationRequest{
		RequestID:     m.RequestID,
		TransactionID: m.TransactionID,
		Tier:          tier,
		Payer:         m.Payer,
		Payment:       m.Payment,
		GasPrice:      m.GasPrice,
		GasLimit:      m.GasLimit,
		OracleCost:    m.OracleCost,
		Retained:      m.Retained,
		State:         entities.VerificationState(m.State),
		RequestedAt:   m.RequestedAt,
	}
	if m.CompletedAt != nil {
		ts := m.CompletedAt.UTC()
		request.CompletedAt = &ts
	}
	return request
}

type vaultAccountModel struct {
	Account   string    `gorm:"column:account;primaryKey"`
	Balance   uint64    `gorm:"column:balance"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (vaultAccountModel) TableName() string {
	return "vault_accounts"
}

type settingModel struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (settingModel) TableName() string {
	return "manager_settings"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "manager_outbox"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.RequestRepository = (*Repository)(nil)
var _ ports.FundsVault = (*Repository)(nil)
var _ ports.SettingsStore = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
