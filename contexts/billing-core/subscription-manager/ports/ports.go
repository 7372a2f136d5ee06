package ports

import (
	"context"
	"time"

	ledgerentities "tollgate/contexts/billing-core/subscription-ledger/domain/entities"
	"tollgate/contexts/billing-core/subscription-manager/domain/entities"
	"tollgate/internal/shared/events"
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// SubscriptionStore is the ledger write interface consumed by the manager.
// The signature mirrors the ledger service so its value satisfies the port
// directly, without a bridging adapter.
type SubscriptionStore interface {
	SetSubscription(ctx context.Context, caller string, subscriber string, transactionID uint64, tier ledgerentities.Tier) (ledgerentities.SubscriberRecord, error)
	GetLastTransactionID(ctx context.Context, subscriber string) (uint64, error)
}

// RequestRepository persists the set of outstanding verification requests.
// CompleteRequest transitions Requested -> state and reports whether the
// transition applied; a request already terminal is left untouched.
type RequestRepository interface {
	CreateRequest(ctx context.Context, request entities.VerificationRequest) error
	GetRequest(ctx context.Context, requestID string) (entities.VerificationRequest, bool, error)
	CompleteRequest(ctx context.Context, requestID string, state entities.VerificationState, completedAt time.Time) (entities.VerificationRequest, bool, error)
	ListRequestedBefore(ctx context.Context, cutoff time.Time, limit int) ([]entities.VerificationRequest, error)
}

// FundsVault is the contract balance plus external account credits. Withdraw
// and transfers are atomic; the vault balance never goes negative.
type FundsVault interface {
	Credit(ctx context.Context, amount uint64) error
	Debit(ctx context.Context, amount uint64) error
	TransferTo(ctx context.Context, account string, amount uint64) error
	WithdrawAll(ctx context.Context, account string) (uint64, error)
	Balance(ctx context.Context) (uint64, error)
	AccountBalance(ctx context.Context, account string) (uint64, error)
}

// SettingsStore holds the manager's two scalar slots.
type SettingsStore interface {
	GetBeneficiary(ctx context.Context) (string, error)
	SetBeneficiary(ctx context.Context, account string) error
	GetEndpoint(ctx context.Context) (string, error)
	SetEndpoint(ctx context.Context, url string) error
}

// VerificationJob is the outbound oracle request contract.
type VerificationJob struct {
	RequestID     string
	TransactionID uint64
	Tier          string
	Payer         string
	GasPrice      uint64
	GasLimit      uint64
	CallbackURL   string
}

// OracleClient dispatches a verification job to the external oracle. The
// result arrives later through the manager's callback entry point.
type OracleClient interface {
	RequestVerification(ctx context.Context, job VerificationJob) error
}

type EventEnvelope = events.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
