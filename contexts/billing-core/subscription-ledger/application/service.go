package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tollgate/contexts/billing-core/subscription-ledger/domain/entities"
	domainerrors "tollgate/contexts/billing-core/subscription-ledger/domain/errors"
	"tollgate/contexts/billing-core/subscription-ledger/ports"
	"tollgate/internal/shared/authz"
)

// Service is the subscription ledger. Writes are trusted once the caller holds
// the ledger-writer role; payment legitimacy is the manager's concern, so
// duplicate transaction ids are not rejected here.
type Service struct {
	Repo     ports.Repository
	Registry *authz.Registry
	Clock    ports.Clock
	Logger   *slog.Logger
}

// SetSubscription extends the subscriber's expiration by the tier period
// computed from max(now, current expiration). Back-to-back renewals stack,
// lapsed renewals reset against current time.
func (s Service) SetSubscription(
	ctx context.Context,
	caller string,
	subscriber string,
	transactionID uint64,
	tier entities.Tier,
) (entities.SubscriberRecord, error) {
	if err := s.Registry.Require(ctx, caller, authz.RoleLedgerWriter); err != nil {
		return entities.SubscriberRecord{}, err
	}
	subscriber = strings.TrimSpace(subscriber)
	if subscriber == "" {
		return entities.SubscriberRecord{}, domainerrors.ErrInvalidSubscriber
	}
	if transactionID == 0 {
		return entities.SubscriberRecord{}, domainerrors.ErrInvalidTransactionID
	}
	if !tier.Valid() {
		return entities.SubscriberRecord{}, domainerrors.ErrInvalidTier
	}

	now := s.now()
	record, found, err := s.Repo.GetRecord(ctx, subscriber)
	if err != nil {
		return entities.SubscriberRecord{}, err
	}

	base := now
	if found && record.ExpiresAt.After(now) {
		base = record.ExpiresAt
	}
	expiresAt := base.Add(tier.Period())
	if found && expiresAt.Before(record.ExpiresAt) {
		return entities.SubscriberRecord{}, domainerrors.ErrExpirationRegression
	}

	updated := entities.SubscriberRecord{
		Subscriber:        subscriber,
		Tier:              tier,
		LastTransactionID: transactionID,
		ExpiresAt:         expiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if found {
		updated.CreatedAt = record.CreatedAt
	}
	if err := s.Repo.UpsertRecord(ctx, updated); err != nil {
		return entities.SubscriberRecord{}, err
	}

	ResolveLogger(s.Logger).Info("subscription extended",
		"event", "ledger_subscription_extended",
		"module", "billing-core/subscription-ledger",
		"layer", "application",
		"subscriber", subscriber,
		"tier", tier.String(),
		"transaction_id", transactionID,
		"expires_at", expiresAt.UTC().Format(time.RFC3339),
	)
	return updated, nil
}

// GetLastTransactionID returns zero when the subscriber has no record.
func (s Service) GetLastTransactionID(ctx context.Context, subscriber string) (uint64, error) {
	record, found, err := s.Repo.GetRecord(ctx, strings.TrimSpace(subscriber))
	if err != nil || !found {
		return 0, err
	}
	return record.LastTransactionID, nil
}

// GetExpirationTimestamp returns the zero time when the subscriber has no record.
func (s Service) GetExpirationTimestamp(ctx context.Context, subscriber string) (time.Time, error) {
	record, found, err := s.Repo.GetRecord(ctx, strings.TrimSpace(subscriber))
	if err != nil || !found {
		return time.Time{}, err
	}
	return record.ExpiresAt, nil
}

func (s Service) GetRecord(ctx context.Context, subscriber string) (entities.SubscriberRecord, bool, error) {
	return s.Repo.GetRecord(ctx, strings.TrimSpace(subscriber))
}

func (s Service) Authorize(ctx context.Context, actor string, principal string, role authz.Role) error {
	return s.Registry.Authorize(ctx, actor, principal, role)
}

func (s Service) Authorized(ctx context.Context, principal string) (authz.Role, error) {
	return s.Registry.Authorized(ctx, principal)
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}
