package ports

import (
	"context"
	"time"

	"tollgate/contexts/billing-core/subscription-ledger/domain/entities"
)

type Clock interface {
	Now() time.Time
}

// Repository persists subscriber records keyed by subscriber identity.
type Repository interface {
	GetRecord(ctx context.Context, subscriber string) (entities.SubscriberRecord, bool, error)
	UpsertRecord(ctx context.Context, record entities.SubscriberRecord) error
}
