package entities

import (
	"strings"
	"time"

	domainerrors "tollgate/contexts/billing-core/subscription-ledger/domain/errors"
)

// Tier is the subscription period class.
type Tier uint8

const (
	TierMonthly Tier = iota
	TierYearly
)

const (
	monthlyPeriod = 30 * 24 * time.Hour
	yearlyPeriod  = 365 * 24 * time.Hour
)

func (t Tier) Period() time.Duration {
	if t == TierYearly {
		return yearlyPeriod
	}
	return monthlyPeriod
}

func (t Tier) String() string {
	if t == TierYearly {
		return "yearly"
	}
	return "monthly"
}

func (t Tier) Valid() bool {
	return t == TierMonthly || t == TierYearly
}

func ParseTier(value string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "monthly":
		return TierMonthly, nil
	case "yearly":
		return TierYearly, nil
	default:
		return TierMonthly, domainerrors.ErrInvalidTier
	}
}

// SubscriberRecord is the authoritative per-subscriber ledger row. Records are
// never destroyed, only extended; absence means "never subscribed".
type SubscriberRecord struct {
	Subscriber        string
	Tier              Tier
	LastTransactionID uint64
	ExpiresAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
