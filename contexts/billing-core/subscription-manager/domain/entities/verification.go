package entities

import (
	"time"

	ledgerentities "tollgate/contexts/billing-core/subscription-ledger/domain/entities"
)

// VerificationState is the lifecycle of one oracle verification attempt.
// Requested is the only non-terminal state; terminal states never transition.
type VerificationState string

const (
	StateRequested VerificationState = "requested"
	StateVerified  VerificationState = "verified"
	StateRejected  VerificationState = "rejected"
	StateTimedOut  VerificationState = "timed_out"
)

func (s VerificationState) Terminal() bool {
	return s == StateVerified || s == StateRejected || s == StateTimedOut
}

// VerificationRequest tracks one outstanding oracle call. The callback is
// correlated strictly by RequestID; the oracle gives no ordering guarantee.
type VerificationRequest struct {
	RequestID     string
	TransactionID uint64
	Tier          ledgerentities.Tier
	Payer         string
	Payment       uint64
	GasPrice      uint64
	GasLimit      uint64
	OracleCost    uint64
	Retained      uint64
	State         VerificationState
	RequestedAt   time.Time
	CompletedAt   *time.Time
}
