package errors

import "errors"

var (
	ErrStoreNotSet          = errors.New("subscription store is not bound")
	ErrInsufficientPayment  = errors.New("payment does not cover the oracle execution cost")
	ErrBeneficiaryNotSet    = errors.New("beneficiary is not configured")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidEndpoint      = errors.New("invalid oracle callback endpoint")
	ErrDuplicateTransaction = errors.New("transaction id was already processed for this payer")
	ErrInsufficientFunds    = errors.New("vault balance is insufficient")
)
