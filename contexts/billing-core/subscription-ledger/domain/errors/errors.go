package errors

import "errors"

var (
	ErrInvalidSubscriber    = errors.New("invalid subscriber identity")
	ErrInvalidTransactionID = errors.New("invalid transaction id")
	ErrInvalidTier          = errors.New("invalid subscription tier")
	ErrExpirationRegression = errors.New("expiration timestamp would regress")
)
