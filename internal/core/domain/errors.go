package domain

import "errors"

// ErrorCode is the wire-level classification of a failed operation.
type ErrorCode string

const (
	ErrCodeInsufficientFunds     ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeAccountNotFound       ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrCodeServiceError          ErrorCode = "SERVICE_ERROR"
	ErrCodeConflict              ErrorCode = "CONFLICT"
	ErrCodeLocalPersistenceError ErrorCode = "LOCAL_PERSISTENCE_ERROR"
	ErrCodeCompensationFailure   ErrorCode = "COMPENSATION_FAILURE"
	ErrCodeDeliveryFailure       ErrorCode = "DELIVERY_FAILURE"
)

// IsBusiness reports whether the code describes a business rejection rather
// than an infrastructure fault.
func (c ErrorCode) IsBusiness() bool {
	return c == ErrCodeInsufficientFunds || c == ErrCodeAccountNotFound
}

var (
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrNonPositiveAmount       = errors.New("amount must be greater than zero")
	ErrSameParty               = errors.New("sender and recipient must differ")
	ErrEmptyAccountKey         = errors.New("account key is required")
	ErrAccountExists           = errors.New("account already exists")
	ErrUnknownOperationKind    = errors.New("unknown cash operation kind")
	ErrUnknownEventType        = errors.New("unknown outbox event type")
	ErrOutboxStatusInvalid     = errors.New("invalid outbox status")
	ErrOutboxTransitionInvalid = errors.New("invalid outbox status transition")
	ErrSagaTransitionInvalid   = errors.New("invalid transfer saga transition")
)
