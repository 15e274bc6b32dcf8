package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the balance-holding entity owned by the balance service.
// Version increments on every successful write and is the optimistic
// concurrency token.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	Key       string          `json:"account_key"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ApplyDelta returns the balance after adding delta.
// The account itself is not modified.
func (a *Account) ApplyDelta(delta decimal.Decimal) (decimal.Decimal, error) {
	next := a.Balance.Add(delta)
	if next.IsNegative() {
		return a.Balance, ErrInsufficientFunds
	}
	return next, nil
}

// MutationResult is the balance service's answer to a mutate call.
type MutationResult struct {
	Success   bool      `json:"success"`
	ErrorCode ErrorCode `json:"errorCode,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// MutationOK builds a successful result.
func MutationOK() MutationResult {
	return MutationResult{Success: true}
}

// MutationFailed builds a failed result with the given classification.
func MutationFailed(code ErrorCode, message string) MutationResult {
	return MutationResult{Success: false, ErrorCode: code, Message: message}
}
