package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntry records a completed transfer between two accounts.
// It is only created after both remote legs succeeded.
type LedgerEntry struct {
	ID           uuid.UUID       `json:"id"`
	SenderKey    string          `json:"sender_key"`
	RecipientKey string          `json:"recipient_key"`
	Amount       decimal.Decimal `json:"amount"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewLedgerEntry validates and builds a ledger entry.
func NewLedgerEntry(sender, recipient string, amount decimal.Decimal) (*LedgerEntry, error) {
	if err := ValidateTransfer(sender, recipient, amount); err != nil {
		return nil, err
	}
	return &LedgerEntry{
		ID:           uuid.New(),
		SenderKey:    sender,
		RecipientKey: recipient,
		Amount:       amount,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// ValidateTransfer checks the static preconditions of a transfer.
func ValidateTransfer(sender, recipient string, amount decimal.Decimal) error {
	if strings.TrimSpace(sender) == "" || strings.TrimSpace(recipient) == "" {
		return ErrEmptyAccountKey
	}
	if sender == recipient {
		return ErrSameParty
	}
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}
