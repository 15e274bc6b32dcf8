package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationKind is the direction of a cash operation.
type OperationKind string

const (
	OperationDeposit  OperationKind = "DEPOSIT"
	OperationWithdraw OperationKind = "WITHDRAW"
)

// ParseOperationKind validates a raw operation name (case-insensitive).
func ParseOperationKind(raw string) (OperationKind, error) {
	kind := OperationKind(strings.ToUpper(strings.TrimSpace(raw)))
	switch kind {
	case OperationDeposit, OperationWithdraw:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperationKind, raw)
	}
}

// SignedDelta converts an unsigned amount into the balance delta for this kind.
func (k OperationKind) SignedDelta(amount decimal.Decimal) (decimal.Decimal, error) {
	switch k {
	case OperationDeposit:
		return amount, nil
	case OperationWithdraw:
		return amount.Neg(), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownOperationKind, string(k))
	}
}

// CashOperationRecord is the local record of a single-leg cash operation.
type CashOperationRecord struct {
	ID           uuid.UUID       `json:"id"`
	SubjectKey   string          `json:"subject_key"`
	SignedAmount decimal.Decimal `json:"signed_amount"`
	Kind         OperationKind   `json:"operation_kind"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewCashOperationRecord builds a record after the remote leg succeeded.
func NewCashOperationRecord(subject string, signedAmount decimal.Decimal, kind OperationKind) *CashOperationRecord {
	return &CashOperationRecord{
		ID:           uuid.New(),
		SubjectKey:   subject,
		SignedAmount: signedAmount,
		Kind:         kind,
		CreatedAt:    time.Now().UTC(),
	}
}
