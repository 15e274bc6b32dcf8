package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferState is a step of the two-leg transfer saga.
type TransferState string

const (
	TransferInit               TransferState = "INIT"
	TransferWithdrawn          TransferState = "WITHDRAWN"
	TransferWithdrawFailed     TransferState = "WITHDRAW_FAILED"
	TransferDeposited          TransferState = "DEPOSITED"
	TransferDepositFailed      TransferState = "DEPOSIT_FAILED"
	TransferCompensating       TransferState = "COMPENSATING"
	TransferCompensated        TransferState = "COMPENSATED"
	TransferCompensationFailed TransferState = "COMPENSATION_FAILED"
	TransferCommitted          TransferState = "COMMITTED"
)

// transferTransitions lists the legal successors of each state.
// DEPOSITED -> COMPENSATING covers a failed local commit after both legs.
var transferTransitions = map[TransferState][]TransferState{
	TransferInit:          {TransferWithdrawn, TransferWithdrawFailed},
	TransferWithdrawn:     {TransferDeposited, TransferDepositFailed},
	TransferDeposited:     {TransferCommitted, TransferCompensating},
	TransferDepositFailed: {TransferCompensating},
	TransferCompensating:  {TransferCompensated, TransferCompensationFailed},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s TransferState) CanTransitionTo(next TransferState) bool {
	for _, candidate := range transferTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states with no successor.
func (s TransferState) IsTerminal() bool {
	switch s {
	case TransferWithdrawFailed, TransferCommitted, TransferCompensated, TransferCompensationFailed:
		return true
	default:
		return false
	}
}

// TransferSaga tracks one in-flight transfer.
type TransferSaga struct {
	ID        uuid.UUID
	Sender    string
	Recipient string
	Amount    decimal.Decimal
	State     TransferState
	History   []TransferState
}

// NewTransferSaga starts a saga in INIT after validating its inputs.
func NewTransferSaga(sender, recipient string, amount decimal.Decimal) (*TransferSaga, error) {
	if err := ValidateTransfer(sender, recipient, amount); err != nil {
		return nil, err
	}
	return &TransferSaga{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		State:     TransferInit,
		History:   []TransferState{TransferInit},
	}, nil
}

// Advance moves the saga to next or fails without changing state.
func (s *TransferSaga) Advance(next TransferState) error {
	if !s.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrSagaTransitionInvalid, s.State, next)
	}
	s.State = next
	s.History = append(s.History, next)
	return nil
}
