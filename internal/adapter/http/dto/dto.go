package dto

import (
	"moneyflow/internal/core/domain"

	"github.com/shopspring/decimal"
)

// TransferRequest is the request body for a transfer. The sender is the
// authenticated caller.
type TransferRequest struct {
	Recipient string          `json:"recipient" binding:"required,safe_id,max=64"`
	Amount    decimal.Decimal `json:"amount" binding:"required,positive_decimal"`
}

// CashRequest is the request body for a deposit or withdrawal.
type CashRequest struct {
	Amount    decimal.Decimal `json:"amount" binding:"required,positive_decimal"`
	Operation string          `json:"operation" binding:"required"`
}

// OperationResponse is the response body for saga outcomes.
type OperationResponse struct {
	Success     bool   `json:"success"`
	ErrorCode   string `json:"error_code,omitempty"`
	Message     string `json:"message"`
	State       string `json:"state,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// ToOperationResponse converts a saga result to its wire form.
func ToOperationResponse(r *domain.OperationResult) OperationResponse {
	return OperationResponse{
		Success:     r.Success,
		ErrorCode:   string(r.ErrorCode),
		Message:     r.Message,
		State:       string(r.State),
		ReferenceID: r.ReferenceID,
	}
}

// OutboxStatsResponse is the response for outbox counters.
type OutboxStatsResponse struct {
	New       int64 `json:"new"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// MutateBalanceRequest is the balance service wire request.
type MutateBalanceRequest struct {
	AccountKey   string          `json:"accountKey" binding:"required,safe_id,max=64"`
	SignedAmount decimal.Decimal `json:"signedAmount"`
}

// OpenAccountRequest is the request body for creating a balance account.
type OpenAccountRequest struct {
	Key            string          `json:"key" binding:"required,safe_id,max=64"`
	Currency       string          `json:"currency" binding:"required,len=3"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// AccountResponse is the response body for a balance account.
type AccountResponse struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at"`
}
