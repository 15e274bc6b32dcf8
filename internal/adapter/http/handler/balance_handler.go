package handler

import (
	"net/http"
	"time"

	"moneyflow/internal/adapter/http/dto"
	"moneyflow/internal/core/domain"
	"moneyflow/internal/core/ports"
	"moneyflow/pkg/apperror"
	"moneyflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// BalanceHandler serves the balance service API.
type BalanceHandler struct {
	balanceSvc ports.BalanceService
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(balanceSvc ports.BalanceService) *BalanceHandler {
	return &BalanceHandler{balanceSvc: balanceSvc}
}

// Mutate handles POST /api/v1/balances/mutate. The body is the bare
// MutationResult, not the response envelope, because callers decode it
// directly.
func (h *BalanceHandler) Mutate(c *gin.Context) {
	var req dto.MutateBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.MutationFailed(domain.ErrCodeServiceError, err.Error()))
		return
	}

	result := h.balanceSvc.MutateBalance(c.Request.Context(), req.AccountKey, req.SignedAmount)
	if result.Success {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(statusForCode(result.ErrorCode), result)
}

// OpenAccount handles POST /api/v1/accounts.
func (h *BalanceHandler) OpenAccount(c *gin.Context) {
	var req dto.OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	account, err := h.balanceSvc.OpenAccount(c.Request.Context(), req.Key, req.Currency, req.InitialBalance)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toAccountResponse(account))
}

// GetAccount handles GET /api/v1/accounts/:key.
func (h *BalanceHandler) GetAccount(c *gin.Context) {
	account, err := h.balanceSvc.GetAccount(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toAccountResponse(account))
}

func toAccountResponse(a *domain.Account) dto.AccountResponse {
	return dto.AccountResponse{
		ID:        a.ID.String(),
		Key:       a.Key,
		Balance:   a.Balance.StringFixed(2),
		Currency:  a.Currency,
		Version:   a.Version,
		UpdatedAt: a.UpdatedAt.Format(time.RFC3339),
	}
}
