package handler

import (
	"moneyflow/internal/adapter/http/dto"
	"moneyflow/internal/adapter/http/middleware"
	"moneyflow/internal/core/domain"
	"moneyflow/internal/core/ports"
	"moneyflow/pkg/apperror"
	"moneyflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// CashHandler handles deposit and withdrawal endpoints.
type CashHandler struct {
	cashSvc ports.CashService
}

// NewCashHandler creates a new CashHandler.
func NewCashHandler(cashSvc ports.CashService) *CashHandler {
	return &CashHandler{cashSvc: cashSvc}
}

// Create handles POST /api/v1/cash.
func (h *CashHandler) Create(c *gin.Context) {
	username := c.GetString(middleware.CtxUsername)
	if username == "" {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	kind, err := domain.ParseOperationKind(req.Operation)
	if err != nil {
		response.Error(c, apperror.ErrInvalidOperation(req.Operation))
		return
	}

	result, err := h.cashSvc.ProcessCashOperation(c.Request.Context(), ports.CashRequest{
		SubjectKey:     username,
		Amount:         req.Amount,
		Operation:      kind,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	writeOperationResult(c, result)
}
