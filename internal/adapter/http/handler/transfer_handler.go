package handler

import (
	"moneyflow/internal/adapter/http/dto"
	"moneyflow/internal/adapter/http/middleware"
	"moneyflow/internal/core/ports"
	"moneyflow/pkg/apperror"
	"moneyflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// TransferHandler handles transfer endpoints.
type TransferHandler struct {
	transferSvc ports.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transferSvc ports.TransferService) *TransferHandler {
	return &TransferHandler{transferSvc: transferSvc}
}

// Create handles POST /api/v1/transfers.
func (h *TransferHandler) Create(c *gin.Context) {
	username := c.GetString(middleware.CtxUsername)
	if username == "" {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.transferSvc.ProcessTransfer(c.Request.Context(), ports.TransferRequest{
		SenderKey:      username,
		RecipientKey:   req.Recipient,
		Amount:         req.Amount,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	writeOperationResult(c, result)
}
