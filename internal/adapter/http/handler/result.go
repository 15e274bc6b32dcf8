package handler

import (
	"net/http"

	"moneyflow/internal/adapter/http/dto"
	"moneyflow/internal/adapter/http/middleware"
	"moneyflow/internal/core/domain"
	"moneyflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the optional client idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// statusForCode maps a failed operation's code to an HTTP status.
func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.ErrCodeInsufficientFunds:
		return http.StatusPaymentRequired
	case domain.ErrCodeAccountNotFound:
		return http.StatusNotFound
	case domain.ErrCodeConflict:
		return http.StatusConflict
	case domain.ErrCodeServiceError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeOperationResult sends a saga result: 201 on success, otherwise the
// status mapped from its error code, with the result in the body either way.
func writeOperationResult(c *gin.Context, result *domain.OperationResult) {
	body := dto.ToOperationResponse(result)
	if result.Success {
		response.Created(c, body)
		return
	}
	c.Set(middleware.CtxErrorCode, string(result.ErrorCode))
	response.Status(c, statusForCode(result.ErrorCode), body)
}
