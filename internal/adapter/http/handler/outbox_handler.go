package handler

import (
	"moneyflow/internal/adapter/http/dto"
	"moneyflow/internal/core/ports"
	"moneyflow/pkg/apperror"
	"moneyflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// OutboxHandler exposes outbox counters.
type OutboxHandler struct {
	monitor ports.OutboxMonitor
}

// NewOutboxHandler creates a new OutboxHandler.
func NewOutboxHandler(monitor ports.OutboxMonitor) *OutboxHandler {
	return &OutboxHandler{monitor: monitor}
}

// Stats handles GET /api/v1/outbox/stats.
func (h *OutboxHandler) Stats(c *gin.Context) {
	stats, err := h.monitor.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	response.OK(c, dto.OutboxStatsResponse{
		New:       stats.New,
		Processed: stats.Processed,
		Failed:    stats.Failed,
	})
}
