package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/code-100-precent/calltrack/pkg/response"
	"github.com/gin-gonic/gin"
)

// Health GET /health
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusServiceUnavailable, err)
		return
	}
	response.Success(c, "ok", gin.H{
		"status":       "ok",
		"live_clients": h.wsHub.ClientCount(),
	})
}
