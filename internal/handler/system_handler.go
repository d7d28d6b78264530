package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
	"github.com/xxxsen/paperqa/internal/pkg/response"
)

type IHealthChecker interface {
	Ping(ctx context.Context) error
}

type SystemHandler struct {
	health IHealthChecker
}

func NewSystemHandler(health IHealthChecker) *SystemHandler {
	return &SystemHandler{health: health}
}

func (h *SystemHandler) Root(c *gin.Context) {
	response.Success(c, gin.H{"message": "Research Paper Assistant API"})
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			handleError(c, appErr.Wrap(appErr.ErrInternal, err))
			return
		}
	}
	response.Success(c, gin.H{"status": "ok"})
}
