package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/llmcouncil/backend/internal/service"
	"k8s.io/klog/v2"
)

// writeError 把服务层错误映射为 HTTP 状态码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrPersonaNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrInvalidPersona):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrTurnFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		klog.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
