package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/llmcouncil/backend/internal/service"
)

const serviceName = "LLM Council API"

type ConfigHandler struct {
	catalog *service.ModelCatalogService
}

func NewConfigHandler(catalog *service.ModelCatalogService) *ConfigHandler {
	return &ConfigHandler{catalog: catalog}
}

// Health GET / 与 GET /api/health
func (h *ConfigHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
}

func (h *ConfigHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Config())
}

// ListModels 上游不可用时返回配置的模型列表，不会失败
func (h *ConfigHandler) ListModels(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	c.JSON(http.StatusOK, h.catalog.List(c.Request.Context(), query))
}
