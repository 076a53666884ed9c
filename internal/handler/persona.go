package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/llmcouncil/backend/internal/service"
)

type PersonaHandler struct {
	service *service.PersonaService
}

func NewPersonaHandler(service *service.PersonaService) *PersonaHandler {
	return &PersonaHandler{service: service}
}

func (h *PersonaHandler) List(c *gin.Context) {
	personas, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, personas)
}

// Save 按名称新增或覆盖
func (h *PersonaHandler) Save(c *gin.Context) {
	var req service.SavePersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	persona, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, persona)
}

func (h *PersonaHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
