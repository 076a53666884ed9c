package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/llmcouncil/backend/internal/service"
)

type LeaderboardHandler struct {
	service *service.LeaderboardService
}

func NewLeaderboardHandler(service *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

// List GET /api/leaderboard?model=&persona=，persona=None 只看无 persona 的条目
func (h *LeaderboardHandler) List(c *gin.Context) {
	rows, err := h.service.List(c.Request.Context(), c.Query("model"), c.Query("persona"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
