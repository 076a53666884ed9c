package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/llmcouncil/backend/internal/eventstream"
	"github.com/llmcouncil/backend/internal/service"
	"k8s.io/klog/v2"
)

type ConversationHandler struct {
	conversations *service.ConversationService
	turns         *service.TurnService
	usage         *service.TurnUsageService
}

func NewConversationHandler(conversations *service.ConversationService, turns *service.TurnService, usage *service.TurnUsageService) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		turns:         turns,
		usage:         usage,
	}
}

func (h *ConversationHandler) List(c *gin.Context) {
	list, err := h.conversations.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Create 请求体可以为空
func (h *ConversationHandler) Create(c *gin.Context) {
	var patch service.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.conversations.Create(c.Request.Context(), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	view, err := h.conversations.Get(c.Request.Context(), conv.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	view, err := h.conversations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.conversations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ConversationHandler) UpdateSettings(c *gin.Context) {
	var patch service.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.conversations.UpdateSettings(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ConversationHandler) DeleteMessage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message index"})
		return
	}
	if err := h.conversations.DeleteMessage(c.Request.Context(), c.Param("id"), index); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SendMessage 运行完整一轮后一次性返回
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.turns.Send(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// StreamMessage 以 SSE 推送一轮的进度事件
func (h *ConversationHandler) StreamMessage(c *gin.Context) {
	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.turns.Stream(ctx, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	eventstream.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	last, err := eventstream.Relay(ctx, events, eventstream.NewEncoder(c.Writer))
	switch {
	case err != nil:
		klog.V(6).Infof("StreamMessage: conversation=%s, stream ended early: %v", c.Param("id"), err)
	case last == nil:
		klog.Warningf("StreamMessage: conversation=%s, stream closed without terminal event", c.Param("id"))
	default:
		klog.V(6).Infof("StreamMessage: conversation=%s, finished with %s", c.Param("id"), last.Type)
	}
}

// Costs 会话累计 token 用量与花费
func (h *ConversationHandler) Costs(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.conversations.Load(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	summary, err := h.usage.Summary(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
