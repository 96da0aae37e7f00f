package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat_web/internal/middleware"
	"chat_web/internal/service"
)

// MessageHandler 處理對話紀錄的 HTTP 請求
type MessageHandler struct {
	conversations *service.ConversationService
	log           *zap.Logger
}

func NewMessageHandler(conversations *service.ConversationService, log *zap.Logger) *MessageHandler {
	return &MessageHandler{conversations: conversations, log: log}
}

// GetMessages 回傳與聯絡人的完整對話，並把對方的消息標為已讀
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, contactID, ok := h.parse(c)
	if !ok {
		return
	}

	messages, err := h.conversations.Open(c.Request.Context(), userID, contactID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// GetUnread 回傳聯絡人傳來的未讀數量
func (h *MessageHandler) GetUnread(c *gin.Context) {
	userID, contactID, ok := h.parse(c)
	if !ok {
		return
	}

	count, err := h.conversations.Unread(c.Request.Context(), userID, contactID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contact_id": contactID, "unread": count})
}

func (h *MessageHandler) parse(c *gin.Context) (uint, uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return 0, 0, false
	}

	contactID, err := strconv.ParseUint(c.Param("contact_id"), 10, 32)
	if err != nil || contactID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "錯誤的聯絡人ID"})
		return 0, 0, false
	}
	return userID, uint(contactID), true
}

func (h *MessageHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidContact) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.log.Error("load conversation failed", zap.Error(err))
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "暫時無法讀取消息"})
}
