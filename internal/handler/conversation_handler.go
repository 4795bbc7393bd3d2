package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct{}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler() *ConversationHandler {
	return &ConversationHandler{}
}

// GetConversation 返回当前会话的全部对话记录。
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	history, err := sess.Conversation.Turns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve conversation history",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    history,
	})
}
