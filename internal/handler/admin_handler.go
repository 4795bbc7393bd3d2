package handler

import (
	"net/http"
	"querybot-go/internal/service"
	"querybot-go/internal/session"
	"querybot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 提供会话的管理接口。
type AdminHandler struct {
	sessions *session.Manager
	auth     *service.AuthService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(sessions *session.Manager, auth *service.AuthService) *AdminHandler {
	return &AdminHandler{sessions: sessions, auth: auth}
}

// ListSessions 列出所有活跃会话。
func (h *AdminHandler) ListSessions(c *gin.Context) {
	ok(c, "success", h.sessions.List())
}

// CloseSession 强制关闭指定会话。
func (h *AdminHandler) CloseSession(c *gin.Context) {
	id := c.Param("id")
	if _, found := h.sessions.Get(id); !found {
		fail(c, http.StatusNotFound, "session not found")
		return
	}
	if err := h.auth.Logout(c.Request.Context(), id); err != nil {
		log.Warnf("[AdminHandler] 关闭会话 %s 时出错: %v", id, err)
	}
	log.Infof("[AdminHandler] 会话 %s 已被管理员关闭", id)
	ok(c, "session closed", nil)
}
