package handler

import (
	"net/http"
	"querybot-go/internal/service"
	"querybot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler 负责登录与登出。
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// LoginRequest 定义了登录 API 的请求体结构。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验用户并为其创建新的查询会话。
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[AuthHandler] 登录请求参数无效: %v", err)
		fail(c, http.StatusBadRequest, "username and password are required")
		return
	}

	res, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		log.Warnf("[AuthHandler] 用户 %s 登录失败: %v", req.Username, err)
		failErr(c, err)
		return
	}
	ok(c, "login successful", res)
}

// Logout 关闭当前会话，释放其连接、索引与对话记录。
func (h *AuthHandler) Logout(c *gin.Context) {
	sess, found := mustSession(c)
	if !found {
		return
	}
	if err := h.auth.Logout(c.Request.Context(), sess.ID); err != nil {
		log.Warnf("[AuthHandler] 关闭会话 %s 时出错: %v", sess.ID, err)
	}
	ok(c, "logout successful", nil)
}
