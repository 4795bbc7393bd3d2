package middleware

import (
	"net/http"
	"querybot-go/internal/model"

	"github.com/gin-gonic/gin"
)

// AdminRole 是可以访问管理接口的角色。
const AdminRole model.Role = "admin"

// AdminAuthMiddleware 检查当前会话是否属于管理员。
// 此中间件必须在 AuthMiddleware 之后使用。
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "session missing from context", "data": nil})
			return
		}
		if sess.Role != AdminRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "admin role required", "data": nil})
			return
		}
		c.Next()
	}
}
