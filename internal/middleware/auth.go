// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"querybot-go/internal/service"
	"querybot-go/internal/session"
	"querybot-go/pkg/log"
	"querybot-go/pkg/token"
	"strings"

	"github.com/gin-gonic/gin"
)

// 上下文中保存会话与 token 声明的键。
const (
	SessionKey = "session"
	ClaimsKey  = "claims"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它从请求头中提取 token，解析出对应的会话，并把会话存入 Gin 的上下文中。
func AuthMiddleware(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing authorization header", "data": nil})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid authorization header", "data": nil})
			return
		}

		sess, claims, err := auth.Resolve(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			log.Warnf("[AuthMiddleware] token 解析失败: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid or expired session", "data": nil})
			return
		}

		c.Set(SessionKey, sess)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// CurrentSession 返回 AuthMiddleware 放入上下文的会话。
func CurrentSession(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*session.Session)
	return sess, ok
}

// CurrentClaims 返回 AuthMiddleware 放入上下文的 token 声明。
func CurrentClaims(c *gin.Context) (*token.CustomClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.CustomClaims)
	return claims, ok
}
