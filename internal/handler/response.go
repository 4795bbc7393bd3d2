// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"querybot-go/internal/middleware"
	"querybot-go/internal/model"
	"querybot-go/internal/service"
	"querybot-go/internal/session"

	"github.com/gin-gonic/gin"
)

// statusFor 把领域错误映射为 HTTP 状态码。
func statusFor(err error) int {
	var (
		connErr  *model.ConnectionError
		metaErr  *model.MetadataError
		valErr   *model.ValidationError
		execErr  *model.ExecutionError
		modelErr *model.ModelUnavailableError
		ingErr   *model.IngestionError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, model.ErrNotConnected), errors.Is(err, model.ErrNoCorpus), errors.Is(err, model.ErrRebuildInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUnknownRole):
		return http.StatusForbidden
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.As(err, &execErr), errors.As(err, &ingErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &connErr), errors.As(err, &metaErr):
		return http.StatusBadGateway
	case errors.As(err, &modelErr):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

func failErr(c *gin.Context, err error) {
	fail(c, statusFor(err), err.Error())
}

// mustSession 取出 AuthMiddleware 设置的会话，缺失时写入 500 并返回 false。
func mustSession(c *gin.Context) (*session.Session, bool) {
	sess, found := middleware.CurrentSession(c)
	if !found {
		fail(c, http.StatusInternalServerError, "session missing from context")
		return nil, false
	}
	return sess, true
}
