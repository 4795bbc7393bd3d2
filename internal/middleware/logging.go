package middleware

import (
	"querybot-go/pkg/log"
	"querybot-go/pkg/metrics"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger 是一个 Gin 中间件，记录每个请求的状态码与耗时并计入 Prometheus。
// 请求体可能包含数据库密码，不做记录。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		fields := []interface{}{
			"statusCode", statusCode,
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		}
		if sess, ok := CurrentSession(c); ok {
			fields = append(fields, "session", sess.ID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}
		log.Infow("HTTP Request Log", fields...)
		metrics.ObserveHTTPRequest(c.Request.Method, route, statusCode)
	}
}
