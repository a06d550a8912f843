package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crosspay.backend/pkg/logger"
)

// LoggerMiddleware logs HTTP requests using the structured logger.
// Server errors are logged at error level with the first handler error attached.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		ctx := c.Request.Context()
		if status >= 500 {
			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
			}
			if err := c.Errors.Last(); err != nil {
				fields = append(fields, zap.Error(err.Err))
			}
			logger.Error(ctx, "HTTP Request failed", fields...)
			return
		}
		logger.LogRequest(ctx, c.Request.Method, path, status, time.Since(start), c.ClientIP())
	}
}
