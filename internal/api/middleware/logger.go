package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	slogLoggerKey = "slogLogger"
	healthPath    = "/api/health"
)

// SlogLoggerMiddleware 为每个请求派生带 correlation_id 的 logger，请求结束后记一行访问日志。
func SlogLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestLogger := logger.With(
			slog.String("correlation_id", GetCorrelationID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
		)
		c.Set(slogLoggerKey, requestLogger)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("client_ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes", c.Writer.Size()),
		}
		if adminID, ok := AdminIDFromContext(c); ok {
			attrs = append(attrs, slog.Uint64("admin_id", uint64(adminID)))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}
		requestLogger.LogAttrs(c.Request.Context(), requestLevel(path, status), "request completed", attrs...)
	}
}

// requestLevel: 5xx 记 Error，4xx 记 Warn，健康检查降为 Debug。
func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case path == healthPath:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// LoggerFromContext 返回上下文中的 slog.Logger。
func LoggerFromContext(c *gin.Context) *slog.Logger {
	if value, ok := c.Get(slogLoggerKey); ok {
		if logger, ok := value.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}
