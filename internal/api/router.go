package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"valentinequest/internal/api/middleware"
	"valentinequest/internal/config"
	"valentinequest/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎：统一响应信封、恢复、CORS、日志与指标，
// 并暴露不需要依赖的健康检查与前端错误上报端点。
func NewRouter(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			middleware.LoggerFromContext(c).Error("panic recovered", slog.Any("panic", recovered))
			AbortInternal(c)
		}),
		metrics.GinMiddleware(),
		cors.New(corsConfig(cfg)),
	)

	router.NoRoute(func(c *gin.Context) {
		NotFound(c, "Not Found")
	})

	router.GET("/api/health", func(c *gin.Context) {
		OK(c, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	router.POST("/api/client-errors", reportClientError)

	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "Authorization", "X-Correlation-ID"},
		ExposeHeaders: []string{"X-Correlation-ID", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if cfg == nil || len(cfg.API.AllowedOrigins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = cfg.API.AllowedOrigins
	c.AllowCredentials = true
	return c
}

type clientErrorReport struct {
	Message        string `json:"message"`
	URL            string `json:"url"`
	Timestamp      string `json:"timestamp"`
	Stack          string `json:"stack"`
	ComponentStack string `json:"componentStack"`
	ErrorBoundary  any    `json:"errorBoundary"`
}

// reportClientError 记录浏览器端上报的异常，仅写日志不落库。
func reportClientError(c *gin.Context) {
	logger := middleware.LoggerFromContext(c)

	var report clientErrorReport
	if err := c.ShouldBindJSON(&report); err != nil {
		logger.Error("client error report rejected", slog.Any("error", err))
		Error(c, http.StatusInternalServerError, "Failed to process")
		return
	}
	if report.Timestamp == "" {
		report.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	logger.Error("client error",
		slog.String("message", report.Message),
		slog.String("url", report.URL),
		slog.String("reported_at", report.Timestamp),
		slog.String("stack", report.Stack),
		slog.String("component_stack", report.ComponentStack),
		slog.Any("error_boundary", report.ErrorBoundary),
	)
	c.JSON(http.StatusOK, envelope{Success: true})
}
