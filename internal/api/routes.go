package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"valentinequest/internal/api/middleware"
	"valentinequest/internal/auth"
	"valentinequest/internal/candidate"
	"valentinequest/internal/config"
	"valentinequest/internal/events"
)

// RedisClient 是路由依赖的 Redis 命令集合，*redis.Client 即满足。
type RedisClient interface {
	authStore
	events.Publisher
	pubSubscriber
}

// Deps 汇总 RegisterRoutes 需要的外部依赖。
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Store       candidate.Store
	Redis       RedisClient
	Queue       taskEnqueuer
	Storage     downloadLinker
	AuthService *auth.AuthService
	Logger      *slog.Logger
}

// RegisterRoutes 注册 /api 与 /internal 路由。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	cfg := deps.Config

	candidateHandler := NewCandidateHandler(deps.Store, deps.Redis, deps.Redis, CandidateHandlerOptions{
		DefaultLimit:       cfg.Candidates.DefaultPageLimit,
		MaxLimit:           cfg.Candidates.MaxPageLimit,
		SubmitLimitPerHour: cfg.Candidates.SubmitLimitPerHour,
	})
	exportHandler := NewExportHandler(deps.DB, deps.Queue, deps.Storage, cfg.Candidates.ExportLinkTTL)
	authHandler := NewAuthHandler(deps.DB, deps.AuthService, deps.Redis, AuthHandlerOptions{
		LoginRateLimitPerHour: cfg.Auth.LoginRateLimitPerHour,
		LoginLockThreshold:    cfg.Auth.LoginLockThreshold,
		LoginLockTTL:          cfg.Auth.LoginLockTTL,
		CookieDomain:          cfg.Auth.CookieDomain,
	})
	wsHandler := NewWsHandler(deps.Redis, deps.AuthService, deps.Logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.AuthService)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/ws", wsHandler.HandleConnection)

		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		candidateGroup := apiGroup.Group("/candidates")
		{
			candidateGroup.POST("", candidateHandler.CreateCandidate)

			admin := candidateGroup.Group("", authMiddleware, passwordGate)
			admin.GET("", candidateHandler.ListCandidates)
			admin.GET("/export", candidateHandler.ExportPage)
			admin.DELETE("/:id", candidateHandler.DeleteCandidate)
		}

		exportGroup := apiGroup.Group("/exports", authMiddleware, passwordGate)
		{
			exportGroup.POST("", exportHandler.CreateExport)
			exportGroup.GET("/:id", exportHandler.GetExport)
		}
	}

	internal := router.Group("/internal", middleware.InternalSecretMiddleware(cfg.API.InternalSecret))
	internal.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
