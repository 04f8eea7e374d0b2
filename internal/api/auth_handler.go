package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"valentinequest/internal/api/middleware"
	"valentinequest/internal/auth"
	"valentinequest/internal/database"
)

const refreshTokenCookieName = "admin_refresh_token"
const refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"

// authStore 是登录限流、锁定与刷新令牌黑名单用到的 Redis 命令子集。
type authStore interface {
	redisRateCounter
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthHandler 处理管理员登录、刷新、改密与退出。
type AuthHandler struct {
	db                    *gorm.DB
	authService           *auth.AuthService
	redis                 authStore
	loginRateLimitPerHour int
	loginLockThreshold    int
	loginLockTTL          time.Duration
	cookieDomain          string
}

// AuthHandlerOptions 汇总登录限流与 Cookie 设置。
type AuthHandlerOptions struct {
	LoginRateLimitPerHour int
	LoginLockThreshold    int
	LoginLockTTL          time.Duration
	CookieDomain          string
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient authStore, opts AuthHandlerOptions) *AuthHandler {
	return &AuthHandler{
		db:                    db,
		authService:           authService,
		redis:                 redisClient,
		loginRateLimitPerHour: opts.LoginRateLimitPerHour,
		loginLockThreshold:    opts.LoginLockThreshold,
		loginLockTTL:          opts.LoginLockTTL,
		cookieDomain:          opts.CookieDomain,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken        string `json:"accessToken"`
	TokenType          string `json:"tokenType"`
	ExpiresIn          int    `json:"expiresIn"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

// Login 校验口令并返回 Token。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "username and password are required")
		return
	}

	ctx := c.Request.Context()
	username := strings.ToLower(strings.TrimSpace(req.Username))
	logger := middleware.LoggerFromContext(c).With(slog.String("username", username))

	// 速率限制：每 IP+用户名 每小时
	loginWindow := fixedWindow{client: h.redis, window: time.Hour, limit: h.loginRateLimitPerHour}
	if exceeded, err := loginWindow.exceeded(ctx, time.Now(), "login", c.ClientIP(), username); err != nil {
		logger.Warn("login rate counter unavailable", slog.Any("error", err))
	} else if exceeded {
		TooManyRequests(c, "rate limit exceeded")
		return
	}

	lockKey := "lock:login:" + username
	if ttl, _ := h.redis.TTL(ctx, lockKey).Result(); ttl > 0 {
		TooManyRequests(c, "account temporarily locked")
		return
	}

	var admin database.AdminUser
	if err := h.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: admin not found")
			_ = h.incrementLoginFail(ctx, username)
			Unauthorized(c)
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c)
		return
	}

	if !auth.CheckPasswordHash(req.Password, admin.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("admin_id", uint64(admin.ID)))
		_ = h.incrementLoginFail(ctx, username)
		Unauthorized(c)
		return
	}

	_ = h.redis.Del(ctx, "lock:login:fail:"+username).Err()

	tokenPair, err := h.authService.GenerateTokenPair(admin.ID, admin.MustChangePassword)
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c)
		return
	}

	logger.Info("admin logged in", slog.Uint64("admin_id", uint64(admin.ID)))
	h.replyWithTokenPair(c, tokenPair, admin.MustChangePassword)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh 校验刷新令牌并颁发新的 TokenPair，旧令牌随即作废。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	claims, key, ok := h.validRefreshClaims(c)
	if !ok {
		Unauthorized(c)
		return
	}

	// 先占用黑名单键再签发，同一刷新令牌并发提交时只有一个请求能成功。
	claimed, err := h.redis.SetNX(ctx, key, "rotated", h.refreshTTL(claims.ExpiresAt)).Result()
	if err != nil {
		logger.Error("refresh token claim failed", slog.Any("error", err))
		Internal(c)
		return
	}
	if !claimed {
		logger.Info("refresh token revoked or already used", slog.String("jti", claims.ID))
		Unauthorized(c)
		return
	}

	var admin database.AdminUser
	if err := h.db.WithContext(ctx).First(&admin, claims.AdminID).Error; err != nil {
		logger.Info("refresh admin not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	tokenPair, err := h.authService.GenerateTokenPair(admin.ID, admin.MustChangePassword)
	if err != nil {
		logger.Error("refresh generate token pair failed", slog.Any("error", err))
		Internal(c)
		return
	}

	h.replyWithTokenPair(c, tokenPair, admin.MustChangePassword)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required,min=8,max=72"`
	NewPassword     string `json:"newPassword" binding:"required,min=12,max=72"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,min=12,max=72"`
}

// ChangePassword 校验当前密码并更新为新密码。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		BadRequest(c, "password confirmation does not match")
		return
	}
	if err := auth.ValidateNewPassword(req.CurrentPassword, req.NewPassword); err != nil {
		BadRequest(c, err.Error())
		return
	}

	adminID, ok := middleware.AdminIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("admin_id", uint64(adminID)))

	var admin database.AdminUser
	if err := h.db.WithContext(ctx).First(&admin, adminID).Error; err != nil {
		logger.Info("change password: admin not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	if !auth.CheckPasswordHash(req.CurrentPassword, admin.PasswordHash) {
		logger.Info("change password: current password mismatch")
		Unauthorized(c)
		return
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		logger.Error("change password: hash failed", slog.Any("error", err))
		Internal(c)
		return
	}

	if err := h.db.WithContext(ctx).Model(&admin).Updates(map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
	}).Error; err != nil {
		logger.Error("change password: update failed", slog.Any("error", err))
		Internal(c)
		return
	}

	if claims, key, ok := h.validRefreshClaims(c); ok {
		if err := h.revokeRefreshToken(ctx, key, claims.ExpiresAt); err != nil {
			logger.Error("change password: revoke refresh failed", slog.Any("error", err))
			Internal(c)
			return
		}
	}

	tokenPair, err := h.authService.GenerateTokenPair(admin.ID, false)
	if err != nil {
		logger.Error("change password: generate token pair failed", slog.Any("error", err))
		Internal(c)
		return
	}

	logger.Info("admin password changed")
	h.replyWithTokenPair(c, tokenPair, false)
}

// Logout 将刷新令牌加入黑名单并清除 Cookie。
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	claims, key, ok := h.validRefreshClaims(c)
	if !ok {
		BadRequest(c, "refresh token missing or invalid")
		return
	}

	if err := h.revokeRefreshToken(ctx, key, claims.ExpiresAt); err != nil {
		logger.Error("logout revoke token failed", slog.Any("error", err))
		Internal(c)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/api/auth",
		Secure:   h.isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   strings.TrimSpace(h.cookieDomain),
	})
	OK(c, gin.H{"loggedOut": true})
}

func (h *AuthHandler) replyWithTokenPair(c *gin.Context, tokenPair auth.TokenPair, mustChangePassword bool) {
	h.setRefreshCookie(c, tokenPair.RefreshToken)
	OK(c, tokenResponse{
		AccessToken:        tokenPair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		MustChangePassword: mustChangePassword,
	})
}

// validRefreshClaims 读取 Cookie（或 JSON body）中的刷新令牌并校验类型与 jti。
func (h *AuthHandler) validRefreshClaims(c *gin.Context) (*auth.TokenClaims, string, bool) {
	token := h.extractRefreshToken(c)
	if token == "" {
		return nil, "", false
	}
	claims, err := h.authService.ValidateToken(token)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		return nil, "", false
	}
	return claims, refreshTokenBlacklistKeyPrefix + claims.ID, true
}

func (h *AuthHandler) extractRefreshToken(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}

	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, refreshToken string) {
	ttl := h.authService.RefreshTokenTTL()
	maxAge := int(ttl.Seconds())
	if maxAge <= 0 {
		maxAge = int(time.Hour.Seconds())
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    refreshToken,
		MaxAge:   maxAge,
		Path:     "/api/auth",
		Secure:   h.isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   strings.TrimSpace(h.cookieDomain),
		Expires:  time.Now().Add(ttl),
	})
}

func (h *AuthHandler) revokeRefreshToken(ctx context.Context, key string, expiresAt *jwt.NumericDate) error {
	return h.redis.Set(ctx, key, "revoked", h.refreshTTL(expiresAt)).Err()
}

// refreshTTL 让黑名单键与令牌同时过期。
func (h *AuthHandler) refreshTTL(expiresAt *jwt.NumericDate) time.Duration {
	ttl := h.authService.RefreshTokenTTL()
	if expiresAt != nil {
		ttl = time.Until(expiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

func (h *AuthHandler) isHTTPSRequest(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
}

func (h *AuthHandler) incrementLoginFail(ctx context.Context, username string) error {
	failKey := "lock:login:fail:" + username
	count, err := incrWithTTL(ctx, h.redis, failKey, h.loginLockTTL)
	if err != nil {
		return err
	}
	if h.loginLockThreshold > 0 && count >= int64(h.loginLockThreshold) {
		_ = h.redis.Set(ctx, "lock:login:"+username, "1", h.loginLockTTL).Err()
	}
	return nil
}
