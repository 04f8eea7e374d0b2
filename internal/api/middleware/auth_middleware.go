package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"valentinequest/internal/auth"
)

const (
	adminIDKey            = "adminID"
	mustChangePasswordKey = "mustChangePassword"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌并将管理员 ID 注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			abortUnauthorized(c)
			return
		}

		c.Set(adminIDKey, claims.AdminID)
		c.Set(mustChangePasswordKey, claims.MustChangePassword)
		c.Next()
	}
}

// AdminIDFromContext 返回 AuthMiddleware 注入的管理员 ID。
func AdminIDFromContext(c *gin.Context) (uint, bool) {
	value, ok := c.Get(adminIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok && id != 0
}

// SetAdminID 将管理员 ID 写入上下文，供不经过 AuthMiddleware 的调用方使用。
func SetAdminID(c *gin.Context, id uint) {
	c.Set(adminIDKey, id)
}
