package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MustChangePasswordFromContext 返回 access token 中的 must_change_password 声明。
func MustChangePasswordFromContext(c *gin.Context) bool {
	return c.GetBool(mustChangePasswordKey)
}

// RequirePasswordChangeCompletedMiddleware 在管理员完成首次改密前拒绝访问候选人数据。
// 只读 token 声明，不查库；改密接口会签发新 token。
func RequirePasswordChangeCompletedMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if MustChangePasswordFromContext(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "password change required"})
			return
		}
		c.Next()
	}
}
