package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const internalSecretHeader = "X-Internal-Secret"

// InternalSecretMiddleware 保护 /internal 端点。密钥可放在 X-Internal-Secret，
// 也可以作为 Bearer token（Prometheus 的 authorization 配置即如此发送）。
func InternalSecretMiddleware(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "internal api secret is not configured"})
			return
		}
		// 不接受 query 参数，避免密钥进入访问日志。
		presented := presentedSecret(c)
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			abortUnauthorized(c)
			return
		}
		c.Next()
	}
}

func presentedSecret(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(internalSecretHeader)); v != "" {
		return v
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
