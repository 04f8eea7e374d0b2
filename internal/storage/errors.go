package storage

import (
	"errors"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
)

// IsNoSuchKey 判断错误是否表示对象已不存在（例如导出文件被生命周期规则清理）。
// 缺失的 Bucket 不算在内，那是配置错误。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NotFound":
			return true
		case "NoSuchBucket":
			return false
		}
		if resp.StatusCode == http.StatusNotFound {
			return true
		}
	}

	// 部分网关只返回文本。
	return strings.Contains(strings.ToLower(err.Error()), "specified key does not exist")
}
