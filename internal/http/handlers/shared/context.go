package shared

import (
	"strings"

	"github.com/cookinbiz/affiliate-ledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// 认证中间件写入的上下文键
const (
	ContextUserIDKey    = "user_id"
	ContextUserRoleKey  = "user_role"
	ContextUserEmailKey = "user_email"
)

// GetContextStringWithKeys 从上下文读取字符串值并统一处理错误响应。
func GetContextStringWithKeys(c *gin.Context, key, invalidKey string) (string, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, "error.unauthorized", nil)
		return "", false
	}
	str, ok := value.(string)
	if !ok || strings.TrimSpace(str) == "" {
		RespondError(c, response.CodeUnauthorized, invalidKey, nil)
		return "", false
	}
	return strings.TrimSpace(str), true
}

// GetUserID 当前登录用户
func GetUserID(c *gin.Context) (string, bool) {
	return GetContextStringWithKeys(c, ContextUserIDKey, "error.user_id_invalid")
}

// GetUserRole 当前用户角色，未设置时为空
func GetUserRole(c *gin.Context) string {
	return c.GetString(ContextUserRoleKey)
}
