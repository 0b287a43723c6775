package public

import "github.com/cookinbiz/affiliate-ledger/internal/provider"

// Handler 推广员侧与回调接口处理器入口
type Handler struct {
	*provider.Container
}

// New 创建前台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
