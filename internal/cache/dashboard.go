package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultDashboardTTL = 30 * time.Second

func dashboardKey(affiliateID string) string {
	return fmt.Sprintf("affiliate:dashboard:%s", strings.TrimSpace(affiliateID))
}

// GetDashboard 读取推广员面板缓存到 dest
func GetDashboard(ctx context.Context, affiliateID string, dest interface{}) (bool, error) {
	if strings.TrimSpace(affiliateID) == "" {
		return false, nil
	}
	return GetJSON(ctx, dashboardKey(affiliateID), dest)
}

// SetDashboard 写入推广员面板缓存，ttl<=0 使用默认 30 秒
func SetDashboard(ctx context.Context, affiliateID string, value interface{}, ttl time.Duration) error {
	if strings.TrimSpace(affiliateID) == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultDashboardTTL
	}
	return SetJSON(ctx, dashboardKey(affiliateID), value, ttl)
}

// DelDashboard 余额变动后删除面板缓存
func DelDashboard(ctx context.Context, affiliateID string) error {
	if strings.TrimSpace(affiliateID) == "" {
		return nil
	}
	return Del(ctx, dashboardKey(affiliateID))
}
