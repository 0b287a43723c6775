package router

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/authz"
	"github.com/cookinbiz/affiliate-ledger/internal/cache"
	"github.com/cookinbiz/affiliate-ledger/internal/config"
	adminhandlers "github.com/cookinbiz/affiliate-ledger/internal/http/handlers/admin"
	publichandlers "github.com/cookinbiz/affiliate-ledger/internal/http/handlers/public"
	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/logger"
	"github.com/cookinbiz/affiliate-ledger/internal/metrics"
	"github.com/cookinbiz/affiliate-ledger/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultMetricsPath = "/metrics"

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "al"
	}
	payoutRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payout", redisPrefix),
		WindowSeconds: cfg.Security.PayoutRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.PayoutRateLimit.MaxRequests,
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))
	if cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware(metrics.Ledger()))
		metricsPath := strings.TrimSpace(cfg.Metrics.Path)
		if metricsPath == "" {
			metricsPath = defaultMetricsPath
		}
		r.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	r.GET("/health", func(ctx *gin.Context) {
		status, code := checkHealth(ctx.Request.Context(), c)
		ctx.JSON(code, status)
	})

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/webhooks/stripe", publicHandler.StripeWebhook)

		auth := BearerAuthMiddleware(cfg.Auth)

		// 推广员接口
		affiliate := apiV1.Group("/affiliate")
		affiliate.Use(auth)
		{
			affiliate.POST("/enroll", publicHandler.EnrollAffiliate)
			affiliate.POST("/referral", publicHandler.AttributeReferral)
			affiliate.GET("/dashboard", publicHandler.GetAffiliateDashboard)
			affiliate.GET("/commissions", publicHandler.ListAffiliateCommissions)
			affiliate.GET("/payouts", publicHandler.ListAffiliatePayouts)
			affiliate.POST("/payouts", RateLimitMiddleware(cache.Client(), payoutRule, KeyByUser), publicHandler.RequestAffiliatePayout)
			affiliate.POST("/connect", publicHandler.ConnectPayoutAccount)
		}

		// 管理端接口
		admin := apiV1.Group("/admin")
		admin.Use(auth, AdminRBACMiddleware(c.AuthzService))
		{
			admin.GET("/affiliates", adminHandler.ListAffiliates)
			admin.GET("/affiliates/:id", adminHandler.GetAffiliate)
			admin.PUT("/affiliates/:id/status", adminHandler.UpdateAffiliateStatus)
			admin.PUT("/affiliates/:id/tier", adminHandler.UpdateAffiliateTier)
			admin.PUT("/affiliates/:id/upline", adminHandler.SetAffiliateUpline)
			admin.PUT("/affiliates/:id/commission-rate", adminHandler.UpdateAffiliateCommissionRate)
			admin.GET("/affiliates/:id/ledger-check", adminHandler.CheckAffiliateLedger)
			admin.DELETE("/affiliates/:id", adminHandler.DeleteAffiliate)
			admin.POST("/affiliates/:id/payouts", RateLimitMiddleware(cache.Client(), payoutRule, KeyByUser), adminHandler.CreateAffiliatePayout)

			admin.GET("/commissions", adminHandler.ListCommissions)
			admin.POST("/commissions/:id/cancel", adminHandler.CancelCommission)

			admin.GET("/payouts", adminHandler.ListPayouts)
			admin.POST("/payouts/:id/complete", adminHandler.CompletePayout)
			admin.POST("/payouts/:id/fail", adminHandler.FailPayout)

			admin.GET("/settings/affiliate", adminHandler.GetAffiliateSetting)
			admin.PUT("/settings/affiliate", adminHandler.UpdateAffiliateSetting)

			// 权限管理
			admin.GET("/authz/me", adminHandler.GetAuthzMe)
			admin.GET("/authz/roles", adminHandler.ListAuthzRoles)
			admin.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
			admin.POST("/authz/policies", adminHandler.GrantAuthzPolicy)
			admin.DELETE("/authz/policies", adminHandler.RevokeAuthzPolicy)
			admin.GET("/authz/users/:id/roles", adminHandler.GetAuthzUserRoles)
			admin.PUT("/authz/users/:id/roles", adminHandler.SetAuthzUserRoles)
			admin.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
				response.Success(ctx, buildAdminPermissionCatalog(r))
			})
		}
	}

	return r
}

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

func checkHealth(ctx context.Context, c *provider.Container) (healthStatus, int) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthStatus{Status: "ok", Database: "ok", Redis: "disabled"}
	code := http.StatusOK
	if c == nil || c.DB == nil {
		status.Status, status.Database = "degraded", "unavailable"
		return status, http.StatusServiceUnavailable
	}
	sqlDB, err := c.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		logger.Warnw("health_database_ping_failed", "error", err)
		status.Status, status.Database = "degraded", "unavailable"
		code = http.StatusServiceUnavailable
	}
	if client := cache.Client(); client != nil {
		status.Redis = "ok"
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnw("health_redis_ping_failed", "error", err)
			// 缓存不可用时服务仍可降级运行
			status.Redis = "unavailable"
		}
	}
	return status, code
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})
	return items
}

func deriveAdminPermissionModule(object string) string {
	segments := strings.Split(strings.TrimPrefix(strings.TrimSpace(object), "/"), "/")
	if len(segments) <= 1 || segments[0] != "admin" {
		return segments[0]
	}
	return segments[1]
}
