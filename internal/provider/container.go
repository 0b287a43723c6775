package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/authz"
	"github.com/cookinbiz/affiliate-ledger/internal/cache"
	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/cookinbiz/affiliate-ledger/internal/logger"
	"github.com/cookinbiz/affiliate-ledger/internal/payment/stripe"
	"github.com/cookinbiz/affiliate-ledger/internal/queue"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"
	"github.com/cookinbiz/affiliate-ledger/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client

	// Repositories
	AffiliateRepo    repository.AffiliateRepository
	UserProfileRepo  repository.UserProfileRepository
	SubscriptionRepo repository.SubscriptionRepository
	BillingEventRepo repository.BillingEventRepository
	SettingRepo      repository.SettingRepository

	// Services
	AuthzService     *authz.Service
	SettingService   *service.SettingService
	LedgerService    *service.LedgerService
	PayoutService    *service.PayoutService
	AffiliateService *service.AffiliateService
	BillingService   *service.BillingService
	StripeGateway    *service.StripeGateway
	TaskScheduler    *service.TaskScheduler
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config, db *gorm.DB) (*Container, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("config and db are required")
	}
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient = nil
	}

	c := &Container{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
	}
	c.initRepositories()
	if err := c.initServices(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) initRepositories() {
	c.AffiliateRepo = repository.NewAffiliateRepository(c.DB)
	c.UserProfileRepo = repository.NewUserProfileRepository(c.DB)
	c.SubscriptionRepo = repository.NewSubscriptionRepository(c.DB)
	c.BillingEventRepo = repository.NewBillingEventRepository(c.DB)
	c.SettingRepo = repository.NewSettingRepository(c.DB)
}

func (c *Container) initServices() error {
	authzService, err := authz.NewService(c.DB)
	if err != nil {
		return fmt.Errorf("init authz: %w", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		return fmt.Errorf("bootstrap builtin roles: %w", err)
	}
	c.AuthzService = authzService

	c.SettingService = service.NewSettingService(c.SettingRepo, service.AffiliateSettingFromConfig(c.Config.Affiliate))
	c.LedgerService = service.NewLedgerService(c.AffiliateRepo, c.UserProfileRepo)
	c.TaskScheduler = service.NewTaskScheduler(c.QueueClient)

	// 接口变量只在实现非空时赋值，避免 typed nil
	var transferer service.FundsTransferer
	var accounts service.PayoutAccountProvider
	var subscriptions service.SubscriptionLookup
	gateway, err := service.NewStripeGateway(c.Config.Stripe)
	if err != nil {
		logger.Warnw("provider_stripe_gateway_disabled", "error", err)
	} else {
		c.StripeGateway = gateway
		transferer = gateway
		accounts = gateway
		subscriptions = gateway
	}
	var reconcileScheduler service.PayoutReconcileScheduler
	var billingEnqueuer service.BillingEventEnqueuer
	if c.TaskScheduler != nil {
		reconcileScheduler = c.TaskScheduler
		billingEnqueuer = c.TaskScheduler
	}

	c.PayoutService = service.NewPayoutService(c.AffiliateRepo, c.SettingService, transferer, reconcileScheduler)
	c.AffiliateService = service.NewAffiliateService(
		c.AffiliateRepo,
		c.UserProfileRepo,
		c.SubscriptionRepo,
		c.SettingService,
		accounts,
		time.Duration(c.Config.Affiliate.DashboardCacheSeconds)*time.Second,
	)
	c.BillingService = service.NewBillingService(
		c.webhookConfig(),
		subscriptions,
		c.SubscriptionRepo,
		c.BillingEventRepo,
		c.LedgerService,
		service.NewPlanCatalog(c.Config.Billing),
		billingEnqueuer,
	)
	return nil
}

// webhookConfig 网关未就绪时仍允许仅配置 webhook 密钥接收事件
func (c *Container) webhookConfig() *stripe.Config {
	if c.StripeGateway != nil {
		return c.StripeGateway.Config()
	}
	cfg := &stripe.Config{
		WebhookSecret:           c.Config.Stripe.WebhookSecret,
		WebhookToleranceSeconds: c.Config.Stripe.WebhookToleranceSeconds,
	}
	cfg.Normalize()
	return cfg
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
