package constants

// 推广员状态常量
const (
	AffiliateStatusPending   = "pending"
	AffiliateStatusActive    = "active"
	AffiliateStatusSuspended = "suspended"
)

// 推广员等级常量
const (
	AffiliateTierStandard = "standard"
	AffiliateTierVP       = "vp"
)

// 佣金类型常量
const (
	CommissionTypeDirect   = "direct"
	CommissionTypeOverride = "override"
)

// 佣金状态常量
const (
	CommissionStatusPending  = "pending"
	CommissionStatusPaid     = "paid"
	CommissionStatusCanceled = "canceled"
)

// 打款状态常量
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)

// 打款方式常量
const (
	PayoutMethodStripe = "stripe"
	PayoutMethodPaypal = "paypal"
	PayoutMethodWise   = "wise"
	PayoutMethodBank   = "bank"
)

// 订阅状态常量
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// 账单事件类型（归一化后）
const (
	BillingEventRecurringChargeSucceeded = "recurring_charge_succeeded"
	BillingEventInitialChargeSucceeded   = "initial_charge_succeeded"
	BillingEventChargeFailed             = "charge_failed"
	BillingEventSubscriptionCreated      = "subscription_created"
	BillingEventSubscriptionUpdated      = "subscription_updated"
	BillingEventSubscriptionCanceled     = "subscription_canceled"
)

// 账单原因（Stripe billing_reason）
const (
	BillingReasonSubscriptionCycle  = "subscription_cycle"
	BillingReasonSubscriptionCreate = "subscription_create"
)

// Webhook 事件处理状态
const (
	BillingEventStatusProcessed = "processed"
	BillingEventStatusIgnored   = "ignored"
	BillingEventStatusFailed    = "failed"
)

// 用户角色常量
const (
	UserRoleUser      = "user"
	UserRoleAffiliate = "affiliate"
	UserRoleVP        = "vp"
	UserRoleFinance   = "finance"
	UserRoleAdmin     = "admin"
)

// 队列任务常量
const (
	QueueDefault         = "default"
	QueueCritical        = "critical"
	TaskRecurringPayment = "billing:recurring_payment"
	TaskPayoutReconcile  = "payout:reconcile"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "afl"
)

// 设置键常量
const (
	SettingKeyAffiliateConfig = "affiliate_config"
)

// 币种常量
const (
	CurrencyDefault = "USD"
)

// 站点语言常量
const (
	LocaleZhCN = "zh-CN"
	LocaleEnUS = "en-US"
)

// 支持的站点语言顺序（含回退顺序）
var SupportedLocales = []string{LocaleEnUS, LocaleZhCN}
