package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/cookinbiz/affiliate-ledger/internal/logger"
	"github.com/cookinbiz/affiliate-ledger/internal/metrics"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/payment/stripe"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"
	"github.com/shopspring/decimal"
)

const billingProviderStripe = "stripe"

// Stripe 事件类型
const (
	stripeEventCheckoutCompleted    = "checkout.session.completed"
	stripeEventSubscriptionUpdated  = "customer.subscription.updated"
	stripeEventSubscriptionDeleted  = "customer.subscription.deleted"
	stripeEventInvoicePaid          = "invoice.paid"
	stripeEventInvoicePaymentOK     = "invoice.payment_succeeded"
	stripeEventInvoicePaymentFailed = "invoice.payment_failed"
)

// SubscriptionLookup 订阅详情查询
type SubscriptionLookup interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripe.SubscriptionResult, error)
}

// BillingEventEnqueuer 账单事件异步投递，为空时同步入账
type BillingEventEnqueuer interface {
	EnqueueBillingEvent(event BillingEvent) error
}

// WebhookOutcome Webhook 处理结果
type WebhookOutcome struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// BillingService 支付平台事件处理：订阅同步与续费入账
type BillingService struct {
	webhookCfg       *stripe.Config
	subscriptions    SubscriptionLookup
	subscriptionRepo repository.SubscriptionRepository
	eventRepo        repository.BillingEventRepository
	ledger           *LedgerService
	plans            *PlanCatalog
	enqueuer         BillingEventEnqueuer
	metrics          *metrics.LedgerMetrics
	now              func() time.Time
}

// NewBillingService 创建账单服务
func NewBillingService(
	webhookCfg *stripe.Config,
	subscriptions SubscriptionLookup,
	subscriptionRepo repository.SubscriptionRepository,
	eventRepo repository.BillingEventRepository,
	ledger *LedgerService,
	plans *PlanCatalog,
	enqueuer BillingEventEnqueuer,
) *BillingService {
	return &BillingService{
		webhookCfg:       webhookCfg,
		subscriptions:    subscriptions,
		subscriptionRepo: subscriptionRepo,
		eventRepo:        eventRepo,
		ledger:           ledger,
		plans:            plans,
		enqueuer:         enqueuer,
		metrics:          metrics.Ledger(),
		now:              time.Now,
	}
}

// HandleStripeWebhook 校验并处理 Stripe 事件，返回错误时平台会重投
func (s *BillingService) HandleStripeWebhook(ctx context.Context, headers map[string]string, body []byte) (*WebhookOutcome, error) {
	if s.webhookCfg == nil || strings.TrimSpace(s.webhookCfg.WebhookSecret) == "" {
		return nil, ErrPaymentGatewayConfig
	}
	event, err := stripe.VerifyAndParseWebhook(s.webhookCfg, headers, body, s.now())
	if err != nil {
		if errors.Is(err, stripe.ErrSignatureInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBillingEventInvalid, err)
	}
	outcome := &WebhookOutcome{EventID: event.EventID, EventType: event.EventType}

	events := s.eventRepo.WithContext(ctx)
	if event.EventID != "" {
		existing, err := events.Get(billingProviderStripe, event.EventID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Status != constants.BillingEventStatusFailed {
			outcome.Status = existing.Status
			outcome.Duplicate = true
			return outcome, nil
		}
	}

	status, handleErr := s.dispatch(ctx, event)
	if handleErr != nil {
		status = constants.BillingEventStatusFailed
	}
	outcome.Status = status
	s.metrics.ObserveBillingEvent(event.EventType, status)

	if event.EventID != "" {
		now := s.now()
		record := &models.BillingWebhookEvent{
			Provider:    billingProviderStripe,
			EventID:     event.EventID,
			EventType:   event.EventType,
			Status:      status,
			ProcessedAt: &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if handleErr != nil {
			record.Error = truncateRunes(handleErr.Error(), 1000)
		}
		if err := events.Record(record); err != nil {
			logger.Errorw("billing_event_record_failed", "event_id", event.EventID, "error", err)
		}
	}
	if handleErr != nil {
		logger.Errorw("billing_webhook_failed",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", handleErr,
		)
		return outcome, handleErr
	}
	logger.Infow("billing_webhook_handled", "event_id", event.EventID, "event_type", event.EventType, "status", status)
	return outcome, nil
}

func (s *BillingService) dispatch(ctx context.Context, event *stripe.WebhookEvent) (string, error) {
	switch event.EventType {
	case stripeEventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case stripeEventSubscriptionUpdated:
		return s.updateSubscription(ctx, event, func(sub *models.Subscription) {
			if event.PriceID != "" {
				sub.Plan = s.plans.PlanForPrice(event.PriceID)
			}
			sub.Status = mapSubscriptionStatus(event.Status)
			if event.CurrentPeriodStart != nil {
				sub.CurrentPeriodStart = event.CurrentPeriodStart
			}
			if event.CurrentPeriodEnd != nil {
				sub.CurrentPeriodEnd = event.CurrentPeriodEnd
			}
			sub.CancelAtPeriodEnd = event.CancelAtPeriodEnd
		})
	case stripeEventSubscriptionDeleted:
		return s.updateSubscription(ctx, event, func(sub *models.Subscription) {
			sub.Status = constants.SubscriptionStatusCanceled
		})
	case stripeEventInvoicePaymentFailed:
		return s.updateSubscription(ctx, event, func(sub *models.Subscription) {
			sub.Status = constants.SubscriptionStatusPastDue
		})
	case stripeEventInvoicePaid, stripeEventInvoicePaymentOK:
		return s.handleInvoicePaid(ctx, event)
	default:
		return constants.BillingEventStatusIgnored, nil
	}
}

func (s *BillingService) handleCheckoutCompleted(ctx context.Context, event *stripe.WebhookEvent) (string, error) {
	userID := strings.TrimSpace(event.Metadata["user_id"])
	if event.Mode != "subscription" || event.SubscriptionID == "" || userID == "" {
		return constants.BillingEventStatusIgnored, nil
	}
	plan := normalizePlan(event.Metadata["plan"])
	if plan == "" {
		plan = defaultPlan
	}
	now := s.now()
	subscription := &models.Subscription{
		UserID:               userID,
		StripeSubscriptionID: event.SubscriptionID,
		StripeCustomerID:     event.CustomerID,
		Plan:                 plan,
		Status:               constants.SubscriptionStatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if s.subscriptions != nil {
		detail, err := s.subscriptions.RetrieveSubscription(ctx, event.SubscriptionID)
		if err != nil {
			return "", err
		}
		subscription.CurrentPeriodStart = detail.CurrentPeriodStart
		subscription.CurrentPeriodEnd = detail.CurrentPeriodEnd
		subscription.CancelAtPeriodEnd = detail.CancelAtPeriodEnd
		if subscription.StripeCustomerID == "" {
			subscription.StripeCustomerID = detail.CustomerID
		}
	}
	if err := s.subscriptionRepo.WithContext(ctx).Upsert(subscription); err != nil {
		return "", err
	}
	logger.Infow("subscription_created", "user_id", userID, "stripe_subscription_id", event.SubscriptionID, "plan", plan)
	return constants.BillingEventStatusProcessed, nil
}

func (s *BillingService) updateSubscription(ctx context.Context, event *stripe.WebhookEvent, apply func(sub *models.Subscription)) (string, error) {
	if event.SubscriptionID == "" {
		return constants.BillingEventStatusIgnored, nil
	}
	repo := s.subscriptionRepo.WithContext(ctx)
	existing, err := repo.GetByStripeID(event.SubscriptionID)
	if err != nil {
		return "", err
	}
	if existing == nil {
		logger.Warnw("subscription_not_found", "stripe_subscription_id", event.SubscriptionID, "event_type", event.EventType)
		return constants.BillingEventStatusIgnored, nil
	}
	apply(existing)
	existing.UpdatedAt = s.now()
	if err := repo.Update(existing); err != nil {
		return "", err
	}
	return constants.BillingEventStatusProcessed, nil
}

func (s *BillingService) handleInvoicePaid(ctx context.Context, event *stripe.WebhookEvent) (string, error) {
	if event.SubscriptionID == "" || event.BillingReason != constants.BillingReasonSubscriptionCycle {
		// 首期账单由 checkout 处理，不产生续费佣金
		return constants.BillingEventStatusIgnored, nil
	}
	subscription, err := s.subscriptionRepo.WithContext(ctx).GetByStripeID(event.SubscriptionID)
	if err != nil {
		return "", err
	}
	if subscription == nil {
		logger.Warnw("subscription_not_found", "stripe_subscription_id", event.SubscriptionID, "event_type", event.EventType)
		return constants.BillingEventStatusIgnored, nil
	}
	price, ok := s.resolvePlanPrice(subscription.Plan, event.AmountPaid)
	if !ok {
		logger.Warnw("plan_price_unknown", "plan", subscription.Plan, "invoice_id", event.InvoiceID)
		return constants.BillingEventStatusIgnored, nil
	}

	billingEvent := BillingEvent{
		EventID:        event.EventID,
		EventType:      constants.BillingEventRecurringChargeSucceeded,
		SubscriptionID: subscription.StripeSubscriptionID,
		InvoiceID:      event.InvoiceID,
		PayerUserID:    subscription.UserID,
		PlanPrice:      price,
		BillingReason:  event.BillingReason,
	}
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueBillingEvent(billingEvent); err != nil {
			return "", err
		}
		return constants.BillingEventStatusProcessed, nil
	}
	if _, err := s.ledger.HandleBillingEvent(ctx, billingEvent); err != nil {
		return "", err
	}
	return constants.BillingEventStatusProcessed, nil
}

// resolvePlanPrice 以套餐标价为佣金基数，未知套餐退回实付金额
func (s *BillingService) resolvePlanPrice(plan, amountPaid string) (decimal.Decimal, bool) {
	if price, ok := s.plans.PlanPrice(plan); ok {
		return price, true
	}
	if strings.TrimSpace(amountPaid) == "" {
		return decimal.Zero, false
	}
	paid, err := decimal.NewFromString(strings.TrimSpace(amountPaid))
	if err != nil || paid.IsNegative() {
		return decimal.Zero, false
	}
	return paid, true
}

func mapSubscriptionStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "past_due", "unpaid":
		return constants.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return constants.SubscriptionStatusCanceled
	default:
		return constants.SubscriptionStatusActive
	}
}
