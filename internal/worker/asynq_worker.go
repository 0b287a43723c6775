package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cookinbiz/affiliate-ledger/internal/logger"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/queue"
	"github.com/cookinbiz/affiliate-ledger/internal/service"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// BillingEventHandler 账单事件入账
type BillingEventHandler interface {
	HandleBillingEvent(ctx context.Context, event service.BillingEvent) (*service.RecordResult, error)
}

// PayoutReconciler 打款对账
type PayoutReconciler interface {
	ReconcilePayout(ctx context.Context, payoutID string) (*models.AffiliatePayout, error)
}

// Consumer 异步任务消费者
type Consumer struct {
	ledger  BillingEventHandler
	payouts PayoutReconciler
}

// NewConsumer 创建消费者
func NewConsumer(ledger BillingEventHandler, payouts PayoutReconciler) *Consumer {
	return &Consumer{ledger: ledger, payouts: payouts}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskRecurringPayment, c.handleRecurringPayment)
	mux.HandleFunc(queue.TaskPayoutReconcile, c.handlePayoutReconcile)
}

func (c *Consumer) handleRecurringPayment(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.ledger == nil {
		logger.Debugw("worker_recurring_payment_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.RecurringPaymentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_recurring_payment_unmarshal_failed", "error", err)
		return errors.Join(err, asynq.SkipRetry)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(payload.PlanPrice))
	if err != nil {
		logger.Warnw("worker_recurring_payment_invalid_price", "invoice_id", payload.InvoiceID, "plan_price", payload.PlanPrice)
		return errors.Join(err, asynq.SkipRetry)
	}
	result, err := c.recordBillingEvent(ctx, service.BillingEvent{
		EventID:        payload.EventID,
		EventType:      payload.EventType,
		SubscriptionID: payload.SubscriptionID,
		InvoiceID:      payload.InvoiceID,
		PayerUserID:    payload.PayerUserID,
		PlanPrice:      price,
		BillingReason:  payload.BillingReason,
	})
	if err != nil {
		if errors.Is(err, service.ErrBillingEventInvalid) ||
			errors.Is(err, service.ErrCommissionRateOutOfRange) ||
			errors.Is(err, service.ErrCommissionPriceNegative) {
			logger.Errorw("worker_recurring_payment_rejected",
				"subscription_id", payload.SubscriptionID,
				"invoice_id", payload.InvoiceID,
				"error", err,
			)
			return errors.Join(err, asynq.SkipRetry)
		}
		logger.Warnw("worker_recurring_payment_failed",
			"subscription_id", payload.SubscriptionID,
			"invoice_id", payload.InvoiceID,
			"error", err,
		)
		return err
	}
	logger.Debugw("worker_recurring_payment_done",
		"invoice_id", payload.InvoiceID,
		"commissions", len(result.Commissions),
		"skip_reason", result.SkipReason,
	)
	return nil
}

// recordBillingEvent 入账时费率损坏会 panic，转成错误交给调用方判定是否重试
func (c *Consumer) recordBillingEvent(ctx context.Context, event service.BillingEvent) (result *service.RecordResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			if recovered, ok := r.(error); ok {
				err = fmt.Errorf("recovered panic: %w", recovered)
			} else {
				err = fmt.Errorf("recovered panic: %v", r)
			}
			result = nil
		}
	}()
	return c.ledger.HandleBillingEvent(ctx, event)
}

func (c *Consumer) handlePayoutReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.payouts == nil {
		logger.Debugw("worker_payout_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PayoutReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payout_reconcile_unmarshal_failed", "error", err)
		return errors.Join(err, asynq.SkipRetry)
	}
	if strings.TrimSpace(payload.PayoutID) == "" {
		logger.Debugw("worker_payout_reconcile_skip_invalid_payload")
		return nil
	}
	payout, err := c.payouts.ReconcilePayout(ctx, payload.PayoutID)
	if err != nil {
		if errors.Is(err, service.ErrPayoutNotFound) {
			logger.Debugw("worker_payout_reconcile_skip_not_found", "payout_id", payload.PayoutID)
			return nil
		}
		logger.Warnw("worker_payout_reconcile_failed", "payout_id", payload.PayoutID, "error", err)
		return err
	}
	logger.Infow("worker_payout_reconciled", "payout_id", payout.ID, "status", payout.Status)
	return nil
}
