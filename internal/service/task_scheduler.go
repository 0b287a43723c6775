package service

import (
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/queue"
)

// TaskScheduler 基于异步队列的任务投递
type TaskScheduler struct {
	client *queue.Client
}

// NewTaskScheduler 队列未启用时返回 nil，调用方走同步路径
func NewTaskScheduler(client *queue.Client) *TaskScheduler {
	if !client.Enabled() {
		return nil
	}
	return &TaskScheduler{client: client}
}

// EnqueuePayoutReconcile 延迟对账
func (s *TaskScheduler) EnqueuePayoutReconcile(payoutID string, delay time.Duration) error {
	return s.client.EnqueuePayoutReconcile(queue.PayoutReconcilePayload{PayoutID: payoutID}, delay)
}

// EnqueueBillingEvent 投递续费入账
func (s *TaskScheduler) EnqueueBillingEvent(event BillingEvent) error {
	return s.client.EnqueueRecurringPayment(queue.RecurringPaymentPayload{
		EventID:        event.EventID,
		EventType:      event.EventType,
		SubscriptionID: event.SubscriptionID,
		InvoiceID:      event.InvoiceID,
		PayerUserID:    event.PayerUserID,
		PlanPrice:      event.PlanPrice.String(),
		BillingReason:  event.BillingReason,
	})
}
