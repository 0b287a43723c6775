package queue

import (
	"encoding/json"

	"github.com/cookinbiz/affiliate-ledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskRecurringPayment 续费入账任务
	TaskRecurringPayment = constants.TaskRecurringPayment
	// TaskPayoutReconcile 提现对账任务
	TaskPayoutReconcile = constants.TaskPayoutReconcile
)

// RecurringPaymentPayload 续费入账任务载荷
type RecurringPaymentPayload struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	SubscriptionID string `json:"subscription_id"`
	InvoiceID      string `json:"invoice_id"`
	PayerUserID    string `json:"payer_user_id"`
	PlanPrice      string `json:"plan_price"`
	BillingReason  string `json:"billing_reason"`
}

// PayoutReconcilePayload 提现对账任务载荷
type PayoutReconcilePayload struct {
	PayoutID string `json:"payout_id"`
}

// NewRecurringPaymentTask 创建续费入账任务
func NewRecurringPaymentTask(payload RecurringPaymentPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurringPayment, body), nil
}

// NewPayoutReconcileTask 创建提现对账任务
func NewPayoutReconcileTask(payload PayoutReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutReconcile, body), nil
}

// recurringPaymentTaskID 同一张账单只保留一个待执行任务
func recurringPaymentTaskID(payload RecurringPaymentPayload) string {
	if payload.SubscriptionID == "" || payload.InvoiceID == "" {
		return ""
	}
	return "recurring:" + payload.SubscriptionID + ":" + payload.InvoiceID
}
