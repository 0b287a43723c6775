package consumer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cookinbiz/affiliate-ledger/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var messageValidator = validator.New()

// BillingMessage 计费系统推送的账单事件
type BillingMessage struct {
	EventID        string `json:"event_id" validate:"max=128"`
	EventType      string `json:"event_type" validate:"required,max=64"`
	SubscriptionID string `json:"subscription_id" validate:"required,max=64"`
	InvoiceID      string `json:"invoice_id" validate:"max=128"`
	PayerUserID    string `json:"payer_user_id" validate:"required,max=64"`
	PlanPrice      string `json:"plan_price" validate:"required,numeric"`
	BillingReason  string `json:"billing_reason"`
}

// decodeBillingMessage 解析并校验消息体
func decodeBillingMessage(body []byte) (*service.BillingEvent, error) {
	var msg BillingMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrBillingEventInvalid, err)
	}
	msg.EventType = strings.TrimSpace(msg.EventType)
	msg.SubscriptionID = strings.TrimSpace(msg.SubscriptionID)
	msg.InvoiceID = strings.TrimSpace(msg.InvoiceID)
	msg.PayerUserID = strings.TrimSpace(msg.PayerUserID)
	msg.PlanPrice = strings.TrimSpace(msg.PlanPrice)
	if err := messageValidator.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrBillingEventInvalid, err)
	}
	price, err := decimal.NewFromString(msg.PlanPrice)
	if err != nil || price.IsNegative() {
		return nil, fmt.Errorf("%w: plan_price %q", service.ErrBillingEventInvalid, msg.PlanPrice)
	}
	return &service.BillingEvent{
		EventID:        msg.EventID,
		EventType:      msg.EventType,
		SubscriptionID: msg.SubscriptionID,
		InvoiceID:      msg.InvoiceID,
		PayerUserID:    msg.PayerUserID,
		PlanPrice:      price,
		BillingReason:  msg.BillingReason,
	}, nil
}
