package models

import "time"

// BillingWebhookEvent 已处理的支付平台事件
type BillingWebhookEvent struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	Provider    string     `gorm:"type:varchar(16);not null;uniqueIndex:idx_billing_event_provider_event,priority:1" json:"provider"`
	EventID     string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_billing_event_provider_event,priority:2" json:"event_id"`
	EventType   string     `gorm:"type:varchar(64);not null;index" json:"event_type"`
	Status      string     `gorm:"type:varchar(16);not null;index" json:"status"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (BillingWebhookEvent) TableName() string {
	return "billing_webhook_events"
}
