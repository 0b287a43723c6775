package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription 订阅记录（镜像支付平台的订阅状态）
type Subscription struct {
	ID                   string     `gorm:"primarykey;type:varchar(36)" json:"id"`
	UserID               string     `gorm:"type:varchar(64);not null;index" json:"user_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"stripe_subscription_id"`
	StripeCustomerID     string     `gorm:"type:varchar(64);index" json:"stripe_customer_id"`
	Plan                 string     `gorm:"type:varchar(32);not null" json:"plan"`
	Status               string     `gorm:"type:varchar(16);not null;index" json:"status"`
	CurrentPeriodStart   *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscriptions"
}

// BeforeCreate 生成主键
func (s *Subscription) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
