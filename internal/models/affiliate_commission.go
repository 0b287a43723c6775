package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AffiliateCommission 推广佣金记录
type AffiliateCommission struct {
	ID                string          `gorm:"primarykey;type:varchar(36)" json:"id"`
	AffiliateID       string          `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_affiliate_commission_unique,priority:3" json:"affiliate_id"`
	SubscriptionID    string          `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_affiliate_commission_unique,priority:1" json:"subscription_id"`
	InvoiceID         string          `gorm:"type:varchar(64);not null;default:'';uniqueIndex:idx_affiliate_commission_unique,priority:2" json:"invoice_id"`
	CommissionType    string          `gorm:"type:varchar(16);not null;uniqueIndex:idx_affiliate_commission_unique,priority:4" json:"commission_type"`
	ReferralUserID    string          `gorm:"type:varchar(64);index" json:"referral_user_id"`
	SourceAffiliateID *string         `gorm:"type:varchar(36);index" json:"source_affiliate_id,omitempty"`
	BaseAmount        Money           `gorm:"type:decimal(20,2);not null;default:0" json:"base_amount"`
	Rate              decimal.Decimal `gorm:"type:decimal(6,4);not null;default:0" json:"rate"`
	Amount            Money           `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`
	Status            string          `gorm:"type:varchar(16);not null;index" json:"status"`
	PayoutID          *string         `gorm:"type:varchar(36);index" json:"payout_id,omitempty"`
	PaidAt            *time.Time      `gorm:"index" json:"paid_at,omitempty"`
	CanceledAt        *time.Time      `json:"canceled_at,omitempty"`
	CancelReason      string          `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"index" json:"updated_at"`
}

// TableName 指定表名
func (AffiliateCommission) TableName() string {
	return "affiliate_commissions"
}

// BeforeCreate 生成主键
func (c *AffiliateCommission) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(c.ID) == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
