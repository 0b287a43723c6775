package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Affiliate 推广员档案
type Affiliate struct {
	ID                   string              `gorm:"primarykey;type:varchar(36)" json:"id"`
	UserID               string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"`
	AffiliateCode        string              `gorm:"type:varchar(32);uniqueIndex;not null" json:"affiliate_code"`
	Tier                 string              `gorm:"type:varchar(16);not null;default:'standard'" json:"tier"`
	CommissionRate       decimal.Decimal     `gorm:"type:decimal(6,4);not null;default:0" json:"commission_rate"`
	OverrideRate         decimal.NullDecimal `gorm:"type:decimal(6,4)" json:"override_rate"`
	UplineAffiliateID    *string             `gorm:"type:varchar(36);index" json:"upline_affiliate_id,omitempty"`
	PendingPayoutBalance Money               `gorm:"type:decimal(20,2);not null;default:0" json:"pending_payout_balance"`
	TotalEarnings        Money               `gorm:"type:decimal(20,2);not null;default:0" json:"total_earnings"`
	PayoutDestinationID  string              `gorm:"type:varchar(64)" json:"payout_destination_id,omitempty"`
	PayoutMethod         string              `gorm:"type:varchar(16);not null;default:'stripe'" json:"payout_method"`
	ActivePayoutID       *string             `gorm:"type:varchar(36);index" json:"active_payout_id,omitempty"`
	Status               string              `gorm:"type:varchar(16);index;not null" json:"status"`
	CreatedAt            time.Time           `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"index" json:"updated_at"`

	Commissions []AffiliateCommission `gorm:"foreignKey:AffiliateID;constraint:OnDelete:CASCADE" json:"-"`
	Payouts     []AffiliatePayout     `gorm:"foreignKey:AffiliateID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定表名
func (Affiliate) TableName() string {
	return "affiliates"
}

// BeforeCreate 生成主键
func (a *Affiliate) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(a.ID) == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// HasOverride 是否具备上级分成资格
func (a *Affiliate) HasOverride() bool {
	if a == nil || !a.OverrideRate.Valid {
		return false
	}
	return a.OverrideRate.Decimal.GreaterThan(decimal.Zero)
}
