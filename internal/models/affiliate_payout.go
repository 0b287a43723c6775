package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AffiliatePayout 推广员打款记录（一次转账尝试）
type AffiliatePayout struct {
	ID                 string     `gorm:"primarykey;type:varchar(36)" json:"id"`
	AffiliateID        string     `gorm:"type:varchar(36);not null;index" json:"affiliate_id"`
	Amount             Money      `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency           string     `gorm:"type:varchar(8);not null" json:"currency"`
	Method             string     `gorm:"type:varchar(16);not null" json:"method"`
	DestinationID      string     `gorm:"type:varchar(64)" json:"destination_id"`
	Description        string     `gorm:"type:varchar(255)" json:"description"`
	ExternalTransferID string     `gorm:"type:varchar(64);index" json:"external_transfer_id,omitempty"`
	Status             string     `gorm:"type:varchar(16);not null;index" json:"status"`
	FailureReason      string     `gorm:"type:varchar(500)" json:"failure_reason,omitempty"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	FailedAt           *time.Time `json:"failed_at,omitempty"`
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"index" json:"updated_at"`
}

// TableName 指定表名
func (AffiliatePayout) TableName() string {
	return "affiliate_payouts"
}

// BeforeCreate 生成主键
func (p *AffiliatePayout) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
