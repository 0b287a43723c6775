package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BillingEventRepository 支付事件日志数据访问接口
type BillingEventRepository interface {
	WithContext(ctx context.Context) BillingEventRepository

	Get(provider, eventID string) (*models.BillingWebhookEvent, error)
	Record(event *models.BillingWebhookEvent) error
}

// GormBillingEventRepository GORM 实现
type GormBillingEventRepository struct {
	db *gorm.DB
}

// NewBillingEventRepository 创建事件日志仓库
func NewBillingEventRepository(db *gorm.DB) *GormBillingEventRepository {
	return &GormBillingEventRepository{db: db}
}

// WithContext 绑定请求上下文
func (r *GormBillingEventRepository) WithContext(ctx context.Context) BillingEventRepository {
	if ctx == nil {
		return r
	}
	return &GormBillingEventRepository{db: r.db.WithContext(ctx)}
}

// Get 按平台事件号获取
func (r *GormBillingEventRepository) Get(provider, eventID string) (*models.BillingWebhookEvent, error) {
	var event models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND event_id = ?", provider, eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// Record 写入事件处理结果，重复事件覆盖状态
func (r *GormBillingEventRepository) Record(event *models.BillingWebhookEvent) error {
	if event == nil {
		return nil
	}
	if event.ProcessedAt == nil {
		now := time.Now()
		event.ProcessedAt = &now
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"event_type", "status", "error", "processed_at", "updated_at"}),
	}).Create(event).Error
}
