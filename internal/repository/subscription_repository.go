package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/cookinbiz/affiliate-ledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionRepository 订阅数据访问接口
type SubscriptionRepository interface {
	WithContext(ctx context.Context) SubscriptionRepository

	GetByStripeID(stripeSubscriptionID string) (*models.Subscription, error)
	Upsert(subscription *models.Subscription) error
	Update(subscription *models.Subscription) error
	CountActiveByUserIDs(userIDs []string) (int64, error)
}

// GormSubscriptionRepository GORM 实现
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository 创建订阅仓库
func NewSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// WithContext 绑定请求上下文
func (r *GormSubscriptionRepository) WithContext(ctx context.Context) SubscriptionRepository {
	if ctx == nil {
		return r
	}
	return &GormSubscriptionRepository{db: r.db.WithContext(ctx)}
}

// GetByStripeID 按支付平台订阅号获取
func (r *GormSubscriptionRepository) GetByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	if strings.TrimSpace(stripeSubscriptionID) == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// Upsert 按支付平台订阅号写入或更新订阅
func (r *GormSubscriptionRepository) Upsert(subscription *models.Subscription) error {
	if subscription == nil {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "plan", "stripe_customer_id",
			"current_period_start", "current_period_end",
			"cancel_at_period_end", "updated_at",
		}),
	}).Create(subscription).Error
}

// Update 更新已存在的订阅
func (r *GormSubscriptionRepository) Update(subscription *models.Subscription) error {
	if subscription == nil {
		return nil
	}
	return r.db.Save(subscription).Error
}

// CountActiveByUserIDs 统计用户集合中的有效订阅数
func (r *GormSubscriptionRepository) CountActiveByUserIDs(userIDs []string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.Model(&models.Subscription{}).
		Where("user_id IN ? AND status = ?", userIDs, constants.SubscriptionStatusActive).
		Count(&total).Error
	return total, err
}
