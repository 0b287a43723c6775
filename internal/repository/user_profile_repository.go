package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/models"

	"gorm.io/gorm"
)

// UserProfileRepository 用户资料数据访问接口
type UserProfileRepository interface {
	WithTx(tx *gorm.DB) UserProfileRepository
	WithContext(ctx context.Context) UserProfileRepository

	GetByID(id string) (*models.UserProfile, error)
	GetReferralCode(userID string) (string, error)
	SetReferredByIfEmpty(userID, code string, now time.Time) (bool, error)
	CountReferrals(code string) (int64, error)
	ListReferredUserIDs(code string) ([]string, error)
}

// GormUserProfileRepository GORM 实现
type GormUserProfileRepository struct {
	db *gorm.DB
}

// NewUserProfileRepository 创建用户资料仓库
func NewUserProfileRepository(db *gorm.DB) *GormUserProfileRepository {
	return &GormUserProfileRepository{db: db}
}

// WithTx 绑定事务
func (r *GormUserProfileRepository) WithTx(tx *gorm.DB) UserProfileRepository {
	if tx == nil {
		return r
	}
	return &GormUserProfileRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormUserProfileRepository) WithContext(ctx context.Context) UserProfileRepository {
	if ctx == nil {
		return r
	}
	return &GormUserProfileRepository{db: r.db.WithContext(ctx)}
}

// GetByID 根据 ID 获取用户资料
func (r *GormUserProfileRepository) GetByID(id string) (*models.UserProfile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var profile models.UserProfile
	if err := r.db.Where("id = ?", id).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// GetReferralCode 获取用户注册时记录的推广码，未记录返回空串
func (r *GormUserProfileRepository) GetReferralCode(userID string) (string, error) {
	profile, err := r.GetByID(userID)
	if err != nil || profile == nil {
		return "", err
	}
	return strings.TrimSpace(profile.ReferredBy), nil
}

// SetReferredByIfEmpty 首次归属推广码，已有归属时返回 false
func (r *GormUserProfileRepository) SetReferredByIfEmpty(userID, code string, now time.Time) (bool, error) {
	result := r.db.Model(&models.UserProfile{}).
		Where("id = ? AND (referred_by IS NULL OR referred_by = '')", userID).
		Updates(map[string]interface{}{
			"referred_by": code,
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CountReferrals 统计推广码带来的注册数
func (r *GormUserProfileRepository) CountReferrals(code string) (int64, error) {
	var total int64
	err := r.db.Model(&models.UserProfile{}).Where("referred_by = ?", code).Count(&total).Error
	return total, err
}

// ListReferredUserIDs 列出推广码带来的用户
func (r *GormUserProfileRepository) ListReferredUserIDs(code string) ([]string, error) {
	var ids []string
	if err := r.db.Model(&models.UserProfile{}).Where("referred_by = ?", code).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
