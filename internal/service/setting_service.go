package service

import (
	"context"

	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"
)

// SettingService 设置业务服务
type SettingService struct {
	repo              repository.SettingRepository
	affiliateDefaults AffiliateSetting
}

// NewSettingService 创建设置服务，affiliateDefaults 为配置文件给出的默认值
func NewSettingService(repo repository.SettingRepository, affiliateDefaults AffiliateSetting) *SettingService {
	return &SettingService{
		repo:              repo,
		affiliateDefaults: NormalizeAffiliateSetting(affiliateDefaults),
	}
}

// GetByKey 获取设置
func (s *SettingService) GetByKey(ctx context.Context, key string) (models.JSON, error) {
	setting, err := s.repo.WithContext(ctx).GetByKey(key)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, nil
	}
	return setting.ValueJSON, nil
}

// Update 设置值
func (s *SettingService) Update(ctx context.Context, key string, value map[string]interface{}) (models.JSON, error) {
	normalized := normalizeSettingValueByKey(key, value, s.affiliateDefaults)

	setting, err := s.repo.WithContext(ctx).Upsert(key, normalized)
	if err != nil {
		return nil, err
	}
	return setting.ValueJSON, nil
}
