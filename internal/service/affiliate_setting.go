package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	affiliatePayoutBrandMaxRune = 60
	affiliateMinPayoutFloor     = "1.00"
)

var settingValidator = validator.New()

// AffiliateSetting 推广账本运行期配置
type AffiliateSetting struct {
	MinPayoutAmount       decimal.Decimal `json:"min_payout_amount"`
	Currency              string          `json:"currency" validate:"required,len=3,alpha"`
	PayoutBrand           string          `json:"payout_brand" validate:"required,max=60"`
	DefaultCommissionRate decimal.Decimal `json:"default_commission_rate"`
	DefaultOverrideRate   decimal.Decimal `json:"default_override_rate"`
	AutoApprove           bool            `json:"auto_approve"`
	AutoCompletePayout    bool            `json:"auto_complete_payout"`
}

// AffiliateSettingFromConfig 由配置文件构建默认推广配置
func AffiliateSettingFromConfig(cfg config.AffiliateConfig) AffiliateSetting {
	return NormalizeAffiliateSetting(AffiliateSetting{
		MinPayoutAmount:       decimalOrDefault(cfg.MinPayoutAmount, "25.00"),
		Currency:              cfg.Currency,
		PayoutBrand:           cfg.PayoutBrand,
		DefaultCommissionRate: decimalOrDefault(cfg.DefaultCommissionRate, "0.30"),
		DefaultOverrideRate:   decimalOrDefault(cfg.DefaultOverrideRate, "0.15"),
		AutoApprove:           cfg.AutoApprove,
		AutoCompletePayout:    cfg.AutoCompletePayout,
	})
}

// NormalizeAffiliateSetting 归一化推广配置
func NormalizeAffiliateSetting(setting AffiliateSetting) AffiliateSetting {
	setting.MinPayoutAmount = setting.MinPayoutAmount.Round(2)
	setting.Currency = strings.ToUpper(strings.TrimSpace(setting.Currency))
	if setting.Currency == "" {
		setting.Currency = constants.CurrencyDefault
	}
	setting.PayoutBrand = normalizeSettingTextWithRuneLimit(setting.PayoutBrand, affiliatePayoutBrandMaxRune)
	setting.DefaultCommissionRate = setting.DefaultCommissionRate.Round(4)
	setting.DefaultOverrideRate = setting.DefaultOverrideRate.Round(4)
	return setting
}

// ValidateAffiliateSetting 校验推广配置
func ValidateAffiliateSetting(setting AffiliateSetting) error {
	normalized := NormalizeAffiliateSetting(setting)
	if err := settingValidator.Struct(normalized); err != nil {
		return fmt.Errorf("%w: %v", ErrAffiliateConfigInvalid, err)
	}
	if normalized.MinPayoutAmount.LessThan(decimal.RequireFromString(affiliateMinPayoutFloor)) {
		return fmt.Errorf("%w: 最低打款金额不能小于 %s", ErrAffiliateConfigInvalid, affiliateMinPayoutFloor)
	}
	if err := ValidateCommissionRate(normalized.DefaultCommissionRate); err != nil {
		return fmt.Errorf("%w: default_commission_rate", ErrAffiliateConfigInvalid)
	}
	if err := ValidateCommissionRate(normalized.DefaultOverrideRate); err != nil {
		return fmt.Errorf("%w: default_override_rate", ErrAffiliateConfigInvalid)
	}
	return nil
}

// AffiliateSettingToMap 将推广配置转换为 settings 存储结构
func AffiliateSettingToMap(setting AffiliateSetting) map[string]interface{} {
	normalized := NormalizeAffiliateSetting(setting)
	return map[string]interface{}{
		"min_payout_amount":       normalized.MinPayoutAmount.StringFixed(2),
		"currency":                normalized.Currency,
		"payout_brand":            normalized.PayoutBrand,
		"default_commission_rate": normalized.DefaultCommissionRate.String(),
		"default_override_rate":   normalized.DefaultOverrideRate.String(),
		"auto_approve":            normalized.AutoApprove,
		"auto_complete_payout":    normalized.AutoCompletePayout,
	}
}

func affiliateSettingFromJSON(raw models.JSON, fallback AffiliateSetting) AffiliateSetting {
	result := fallback

	if value, ok := raw["min_payout_amount"]; ok {
		if parsed, err := parseSettingDecimal(value); err == nil {
			result.MinPayoutAmount = parsed
		}
	}
	if value, ok := raw["currency"]; ok {
		if text := normalizeSettingText(value); text != "" {
			result.Currency = text
		}
	}
	if value, ok := raw["payout_brand"]; ok {
		if text := normalizeSettingText(value); text != "" {
			result.PayoutBrand = text
		}
	}
	if value, ok := raw["default_commission_rate"]; ok {
		if parsed, err := parseSettingDecimal(value); err == nil {
			result.DefaultCommissionRate = parsed
		}
	}
	if value, ok := raw["default_override_rate"]; ok {
		if parsed, err := parseSettingDecimal(value); err == nil {
			result.DefaultOverrideRate = parsed
		}
	}
	if value, ok := raw["auto_approve"]; ok {
		result.AutoApprove = parseSettingBool(value)
	}
	if value, ok := raw["auto_complete_payout"]; ok {
		result.AutoCompletePayout = parseSettingBool(value)
	}

	return NormalizeAffiliateSetting(result)
}

// GetAffiliateSetting 获取推广配置（settings 覆盖配置文件默认值）
func (s *SettingService) GetAffiliateSetting(ctx context.Context) (AffiliateSetting, error) {
	if s == nil {
		return AffiliateSettingFromConfig(config.AffiliateConfig{}), nil
	}
	fallback := s.affiliateDefaults

	value, err := s.GetByKey(ctx, constants.SettingKeyAffiliateConfig)
	if err != nil {
		return fallback, err
	}
	if value == nil {
		return fallback, nil
	}
	return affiliateSettingFromJSON(value, fallback), nil
}

// UpdateAffiliateSetting 更新推广配置
func (s *SettingService) UpdateAffiliateSetting(ctx context.Context, setting AffiliateSetting) (AffiliateSetting, error) {
	normalized := NormalizeAffiliateSetting(setting)
	if err := ValidateAffiliateSetting(normalized); err != nil {
		return s.affiliateDefaults, err
	}
	if _, err := s.Update(ctx, constants.SettingKeyAffiliateConfig, AffiliateSettingToMap(normalized)); err != nil {
		return s.affiliateDefaults, err
	}
	return normalized, nil
}

func decimalOrDefault(raw, fallback string) decimal.Decimal {
	if parsed, err := decimal.NewFromString(strings.TrimSpace(raw)); err == nil {
		return parsed
	}
	return decimal.RequireFromString(fallback)
}
