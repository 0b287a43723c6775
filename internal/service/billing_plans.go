package service

import (
	"strings"

	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/shopspring/decimal"
)

const defaultPlan = "starter"

// PlanCatalog 套餐月价与 Stripe price 映射
type PlanCatalog struct {
	prices     map[string]decimal.Decimal
	pricePlans map[string]string
}

// NewPlanCatalog 从配置构建套餐表，非法价格忽略
func NewPlanCatalog(cfg config.BillingConfig) *PlanCatalog {
	catalog := &PlanCatalog{
		prices:     make(map[string]decimal.Decimal, len(cfg.Plans)),
		pricePlans: make(map[string]string, len(cfg.PricePlans)),
	}
	for plan, raw := range cfg.Plans {
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || price.IsNegative() {
			continue
		}
		catalog.prices[normalizePlan(plan)] = price
	}
	for priceID, plan := range cfg.PricePlans {
		catalog.pricePlans[strings.TrimSpace(priceID)] = normalizePlan(plan)
	}
	return catalog
}

// PlanPrice 套餐月价
func (c *PlanCatalog) PlanPrice(plan string) (decimal.Decimal, bool) {
	if c == nil {
		return decimal.Zero, false
	}
	price, ok := c.prices[normalizePlan(plan)]
	return price, ok
}

// PlanForPrice Stripe price 对应套餐，未知时回落 starter
func (c *PlanCatalog) PlanForPrice(priceID string) string {
	if c != nil {
		if plan, ok := c.pricePlans[strings.TrimSpace(priceID)]; ok && plan != "" {
			return plan
		}
	}
	return defaultPlan
}

func normalizePlan(plan string) string {
	return strings.ToLower(strings.TrimSpace(plan))
}
