package service

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	commissionRateMin = decimal.Zero
	commissionRateMax = decimal.NewFromInt(1)
)

// ComputeCommission 计算佣金：price * rate 四舍五入到分
// price 为负或 rate 不在 [0,1] 时 panic，上游数据已损坏，不做截断
func ComputeCommission(price, rate decimal.Decimal) decimal.Decimal {
	if price.IsNegative() {
		panic(fmt.Errorf("%w: price=%s", ErrCommissionPriceNegative, price.String()))
	}
	if rate.LessThan(commissionRateMin) || rate.GreaterThan(commissionRateMax) {
		panic(fmt.Errorf("%w: rate=%s", ErrCommissionRateOutOfRange, rate.String()))
	}
	// decimal.Round 对正数即 half-up
	return price.Mul(rate).Round(2)
}

// ComputeOverride 计算上级分成，与直推同一算法
func ComputeOverride(price, overrideRate decimal.Decimal) decimal.Decimal {
	return ComputeCommission(price, overrideRate)
}

// ValidateCommissionRate 校验可写入的费率
func ValidateCommissionRate(rate decimal.Decimal) error {
	if rate.LessThan(commissionRateMin) || rate.GreaterThan(commissionRateMax) {
		return fmt.Errorf("%w: %s", ErrCommissionRateInvalid, rate.String())
	}
	if !rate.Equal(rate.Round(4)) {
		return fmt.Errorf("%w: at most 4 decimal places", ErrCommissionRateInvalid)
	}
	return nil
}
