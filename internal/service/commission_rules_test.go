package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCommission(t *testing.T) {
	cases := []struct {
		name  string
		price string
		rate  string
		want  string
	}{
		{name: "pro plan direct", price: "97", rate: "0.30", want: "29.10"},
		{name: "pro plan override", price: "97", rate: "0.15", want: "14.55"},
		{name: "starter plan", price: "27", rate: "0.30", want: "8.10"},
		{name: "enterprise plan", price: "497", rate: "0.30", want: "149.10"},
		{name: "half up to cent", price: "0.05", rate: "0.5", want: "0.03"},
		{name: "round down below half", price: "10.01", rate: "0.25", want: "2.50"},
		{name: "zero rate", price: "97", rate: "0", want: "0"},
		{name: "full rate", price: "97.45", rate: "1", want: "97.45"},
		{name: "zero price", price: "0", rate: "0.30", want: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeCommission(decimal.RequireFromString(tc.price), decimal.RequireFromString(tc.rate))
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got=%s want=%s", got.String(), tc.want)
			assert.False(t, got.IsNegative())
		})
	}
}

func TestComputeOverrideMatchesCommission(t *testing.T) {
	price := decimal.RequireFromString("297")
	rate := decimal.RequireFromString("0.15")
	assert.True(t, ComputeOverride(price, rate).Equal(ComputeCommission(price, rate)))
}

func TestComputeCommissionPanicsOnOutOfRangeInput(t *testing.T) {
	cases := []struct {
		name   string
		price  string
		rate   string
		target error
	}{
		{name: "negative rate", price: "97", rate: "-0.01", target: ErrCommissionRateOutOfRange},
		{name: "rate above one", price: "97", rate: "1.01", target: ErrCommissionRateOutOfRange},
		{name: "negative price", price: "-1", rate: "0.30", target: ErrCommissionPriceNegative},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recovered := capturePanic(func() {
				ComputeCommission(decimal.RequireFromString(tc.price), decimal.RequireFromString(tc.rate))
			})
			require.NotNil(t, recovered, "expected panic")
			err, ok := recovered.(error)
			require.True(t, ok, "panic value should be an error, got %T", recovered)
			assert.True(t, errors.Is(err, tc.target), "unexpected panic error: %v", err)
		})
	}
}

func TestValidateCommissionRate(t *testing.T) {
	assert.NoError(t, ValidateCommissionRate(decimal.RequireFromString("0.3")))
	assert.NoError(t, ValidateCommissionRate(decimal.RequireFromString("1")))
	assert.ErrorIs(t, ValidateCommissionRate(decimal.RequireFromString("1.5")), ErrCommissionRateInvalid)
	assert.ErrorIs(t, ValidateCommissionRate(decimal.RequireFromString("0.12345")), ErrCommissionRateInvalid)
}

func capturePanic(fn func()) (recovered interface{}) {
	defer func() {
		recovered = recover()
	}()
	fn()
	return nil
}
