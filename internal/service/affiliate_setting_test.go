package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"
	"github.com/shopspring/decimal"
)

type mockSettingRepo struct {
	store map[string]models.JSON
}

func newMockSettingRepo() *mockSettingRepo {
	return &mockSettingRepo{store: map[string]models.JSON{}}
}

func (m *mockSettingRepo) GetByKey(key string) (*models.Setting, error) {
	value, ok := m.store[key]
	if !ok {
		return nil, nil
	}
	return &models.Setting{Key: key, ValueJSON: value}, nil
}

func (m *mockSettingRepo) Upsert(key string, value models.JSON) (*models.Setting, error) {
	m.store[key] = value
	return &models.Setting{Key: key, ValueJSON: value}, nil
}

func (m *mockSettingRepo) WithContext(_ context.Context) repository.SettingRepository {
	return m
}

func testAffiliateDefaults() AffiliateSetting {
	return AffiliateSettingFromConfig(config.AffiliateConfig{
		MinPayoutAmount:       "25.00",
		Currency:              "usd",
		PayoutBrand:           "CookinBiz",
		DefaultCommissionRate: "0.30",
		DefaultOverrideRate:   "0.15",
		AutoApprove:           true,
		AutoCompletePayout:    true,
	})
}

func TestGetAffiliateSettingFallback(t *testing.T) {
	svc := NewSettingService(newMockSettingRepo(), testAffiliateDefaults())

	setting, err := svc.GetAffiliateSetting(context.Background())
	if err != nil {
		t.Fatalf("get affiliate setting failed: %v", err)
	}
	if !setting.MinPayoutAmount.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("expected default min payout 25.00, got %s", setting.MinPayoutAmount)
	}
	if setting.Currency != "USD" {
		t.Fatalf("expected currency upper-cased, got %s", setting.Currency)
	}
	if !setting.DefaultCommissionRate.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("unexpected default rate: %s", setting.DefaultCommissionRate)
	}
}

func TestGetAffiliateSettingStoredValueOverridesConfig(t *testing.T) {
	repo := newMockSettingRepo()
	repo.store[constants.SettingKeyAffiliateConfig] = models.JSON{
		"min_payout_amount": 50.5,
		"payout_brand":      "  Acme  ",
	}
	svc := NewSettingService(repo, testAffiliateDefaults())

	setting, err := svc.GetAffiliateSetting(context.Background())
	if err != nil {
		t.Fatalf("get affiliate setting failed: %v", err)
	}
	if !setting.MinPayoutAmount.Equal(decimal.RequireFromString("50.50")) {
		t.Fatalf("expected stored min payout 50.50, got %s", setting.MinPayoutAmount)
	}
	if setting.PayoutBrand != "Acme" {
		t.Fatalf("expected trimmed brand, got %q", setting.PayoutBrand)
	}
	if !setting.AutoCompletePayout {
		t.Fatalf("missing keys should keep config defaults")
	}
}

func TestUpdateAffiliateSettingPersistsNormalized(t *testing.T) {
	repo := newMockSettingRepo()
	svc := NewSettingService(repo, testAffiliateDefaults())

	input := testAffiliateDefaults()
	input.MinPayoutAmount = decimal.RequireFromString("30.456")
	input.Currency = " eur "
	setting, err := svc.UpdateAffiliateSetting(context.Background(), input)
	if err != nil {
		t.Fatalf("update affiliate setting failed: %v", err)
	}
	if setting.Currency != "EUR" {
		t.Fatalf("unexpected currency: %s", setting.Currency)
	}

	saved, ok := repo.store[constants.SettingKeyAffiliateConfig]
	if !ok {
		t.Fatalf("expected affiliate setting saved")
	}
	if saved["min_payout_amount"] != "30.46" {
		t.Fatalf("expected saved min payout 30.46, got %v", saved["min_payout_amount"])
	}
}

func TestUpdateAffiliateSettingRejectsInvalid(t *testing.T) {
	svc := NewSettingService(newMockSettingRepo(), testAffiliateDefaults())

	cases := map[string]func(*AffiliateSetting){
		"rate above one":      func(s *AffiliateSetting) { s.DefaultCommissionRate = decimal.RequireFromString("1.2") },
		"override negative":   func(s *AffiliateSetting) { s.DefaultOverrideRate = decimal.RequireFromString("-0.1") },
		"min payout too low":  func(s *AffiliateSetting) { s.MinPayoutAmount = decimal.RequireFromString("0.5") },
		"currency not alpha3": func(s *AffiliateSetting) { s.Currency = "US1" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := testAffiliateDefaults()
			mutate(&input)
			if _, err := svc.UpdateAffiliateSetting(context.Background(), input); !errors.Is(err, ErrAffiliateConfigInvalid) {
				t.Fatalf("expected ErrAffiliateConfigInvalid, got %v", err)
			}
		})
	}
}
