package service

import (
	"encoding/json"
	"testing"

	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/shopspring/decimal"
)

func TestParseSettingDecimal(t *testing.T) {
	cases := []struct {
		name    string
		input   interface{}
		want    string
		wantErr bool
	}{
		{name: "string", input: " 25.50 ", want: "25.5"},
		{name: "float", input: 0.15, want: "0.15"},
		{name: "int", input: 30, want: "30"},
		{name: "json number", input: json.Number("12.34"), want: "12.34"},
		{name: "empty string", input: "  ", wantErr: true},
		{name: "bool", input: true, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseSettingDecimal(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("want %s got %s", tc.want, got)
			}
		})
	}
}

func TestNormalizeSettingTextWithRuneLimit(t *testing.T) {
	if got := normalizeSettingTextWithRuneLimit("  推广联盟计划  ", 4); got != "推广联盟" {
		t.Fatalf("unexpected truncated text: %q", got)
	}
	if got := normalizeSettingTextWithRuneLimit(42, 4); got != "" {
		t.Fatalf("non-string should normalize to empty, got %q", got)
	}
}

func TestNormalizeSettingValueByKeyAffiliate(t *testing.T) {
	defaults := testAffiliateDefaults()
	result := normalizeSettingValueByKey(constants.SettingKeyAffiliateConfig, map[string]interface{}{
		"min_payout_amount": "40.005",
		"currency":          "eur",
		"auto_approve":      "false",
	}, defaults)

	if result["min_payout_amount"] != "40.01" {
		t.Fatalf("unexpected min payout: %v", result["min_payout_amount"])
	}
	if result["currency"] != "EUR" {
		t.Fatalf("unexpected currency: %v", result["currency"])
	}
	if result["auto_approve"] != false {
		t.Fatalf("unexpected auto_approve: %v", result["auto_approve"])
	}
	if result["payout_brand"] != defaults.PayoutBrand {
		t.Fatalf("missing keys should use defaults, got %v", result["payout_brand"])
	}
}

func TestNormalizeSettingValueByKeyPassthrough(t *testing.T) {
	result := normalizeSettingValueByKey("custom_key", map[string]interface{}{"a": "b"}, testAffiliateDefaults())
	if result["a"] != "b" {
		t.Fatalf("unknown keys should pass through, got %v", result)
	}
}
