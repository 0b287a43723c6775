package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestObserveCommissionCountsAmountOnlyWhenRecorded(t *testing.T) {
	m := NewLedgerMetrics(prometheus.NewRegistry())

	m.ObserveCommission("direct", CommissionOutcomeRecorded, decimal.RequireFromString("29.10"))
	m.ObserveCommission("direct", CommissionOutcomeDuplicate, decimal.RequireFromString("29.10"))

	if got := testutil.ToFloat64(m.commissions.WithLabelValues("direct", CommissionOutcomeRecorded)); got != 1 {
		t.Fatalf("expected 1 recorded commission, got %v", got)
	}
	if got := testutil.ToFloat64(m.commissions.WithLabelValues("direct", CommissionOutcomeDuplicate)); got != 1 {
		t.Fatalf("expected 1 duplicate commission, got %v", got)
	}
	if got := testutil.ToFloat64(m.commissionAmount.WithLabelValues("direct")); got != 29.1 {
		t.Fatalf("expected amount 29.1, got %v", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *LedgerMetrics
	m.ObservePayout("completed")
	m.ObserveLedgerImbalance()
	m.ObserveBillingEvent("recurring_charge_succeeded", "processed")
}
