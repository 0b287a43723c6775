package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const namespace = "affiliate_ledger"

// 佣金写入结果
const (
	CommissionOutcomeRecorded  = "recorded"
	CommissionOutcomeDuplicate = "duplicate"
	CommissionOutcomeSkipped   = "skipped"
)

// LedgerMetrics 账本相关指标
type LedgerMetrics struct {
	commissions      *prometheus.CounterVec
	commissionAmount *prometheus.CounterVec
	payouts          *prometheus.CounterVec
	transferLatency  prometheus.Histogram
	billingEvents    *prometheus.CounterVec
	ledgerImbalance  prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// Ledger 返回注册到默认 Registerer 的单例
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = NewLedgerMetrics(prometheus.DefaultRegisterer)
	})
	return ledgerMetrics
}

// NewLedgerMetrics 创建并注册指标
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &LedgerMetrics{
		commissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commissions_total",
			Help:      "Commission writes by kind and outcome.",
		}, []string{"kind", "outcome"}),
		commissionAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_amount_total",
			Help:      "Commission amount credited, in currency units.",
		}, []string{"kind"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_total",
			Help:      "Payout state transitions by resulting status.",
		}, []string{"status"}),
		transferLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Latency of funds transfer calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		billingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_events_total",
			Help:      "Billing events handled by type and status.",
		}, []string{"type", "status"}),
		ledgerImbalance: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_imbalance_total",
			Help:      "Affiliates whose stored balance disagrees with pending commissions.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	registerer.MustRegister(
		m.commissions,
		m.commissionAmount,
		m.payouts,
		m.transferLatency,
		m.billingEvents,
		m.ledgerImbalance,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

// ObserveCommission 记录一次佣金写入
func (m *LedgerMetrics) ObserveCommission(kind, outcome string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.commissions.WithLabelValues(kind, outcome).Inc()
	if outcome == CommissionOutcomeRecorded {
		m.commissionAmount.WithLabelValues(kind).Add(amount.InexactFloat64())
	}
}

// ObservePayout 记录打款状态变化
func (m *LedgerMetrics) ObservePayout(status string) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(status).Inc()
}

// ObserveTransfer 记录转账调用耗时
func (m *LedgerMetrics) ObserveTransfer(started time.Time) {
	if m == nil {
		return
	}
	m.transferLatency.Observe(time.Since(started).Seconds())
}

// ObserveBillingEvent 记录账单事件处理结果
func (m *LedgerMetrics) ObserveBillingEvent(eventType, status string) {
	if m == nil {
		return
	}
	m.billingEvents.WithLabelValues(eventType, status).Inc()
}

// ObserveLedgerImbalance 记录一次对账不平
func (m *LedgerMetrics) ObserveLedgerImbalance() {
	if m == nil {
		return
	}
	m.ledgerImbalance.Inc()
}

// ObserveHTTP 记录 HTTP 请求
func (m *LedgerMetrics) ObserveHTTP(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpLatency.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
