package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/cookinbiz/affiliate-ledger/internal/logger"
	"github.com/cookinbiz/affiliate-ledger/internal/service"
)

const (
	defaultLedgerCheckInterval = 15 * time.Minute
	defaultStalePayoutAge      = 30 * time.Minute
)

// LedgerSweeper 全量对账
type LedgerSweeper interface {
	SweepLedger(ctx context.Context) ([]service.LedgerCheck, error)
}

// StalePayoutReconciler 收敛滞留打款
type StalePayoutReconciler interface {
	ReconcileStalePayouts(ctx context.Context, olderThan time.Duration) (int, error)
}

// Maintenance 周期性账本巡检，不依赖队列
type Maintenance struct {
	ledger   LedgerSweeper
	payouts  StalePayoutReconciler
	interval time.Duration
	staleAge time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMaintenance 创建巡检服务
func NewMaintenance(cfg config.AffiliateConfig, ledger LedgerSweeper, payouts StalePayoutReconciler) *Maintenance {
	interval := defaultLedgerCheckInterval
	if cfg.LedgerCheckIntervalSeconds > 0 {
		interval = time.Duration(cfg.LedgerCheckIntervalSeconds) * time.Second
	}
	staleAge := defaultStalePayoutAge
	if cfg.StalePayoutMinutes > 0 {
		staleAge = time.Duration(cfg.StalePayoutMinutes) * time.Minute
	}
	return &Maintenance{
		ledger:   ledger,
		payouts:  payouts,
		interval: interval,
		staleAge: staleAge,
	}
}

// Name 服务名称
func (m *Maintenance) Name() string {
	return "maintenance"
}

// Start 启动巡检循环，阻塞直到 Stop 或 ctx 结束
func (m *Maintenance) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("maintenance not initialized")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()
	defer close(done)
	defer cancel()

	m.RunOnce(runCtx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.C:
			m.RunOnce(runCtx)
		}
	}
}

// Stop 停止巡检
func (m *Maintenance) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// RunOnce 执行一轮巡检
func (m *Maintenance) RunOnce(ctx context.Context) {
	if m.payouts != nil {
		count, err := m.payouts.ReconcileStalePayouts(ctx, m.staleAge)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnw("maintenance_reconcile_stale_payouts_failed", "error", err)
		} else if count > 0 {
			logger.Infow("maintenance_stale_payouts_reconciled", "count", count)
		}
	}
	if m.ledger != nil {
		imbalanced, err := m.ledger.SweepLedger(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnw("maintenance_ledger_sweep_failed", "error", err)
			return
		}
		if len(imbalanced) > 0 {
			logger.Errorw("maintenance_ledger_imbalanced", "count", len(imbalanced))
		}
	}
}
