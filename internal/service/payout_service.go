package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/cache"
	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/cookinbiz/affiliate-ledger/internal/logger"
	"github.com/cookinbiz/affiliate-ledger/internal/metrics"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	payoutReconcileDelay     = time.Minute
	payoutStaleBatchSize     = 100
	payoutFailureReasonLimit = 500
)

// PayoutService 推广员打款服务
type PayoutService struct {
	repo           repository.AffiliateRepository
	settingService *SettingService
	transferer     FundsTransferer
	scheduler      PayoutReconcileScheduler
	metrics        *metrics.LedgerMetrics
	now            func() time.Time
}

// NewPayoutService 创建打款服务，scheduler 可为空
func NewPayoutService(
	repo repository.AffiliateRepository,
	settingService *SettingService,
	transferer FundsTransferer,
	scheduler PayoutReconcileScheduler,
) *PayoutService {
	return &PayoutService{
		repo:           repo,
		settingService: settingService,
		transferer:     transferer,
		scheduler:      scheduler,
		metrics:        metrics.Ledger(),
		now:            time.Now,
	}
}

// RequestPayout 发起打款：校验、占用余额、转账、确认
func (s *PayoutService) RequestPayout(ctx context.Context, affiliateID string) (*models.AffiliatePayout, error) {
	affiliateID = strings.TrimSpace(affiliateID)
	if affiliateID == "" {
		return nil, ErrAffiliateNotFound
	}
	setting, err := s.settingService.GetAffiliateSetting(ctx)
	if err != nil {
		return nil, err
	}

	payout, err := s.reserve(ctx, affiliateID, setting)
	if err != nil {
		return nil, err
	}
	logger.Infow("payout_reserved",
		"payout_id", payout.ID,
		"affiliate_id", payout.AffiliateID,
		"amount", payout.Amount.String(),
	)
	s.metrics.ObservePayout(constants.PayoutStatusPending)
	s.invalidateDashboard(ctx, payout.AffiliateID)

	if s.transferer == nil {
		// 无转账通道时立即失败并释放占用
		failed, failErr := s.FailPayout(ctx, payout.ID, ErrPayoutProviderUnavailable.Error())
		if failErr != nil {
			return nil, failErr
		}
		return failed, ErrPayoutProviderUnavailable
	}

	started := time.Now()
	result, transferErr := s.transferer.Transfer(ctx, TransferRequest{
		AmountCents:    payout.Amount.Cents(),
		Currency:       payout.Currency,
		DestinationID:  payout.DestinationID,
		Description:    payout.Description,
		IdempotencyKey: "payout-" + payout.ID,
		TransferGroup:  payout.ID,
	})
	s.metrics.ObserveTransfer(started)

	// 转账已发生，后续记账不受调用方取消影响
	bookCtx := context.WithoutCancel(ctx)
	if transferErr != nil {
		if errors.Is(transferErr, ErrTransferRejected) {
			failed, failErr := s.FailPayout(bookCtx, payout.ID, transferErr.Error())
			if failErr != nil {
				return nil, failErr
			}
			return failed, fmt.Errorf("%w: %v", ErrPayoutTransferFailed, transferErr)
		}
		logger.Warnw("payout_transfer_outcome_unknown",
			"payout_id", payout.ID,
			"affiliate_id", payout.AffiliateID,
			"error", transferErr,
		)
		s.scheduleReconcile(payout.ID)
		return payout, fmt.Errorf("%w: %v", ErrPayoutTransferPending, transferErr)
	}
	if result == nil || strings.TrimSpace(result.ExternalTransferID) == "" {
		s.scheduleReconcile(payout.ID)
		return payout, fmt.Errorf("%w: empty transfer id", ErrPayoutTransferPending)
	}

	processing, err := s.markProcessing(bookCtx, payout.ID, result.ExternalTransferID)
	if err != nil {
		return nil, err
	}
	if !setting.AutoCompletePayout {
		return processing, nil
	}
	return s.CompletePayout(bookCtx, payout.ID)
}

// reserve 在一个事务内完成前置校验、建单、占用与佣金绑定
func (s *PayoutService) reserve(ctx context.Context, affiliateID string, setting AffiliateSetting) (*models.AffiliatePayout, error) {
	var payout *models.AffiliatePayout
	repo := s.repo.WithContext(ctx)
	err := repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		now := s.now()

		affiliate, err := repoTx.GetAffiliateByIDForUpdate(affiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return ErrAffiliateNotFound
		}
		if affiliate.Status != constants.AffiliateStatusActive {
			return ErrAffiliateNotActive
		}
		balance := affiliate.PendingPayoutBalance.Decimal.Round(2)
		if !balance.IsPositive() || balance.LessThan(setting.MinPayoutAmount) {
			return ErrPayoutBelowMinimum
		}
		destination := strings.TrimSpace(affiliate.PayoutDestinationID)
		if destination == "" {
			return ErrPayoutDestinationMissing
		}
		method := strings.TrimSpace(affiliate.PayoutMethod)
		if method == "" {
			method = constants.PayoutMethodStripe
		}
		if method != constants.PayoutMethodStripe {
			return ErrPayoutMethodUnsupported
		}
		if affiliate.ActivePayoutID != nil && strings.TrimSpace(*affiliate.ActivePayoutID) != "" {
			return ErrPayoutInProgress
		}

		payout = &models.AffiliatePayout{
			ID:            uuid.NewString(),
			AffiliateID:   affiliate.ID,
			Amount:        models.NewMoneyFromDecimal(balance),
			Currency:      setting.Currency,
			Method:        method,
			DestinationID: destination,
			Description:   buildPayoutDescription(setting.PayoutBrand, now),
			Status:        constants.PayoutStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := repoTx.CreatePayout(payout); err != nil {
			return err
		}
		reserved, err := repoTx.ReservePayout(affiliate.ID, payout.ID, now)
		if err != nil {
			return err
		}
		if !reserved {
			return ErrPayoutInProgress
		}

		if _, err := repoTx.BindPendingCommissions(affiliate.ID, payout.ID, now); err != nil {
			return err
		}
		bound, err := repoTx.SumCommissionsByPayout(payout.ID)
		if err != nil {
			return err
		}
		if !bound.Equal(balance) {
			s.metrics.ObserveLedgerImbalance()
			logger.Errorw("payout_reserve_ledger_imbalance",
				"affiliate_id", affiliate.ID,
				"balance", balance.StringFixed(2),
				"bound_sum", bound.StringFixed(2),
			)
			return fmt.Errorf("%w: balance=%s commissions=%s", ErrLedgerImbalance, balance.StringFixed(2), bound.StringFixed(2))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// markProcessing 转账受理后记录外部单号
func (s *PayoutService) markProcessing(ctx context.Context, payoutID, externalTransferID string) (*models.AffiliatePayout, error) {
	repo := s.repo.WithContext(ctx)
	now := s.now()
	ok, err := repo.TransitionPayout(payoutID, []string{constants.PayoutStatusPending}, map[string]interface{}{
		"status":               constants.PayoutStatusProcessing,
		"external_transfer_id": externalTransferID,
		"processed_at":         now,
		"updated_at":           now,
	})
	if err != nil {
		return nil, err
	}
	payout, err := repo.GetPayoutByID(payoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}
	if !ok && payout.Status != constants.PayoutStatusProcessing && payout.Status != constants.PayoutStatusCompleted {
		return nil, ErrPayoutStatusInvalid
	}
	if ok {
		s.metrics.ObservePayout(constants.PayoutStatusProcessing)
		logger.Infow("payout_transfer_accepted",
			"payout_id", payoutID,
			"external_transfer_id", externalTransferID,
		)
	}
	return payout, nil
}

// CompletePayout 确认打款：扣减余额、佣金置为已支付、释放占用，已完成时幂等返回
func (s *PayoutService) CompletePayout(ctx context.Context, payoutID string) (*models.AffiliatePayout, error) {
	repo := s.repo.WithContext(ctx)
	current, err := repo.GetPayoutByID(payoutID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrPayoutNotFound
	}
	if current.Status == constants.PayoutStatusCompleted {
		return current, nil
	}

	alreadyDone := false
	err = repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		now := s.now()

		affiliate, err := repoTx.GetAffiliateByIDForUpdate(current.AffiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return ErrAffiliateNotFound
		}
		payout, err := repoTx.GetPayoutByIDForUpdate(payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return ErrPayoutNotFound
		}
		if payout.Status == constants.PayoutStatusCompleted {
			alreadyDone = true
			return nil
		}
		if payout.Status != constants.PayoutStatusProcessing {
			return ErrPayoutStatusInvalid
		}

		amount := payout.Amount.Decimal.Round(2)
		balance := affiliate.PendingPayoutBalance.Decimal.Round(2)
		if balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s below payout %s", ErrLedgerImbalance, balance.StringFixed(2), amount.StringFixed(2))
		}
		bound, err := repoTx.SumCommissionsByPayout(payout.ID)
		if err != nil {
			return err
		}
		if !bound.Equal(amount) {
			return fmt.Errorf("%w: payout %s commissions %s", ErrLedgerImbalance, amount.StringFixed(2), bound.StringFixed(2))
		}

		if _, err := repoTx.MarkCommissionsPaid(payout.ID, now); err != nil {
			return err
		}
		if err := repoTx.SetAffiliateBalances(
			affiliate.ID,
			models.NewMoneyFromDecimal(balance.Sub(amount)),
			affiliate.TotalEarnings,
			now,
		); err != nil {
			return err
		}
		ok, err := repoTx.TransitionPayout(payout.ID, []string{constants.PayoutStatusProcessing}, map[string]interface{}{
			"status":       constants.PayoutStatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrPayoutStatusInvalid
		}
		return repoTx.ReleasePayout(affiliate.ID, payout.ID, now)
	})
	if err != nil {
		if errors.Is(err, ErrLedgerImbalance) {
			s.metrics.ObserveLedgerImbalance()
		}
		return nil, err
	}

	completed, err := repo.GetPayoutByID(payoutID)
	if err != nil {
		return nil, err
	}
	if !alreadyDone {
		s.metrics.ObservePayout(constants.PayoutStatusCompleted)
		logger.Infow("payout_completed",
			"payout_id", payoutID,
			"affiliate_id", current.AffiliateID,
			"amount", current.Amount.String(),
		)
		s.invalidateDashboard(ctx, current.AffiliateID)
	}
	return completed, nil
}

// FailPayout 将打款置为失败：解绑佣金、释放占用，余额不变
func (s *PayoutService) FailPayout(ctx context.Context, payoutID, reason string) (*models.AffiliatePayout, error) {
	repo := s.repo.WithContext(ctx)
	current, err := repo.GetPayoutByID(payoutID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrPayoutNotFound
	}
	if current.Status == constants.PayoutStatusFailed {
		return current, nil
	}
	reason = truncateRunes(strings.TrimSpace(reason), payoutFailureReasonLimit)

	alreadyDone := false
	err = repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		now := s.now()

		if _, err := repoTx.GetAffiliateByIDForUpdate(current.AffiliateID); err != nil {
			return err
		}
		payout, err := repoTx.GetPayoutByIDForUpdate(payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return ErrPayoutNotFound
		}
		switch payout.Status {
		case constants.PayoutStatusFailed:
			alreadyDone = true
			return nil
		case constants.PayoutStatusCompleted:
			return ErrPayoutStatusInvalid
		}

		ok, err := repoTx.TransitionPayout(payout.ID, []string{
			constants.PayoutStatusPending,
			constants.PayoutStatusProcessing,
		}, map[string]interface{}{
			"status":         constants.PayoutStatusFailed,
			"failure_reason": reason,
			"failed_at":      now,
			"updated_at":     now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrPayoutStatusInvalid
		}
		if _, err := repoTx.UnbindCommissions(payout.ID, now); err != nil {
			return err
		}
		return repoTx.ReleasePayout(payout.AffiliateID, payout.ID, now)
	})
	if err != nil {
		return nil, err
	}

	failed, err := repo.GetPayoutByID(payoutID)
	if err != nil {
		return nil, err
	}
	if !alreadyDone {
		s.metrics.ObservePayout(constants.PayoutStatusFailed)
		logger.Warnw("payout_failed",
			"payout_id", payoutID,
			"affiliate_id", current.AffiliateID,
			"reason", reason,
		)
		s.invalidateDashboard(ctx, current.AffiliateID)
	}
	return failed, nil
}

// ReconcilePayout 对结果未知的打款向转账方查询并收敛状态
func (s *PayoutService) ReconcilePayout(ctx context.Context, payoutID string) (*models.AffiliatePayout, error) {
	payout, err := s.repo.WithContext(ctx).GetPayoutByID(payoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}

	switch payout.Status {
	case constants.PayoutStatusCompleted, constants.PayoutStatusFailed:
		return payout, nil
	case constants.PayoutStatusProcessing:
		return s.completeIfAuto(ctx, payout)
	}

	if s.transferer == nil {
		return payout, ErrPayoutProviderUnavailable
	}
	found, err := s.transferer.LookupTransfer(ctx, payout.ID)
	if err != nil {
		return payout, err
	}
	if found == nil || strings.TrimSpace(found.ExternalTransferID) == "" {
		return s.FailPayout(ctx, payout.ID, "transfer not found during reconcile")
	}
	processing, err := s.markProcessing(ctx, payout.ID, found.ExternalTransferID)
	if err != nil {
		return nil, err
	}
	return s.completeIfAuto(ctx, processing)
}

// ReconcileStalePayouts 收敛长时间停留在 pending/processing 的打款
func (s *PayoutService) ReconcileStalePayouts(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = 30 * time.Minute
	}
	stale, err := s.repo.WithContext(ctx).ListStalePayouts([]string{
		constants.PayoutStatusPending,
		constants.PayoutStatusProcessing,
	}, s.now().Add(-olderThan), payoutStaleBatchSize)
	if err != nil {
		return 0, err
	}
	reconciled := 0
	for _, payout := range stale {
		if err := ctx.Err(); err != nil {
			return reconciled, err
		}
		if _, err := s.ReconcilePayout(ctx, payout.ID); err != nil {
			logger.Warnw("payout_reconcile_failed", "payout_id", payout.ID, "error", err)
			continue
		}
		reconciled++
	}
	return reconciled, nil
}

func (s *PayoutService) completeIfAuto(ctx context.Context, payout *models.AffiliatePayout) (*models.AffiliatePayout, error) {
	setting, err := s.settingService.GetAffiliateSetting(ctx)
	if err != nil {
		return nil, err
	}
	if !setting.AutoCompletePayout {
		return payout, nil
	}
	return s.CompletePayout(ctx, payout.ID)
}

func (s *PayoutService) scheduleReconcile(payoutID string) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.EnqueuePayoutReconcile(payoutID, payoutReconcileDelay); err != nil {
		logger.Errorw("payout_enqueue_reconcile_failed", "payout_id", payoutID, "error", err)
	}
}

func (s *PayoutService) invalidateDashboard(ctx context.Context, affiliateID string) {
	if err := cache.DelDashboard(ctx, affiliateID); err != nil {
		logger.Warnw("affiliate_dashboard_cache_invalidate_failed", "affiliate_id", affiliateID, "error", err)
	}
}

// ListPayouts 打款列表
func (s *PayoutService) ListPayouts(ctx context.Context, filter repository.PayoutListFilter) ([]models.AffiliatePayout, int64, error) {
	return s.repo.WithContext(ctx).ListPayouts(filter)
}

// SumCompleted 已完成打款合计
func (s *PayoutService) SumCompleted(ctx context.Context, affiliateID string) (decimal.Decimal, error) {
	return s.repo.WithContext(ctx).SumPayouts(affiliateID, []string{constants.PayoutStatusCompleted})
}

func buildPayoutDescription(brand string, now time.Time) string {
	title := "Affiliate Payout"
	if brand = strings.TrimSpace(brand); brand != "" {
		title = brand + " " + title
	}
	return fmt.Sprintf("%s - %s", title, now.Format("2006-01-02"))
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
