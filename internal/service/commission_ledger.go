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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 上级分成只追溯一层：VP 的上级不再获得二级分成
const maxOverrideDepth = 1

// 跳过原因
const (
	SkipReasonUnreferred        = "unreferred"
	SkipReasonAffiliateInactive = "affiliate_inactive"
	SkipReasonDuplicate         = "duplicate"
	SkipReasonIgnoredEventType  = "ignored_event_type"
)

// RecurringPaymentInput 续费入账输入
type RecurringPaymentInput struct {
	SubscriptionID string
	InvoiceID      string
	PayerUserID    string
	PlanPrice      decimal.Decimal
}

// BillingEvent 归一化后的账单事件
type BillingEvent struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type" validate:"required"`
	SubscriptionID string          `json:"subscription_id"`
	InvoiceID      string          `json:"invoice_id"`
	PayerUserID    string          `json:"payer_user_id"`
	PlanPrice      decimal.Decimal `json:"plan_price"`
	BillingReason  string          `json:"billing_reason"`
}

// RecordResult 入账结果，Commissions 为本次新写入的佣金
type RecordResult struct {
	Commissions []models.AffiliateCommission `json:"commissions"`
	SkipReason  string                       `json:"skip_reason,omitempty"`
}

// LedgerCheck 单个推广员对账结果
type LedgerCheck struct {
	AffiliateID string       `json:"affiliate_id"`
	Balance     models.Money `json:"balance"`
	PendingSum  models.Money `json:"pending_sum"`
	Difference  models.Money `json:"difference"`
	Balanced    bool         `json:"balanced"`
}

// LedgerService 佣金账本服务
type LedgerService struct {
	repo        repository.AffiliateRepository
	profileRepo repository.UserProfileRepository
	metrics     *metrics.LedgerMetrics
	now         func() time.Time
}

// NewLedgerService 创建佣金账本服务
func NewLedgerService(repo repository.AffiliateRepository, profileRepo repository.UserProfileRepository) *LedgerService {
	return &LedgerService{
		repo:        repo,
		profileRepo: profileRepo,
		metrics:     metrics.Ledger(),
		now:         time.Now,
	}
}

// HandleBillingEvent 分发账单事件，只有续费成功会入账
func (s *LedgerService) HandleBillingEvent(ctx context.Context, event BillingEvent) (*RecordResult, error) {
	if strings.TrimSpace(event.EventType) != constants.BillingEventRecurringChargeSucceeded {
		return &RecordResult{SkipReason: SkipReasonIgnoredEventType}, nil
	}
	return s.RecordRecurringPayment(ctx, RecurringPaymentInput{
		SubscriptionID: event.SubscriptionID,
		InvoiceID:      event.InvoiceID,
		PayerUserID:    event.PayerUserID,
		PlanPrice:      event.PlanPrice,
	})
}

// RecordRecurringPayment 将一次续费转换为直推佣金与上级分成
func (s *LedgerService) RecordRecurringPayment(ctx context.Context, input RecurringPaymentInput) (*RecordResult, error) {
	input.SubscriptionID = strings.TrimSpace(input.SubscriptionID)
	input.InvoiceID = strings.TrimSpace(input.InvoiceID)
	input.PayerUserID = strings.TrimSpace(input.PayerUserID)
	if input.SubscriptionID == "" || input.PayerUserID == "" {
		return nil, fmt.Errorf("%w: subscription and payer are required", ErrBillingEventInvalid)
	}
	if input.PlanPrice.IsNegative() {
		return nil, fmt.Errorf("%w: plan price %s", ErrBillingEventInvalid, input.PlanPrice.String())
	}

	code, err := s.profileRepo.WithContext(ctx).GetReferralCode(input.PayerUserID)
	if err != nil {
		return nil, err
	}
	code = normalizeAffiliateCode(code)
	if code == "" {
		s.metrics.ObserveCommission(constants.CommissionTypeDirect, metrics.CommissionOutcomeSkipped, decimal.Zero)
		return &RecordResult{SkipReason: SkipReasonUnreferred}, nil
	}

	repo := s.repo.WithContext(ctx)
	affiliate, err := repo.GetAffiliateByCode(code)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		s.metrics.ObserveCommission(constants.CommissionTypeDirect, metrics.CommissionOutcomeSkipped, decimal.Zero)
		return &RecordResult{SkipReason: SkipReasonUnreferred}, nil
	}
	if affiliate.Status != constants.AffiliateStatusActive {
		s.metrics.ObserveCommission(constants.CommissionTypeDirect, metrics.CommissionOutcomeSkipped, decimal.Zero)
		return &RecordResult{SkipReason: SkipReasonAffiliateInactive}, nil
	}

	result := &RecordResult{}
	err = repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		now := s.now()

		beneficiaryID := affiliate.ID
		kind := constants.CommissionTypeDirect
		var sourceID *string
		for depth := 0; depth <= maxOverrideDepth; depth++ {
			current, err := repoTx.GetAffiliateByIDForUpdate(beneficiaryID)
			if err != nil {
				return err
			}
			if current == nil || current.Status != constants.AffiliateStatusActive {
				break
			}
			rate := current.CommissionRate
			if depth > 0 {
				if !eligibleForOverride(current) {
					break
				}
				rate = current.OverrideRate.Decimal
			}

			commission, err := s.credit(repoTx, current, kind, rate, input, sourceID, now)
			if err != nil {
				return err
			}
			if commission == nil {
				// 直推已入账说明事件是重投，上级关系变化也不再补记分成
				break
			}
			result.Commissions = append(result.Commissions, *commission)

			if current.UplineAffiliateID == nil || strings.TrimSpace(*current.UplineAffiliateID) == "" {
				break
			}
			currentID := current.ID
			sourceID = &currentID
			beneficiaryID = *current.UplineAffiliateID
			kind = constants.CommissionTypeOverride
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			// 并发重投已写入同一幂等键
			logger.Infow("commission_duplicate_absorbed",
				"subscription_id", input.SubscriptionID,
				"invoice_id", input.InvoiceID,
				"affiliate_id", affiliate.ID,
			)
			s.metrics.ObserveCommission(constants.CommissionTypeDirect, metrics.CommissionOutcomeDuplicate, decimal.Zero)
			return &RecordResult{SkipReason: SkipReasonDuplicate}, nil
		}
		return nil, err
	}

	if len(result.Commissions) == 0 {
		result.SkipReason = SkipReasonDuplicate
	}
	for _, commission := range result.Commissions {
		logger.Infow("commission_recorded",
			"commission_id", commission.ID,
			"affiliate_id", commission.AffiliateID,
			"commission_type", commission.CommissionType,
			"subscription_id", commission.SubscriptionID,
			"invoice_id", commission.InvoiceID,
			"amount", commission.Amount.String(),
		)
		if err := cache.DelDashboard(ctx, commission.AffiliateID); err != nil {
			logger.Warnw("affiliate_dashboard_cache_invalidate_failed", "affiliate_id", commission.AffiliateID, "error", err)
		}
	}
	return result, nil
}

// credit 写入一条佣金并同步余额，调用方需已锁定推广员行
func (s *LedgerService) credit(
	repoTx repository.AffiliateRepository,
	affiliate *models.Affiliate,
	kind string,
	rate decimal.Decimal,
	input RecurringPaymentInput,
	sourceID *string,
	now time.Time,
) (*models.AffiliateCommission, error) {
	existing, err := repoTx.GetCommissionByKey(input.SubscriptionID, input.InvoiceID, affiliate.ID, kind)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.metrics.ObserveCommission(kind, metrics.CommissionOutcomeDuplicate, decimal.Zero)
		return nil, nil
	}

	amount := ComputeCommission(input.PlanPrice, rate)
	commission := &models.AffiliateCommission{
		AffiliateID:       affiliate.ID,
		SubscriptionID:    input.SubscriptionID,
		InvoiceID:         input.InvoiceID,
		CommissionType:    kind,
		ReferralUserID:    input.PayerUserID,
		SourceAffiliateID: sourceID,
		BaseAmount:        models.NewMoneyFromDecimal(input.PlanPrice),
		Rate:              rate,
		Amount:            models.NewMoneyFromDecimal(amount),
		Status:            constants.CommissionStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repoTx.CreateCommission(commission); err != nil {
		return nil, err
	}

	pending := affiliate.PendingPayoutBalance.Decimal.Add(amount).Round(2)
	total := affiliate.TotalEarnings.Decimal.Add(amount).Round(2)
	if err := repoTx.SetAffiliateBalances(affiliate.ID, models.NewMoneyFromDecimal(pending), models.NewMoneyFromDecimal(total), now); err != nil {
		return nil, err
	}
	affiliate.PendingPayoutBalance = models.NewMoneyFromDecimal(pending)
	affiliate.TotalEarnings = models.NewMoneyFromDecimal(total)

	s.metrics.ObserveCommission(kind, metrics.CommissionOutcomeRecorded, amount)
	return commission, nil
}

// CheckLedgerBalance 核对余额与待结算佣金合计
func (s *LedgerService) CheckLedgerBalance(ctx context.Context, affiliateID string) (*LedgerCheck, error) {
	repo := s.repo.WithContext(ctx)
	affiliate, err := repo.GetAffiliateByID(affiliateID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	pendingSum, err := repo.SumCommissions(affiliate.ID, []string{constants.CommissionStatusPending}, false)
	if err != nil {
		return nil, err
	}
	balance := affiliate.PendingPayoutBalance.Decimal.Round(2)
	diff := balance.Sub(pendingSum).Round(2)
	return &LedgerCheck{
		AffiliateID: affiliate.ID,
		Balance:     models.NewMoneyFromDecimal(balance),
		PendingSum:  models.NewMoneyFromDecimal(pendingSum),
		Difference:  models.NewMoneyFromDecimal(diff),
		Balanced:    diff.IsZero(),
	}, nil
}

// SweepLedger 全量对账，返回不平的推广员
func (s *LedgerService) SweepLedger(ctx context.Context) ([]LedgerCheck, error) {
	ids, err := s.repo.WithContext(ctx).ListAffiliateIDs(nil)
	if err != nil {
		return nil, err
	}
	imbalanced := make([]LedgerCheck, 0)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return imbalanced, err
		}
		check, err := s.CheckLedgerBalance(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAffiliateNotFound) {
				continue
			}
			return imbalanced, err
		}
		if check.Balanced {
			continue
		}
		s.metrics.ObserveLedgerImbalance()
		logger.Errorw("ledger_imbalance_detected",
			"affiliate_id", check.AffiliateID,
			"balance", check.Balance.String(),
			"pending_sum", check.PendingSum.String(),
			"difference", check.Difference.String(),
		)
		imbalanced = append(imbalanced, *check)
	}
	return imbalanced, nil
}

func eligibleForOverride(upline *models.Affiliate) bool {
	if upline == nil {
		return false
	}
	return upline.Tier == constants.AffiliateTierVP && upline.HasOverride()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
