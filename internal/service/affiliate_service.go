package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/cache"
	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/cookinbiz/affiliate-ledger/internal/logger"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	affiliateCodeLength     = 8
	affiliateCodeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	affiliateCodeMaxRetry   = 8
	dashboardRecentLimit    = 10
	uplineChainMaxHops      = 64
	commissionCancelMaxRune = 255
)

// AffiliateService 推广员业务服务
type AffiliateService struct {
	repo             repository.AffiliateRepository
	profileRepo      repository.UserProfileRepository
	subscriptionRepo repository.SubscriptionRepository
	settingService   *SettingService
	accounts         PayoutAccountProvider
	dashboardTTL     time.Duration
	now              func() time.Time
}

// NewAffiliateService 创建推广员服务，accounts 可为空
func NewAffiliateService(
	repo repository.AffiliateRepository,
	profileRepo repository.UserProfileRepository,
	subscriptionRepo repository.SubscriptionRepository,
	settingService *SettingService,
	accounts PayoutAccountProvider,
	dashboardTTL time.Duration,
) *AffiliateService {
	return &AffiliateService{
		repo:             repo,
		profileRepo:      profileRepo,
		subscriptionRepo: subscriptionRepo,
		settingService:   settingService,
		accounts:         accounts,
		dashboardTTL:     dashboardTTL,
		now:              time.Now,
	}
}

// AffiliateDashboard 推广员中心数据
type AffiliateDashboard struct {
	Enrolled             bool                         `json:"enrolled"`
	AffiliateID          string                       `json:"affiliate_id,omitempty"`
	AffiliateCode        string                       `json:"affiliate_code,omitempty"`
	Tier                 string                       `json:"tier,omitempty"`
	Status               string                       `json:"status,omitempty"`
	CommissionRate       decimal.Decimal              `json:"commission_rate"`
	OverrideRate         decimal.NullDecimal          `json:"override_rate"`
	PendingPayoutBalance models.Money                 `json:"pending_payout_balance"`
	TotalEarnings        models.Money                 `json:"total_earnings"`
	PaidTotal            models.Money                 `json:"paid_total"`
	MinPayoutAmount      models.Money                 `json:"min_payout_amount"`
	Currency             string                       `json:"currency"`
	PayoutConnected      bool                         `json:"payout_connected"`
	PayoutInProgress     bool                         `json:"payout_in_progress"`
	CanRequestPayout     bool                         `json:"can_request_payout"`
	LifetimeReferrals    int64                        `json:"lifetime_referrals"`
	ActiveReferrals      int64                        `json:"active_referrals"`
	DownlineCount        int64                        `json:"downline_count"`
	RecentCommissions    []models.AffiliateCommission `json:"recent_commissions"`
	RecentPayouts        []models.AffiliatePayout     `json:"recent_payouts"`
}

// Enroll 为用户开通推广员，已开通时直接返回
func (s *AffiliateService) Enroll(ctx context.Context, userID string) (*models.Affiliate, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	repo := s.repo.WithContext(ctx)
	existing, err := repo.GetAffiliateByUserID(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	setting, err := s.settingService.GetAffiliateSetting(ctx)
	if err != nil {
		return nil, err
	}
	status := constants.AffiliateStatusPending
	if setting.AutoApprove {
		status = constants.AffiliateStatusActive
	}

	for i := 0; i < affiliateCodeMaxRetry; i++ {
		code, genErr := generateAffiliateCode()
		if genErr != nil {
			return nil, genErr
		}
		now := s.now()
		affiliate := &models.Affiliate{
			UserID:         userID,
			AffiliateCode:  code,
			Tier:           constants.AffiliateTierStandard,
			CommissionRate: setting.DefaultCommissionRate,
			PayoutMethod:   constants.PayoutMethodStripe,
			Status:         status,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := repo.CreateAffiliate(affiliate); err != nil {
			if !isUniqueViolation(err) {
				return nil, err
			}
			// 同一用户并发开通
			if again, getErr := repo.GetAffiliateByUserID(userID); getErr == nil && again != nil {
				return again, nil
			}
			continue
		}
		logger.Infow("affiliate_enrolled",
			"affiliate_id", affiliate.ID,
			"user_id", userID,
			"affiliate_code", code,
			"status", status,
		)
		return affiliate, nil
	}
	return nil, ErrAffiliateCodeInvalid
}

// AttributeReferral 记录用户的推荐来源，只能设置一次
func (s *AffiliateService) AttributeReferral(ctx context.Context, userID, rawCode string) (*models.Affiliate, error) {
	userID = strings.TrimSpace(userID)
	code := normalizeAffiliateCode(rawCode)
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if code == "" {
		return nil, ErrAffiliateCodeInvalid
	}
	affiliate, err := s.repo.WithContext(ctx).GetAffiliateByCode(code)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateCodeInvalid
	}
	if affiliate.UserID == userID {
		return nil, ErrSelfReferral
	}

	profiles := s.profileRepo.WithContext(ctx)
	profile, err := profiles.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	if strings.TrimSpace(profile.ReferredBy) != "" {
		return nil, ErrReferralAlreadySet
	}
	ok, err := profiles.SetReferredByIfEmpty(userID, code, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReferralAlreadySet
	}
	logger.Infow("referral_attributed", "user_id", userID, "affiliate_id", affiliate.ID, "affiliate_code", code)
	s.invalidateDashboard(ctx, affiliate.ID)
	return affiliate, nil
}

// ConnectPayoutAccount 开通收款账户并返回入驻链接
func (s *AffiliateService) ConnectPayoutAccount(ctx context.Context, userID, returnURL, refreshURL string) (string, error) {
	if s.accounts == nil {
		return "", ErrPayoutProviderUnavailable
	}
	returnURL = strings.TrimSpace(returnURL)
	refreshURL = strings.TrimSpace(refreshURL)
	if returnURL == "" || refreshURL == "" {
		return "", ErrInvalidArgument
	}
	affiliate, err := s.affiliateOfUser(ctx, userID)
	if err != nil {
		return "", err
	}

	accountID := strings.TrimSpace(affiliate.PayoutDestinationID)
	if accountID == "" {
		email := ""
		profile, err := s.profileRepo.WithContext(ctx).GetByID(affiliate.UserID)
		if err != nil {
			return "", err
		}
		if profile != nil {
			email = strings.TrimSpace(profile.Email)
		}
		accountID, err = s.accounts.CreatePayoutAccount(ctx, email)
		if err != nil {
			return "", err
		}
		if err := s.repo.WithContext(ctx).UpdateAffiliateFields(affiliate.ID, map[string]interface{}{
			"payout_destination_id": accountID,
			"payout_method":         constants.PayoutMethodStripe,
			"updated_at":            s.now(),
		}); err != nil {
			return "", err
		}
		logger.Infow("affiliate_payout_account_created", "affiliate_id", affiliate.ID, "account_id", accountID)
		s.invalidateDashboard(ctx, affiliate.ID)
	}
	return s.accounts.CreateOnboardingLink(ctx, accountID, returnURL, refreshURL)
}

// GetDashboard 推广员中心数据，未开通时 Enrolled=false
func (s *AffiliateService) GetDashboard(ctx context.Context, userID string) (*AffiliateDashboard, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	repo := s.repo.WithContext(ctx)
	affiliate, err := repo.GetAffiliateByUserID(userID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return &AffiliateDashboard{
			RecentCommissions: []models.AffiliateCommission{},
			RecentPayouts:     []models.AffiliatePayout{},
		}, nil
	}

	var cached AffiliateDashboard
	if hit, err := cache.GetDashboard(ctx, affiliate.ID, &cached); err == nil && hit {
		return &cached, nil
	} else if err != nil {
		logger.Warnw("affiliate_dashboard_cache_read_failed", "affiliate_id", affiliate.ID, "error", err)
	}

	dashboard, err := s.buildDashboard(ctx, affiliate)
	if err != nil {
		return nil, err
	}
	if err := cache.SetDashboard(ctx, affiliate.ID, dashboard, s.dashboardTTL); err != nil {
		logger.Warnw("affiliate_dashboard_cache_write_failed", "affiliate_id", affiliate.ID, "error", err)
	}
	return dashboard, nil
}

func (s *AffiliateService) buildDashboard(ctx context.Context, affiliate *models.Affiliate) (*AffiliateDashboard, error) {
	repo := s.repo.WithContext(ctx)
	setting, err := s.settingService.GetAffiliateSetting(ctx)
	if err != nil {
		return nil, err
	}
	paid, err := repo.SumPayouts(affiliate.ID, []string{constants.PayoutStatusCompleted})
	if err != nil {
		return nil, err
	}
	downline, err := repo.CountDownline(affiliate.ID)
	if err != nil {
		return nil, err
	}
	referredIDs, err := s.profileRepo.WithContext(ctx).ListReferredUserIDs(affiliate.AffiliateCode)
	if err != nil {
		return nil, err
	}
	activeReferrals, err := s.subscriptionRepo.WithContext(ctx).CountActiveByUserIDs(referredIDs)
	if err != nil {
		return nil, err
	}
	commissions, _, err := repo.ListCommissions(repository.CommissionListFilter{
		Page:        1,
		PageSize:    dashboardRecentLimit,
		AffiliateID: affiliate.ID,
	})
	if err != nil {
		return nil, err
	}
	payouts, _, err := repo.ListPayouts(repository.PayoutListFilter{
		Page:        1,
		PageSize:    dashboardRecentLimit,
		AffiliateID: affiliate.ID,
	})
	if err != nil {
		return nil, err
	}

	balance := affiliate.PendingPayoutBalance
	connected := strings.TrimSpace(affiliate.PayoutDestinationID) != ""
	inProgress := affiliate.ActivePayoutID != nil && strings.TrimSpace(*affiliate.ActivePayoutID) != ""
	return &AffiliateDashboard{
		Enrolled:             true,
		AffiliateID:          affiliate.ID,
		AffiliateCode:        affiliate.AffiliateCode,
		Tier:                 affiliate.Tier,
		Status:               affiliate.Status,
		CommissionRate:       affiliate.CommissionRate,
		OverrideRate:         affiliate.OverrideRate,
		PendingPayoutBalance: balance,
		TotalEarnings:        affiliate.TotalEarnings,
		PaidTotal:            models.NewMoneyFromDecimal(paid),
		MinPayoutAmount:      models.NewMoneyFromDecimal(setting.MinPayoutAmount),
		Currency:             setting.Currency,
		PayoutConnected:      connected,
		PayoutInProgress:     inProgress,
		CanRequestPayout: affiliate.Status == constants.AffiliateStatusActive &&
			connected && !inProgress &&
			balance.Decimal.IsPositive() &&
			!balance.Decimal.LessThan(setting.MinPayoutAmount),
		LifetimeReferrals: int64(len(referredIDs)),
		ActiveReferrals:   activeReferrals,
		DownlineCount:     downline,
		RecentCommissions: commissions,
		RecentPayouts:     payouts,
	}, nil
}

// GetAffiliateByUserID 按用户获取推广员
func (s *AffiliateService) GetAffiliateByUserID(ctx context.Context, userID string) (*models.Affiliate, error) {
	return s.affiliateOfUser(ctx, userID)
}

// ListUserCommissions 查询推广员自己的佣金
func (s *AffiliateService) ListUserCommissions(ctx context.Context, userID string, page, pageSize int, status string) ([]models.AffiliateCommission, int64, error) {
	affiliate, err := s.affiliateOfUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.WithContext(ctx).ListCommissions(repository.CommissionListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: affiliate.ID,
		Status:      strings.TrimSpace(status),
	})
}

// ListUserPayouts 查询推广员自己的打款
func (s *AffiliateService) ListUserPayouts(ctx context.Context, userID string, page, pageSize int, status string) ([]models.AffiliatePayout, int64, error) {
	affiliate, err := s.affiliateOfUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.WithContext(ctx).ListPayouts(repository.PayoutListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: affiliate.ID,
		Status:      strings.TrimSpace(status),
	})
}

// GetAffiliate 管理端获取推广员
func (s *AffiliateService) GetAffiliate(ctx context.Context, id string) (*models.Affiliate, error) {
	affiliate, err := s.repo.WithContext(ctx).GetAffiliateByID(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	return affiliate, nil
}

// ListAffiliates 管理端推广员列表
func (s *AffiliateService) ListAffiliates(ctx context.Context, filter repository.AffiliateListFilter) ([]models.Affiliate, int64, error) {
	return s.repo.WithContext(ctx).ListAffiliates(filter)
}

// ListCommissions 管理端佣金列表
func (s *AffiliateService) ListCommissions(ctx context.Context, filter repository.CommissionListFilter) ([]models.AffiliateCommission, int64, error) {
	return s.repo.WithContext(ctx).ListCommissions(filter)
}

// UpdateStatus 审核通过或停用推广员
func (s *AffiliateService) UpdateStatus(ctx context.Context, id, rawStatus string) (*models.Affiliate, error) {
	status := strings.TrimSpace(rawStatus)
	switch status {
	case constants.AffiliateStatusActive, constants.AffiliateStatusSuspended, constants.AffiliateStatusPending:
	default:
		return nil, ErrAffiliateStatusInvalid
	}
	affiliate, err := s.GetAffiliate(ctx, id)
	if err != nil {
		return nil, err
	}
	if affiliate.Status == status {
		return affiliate, nil
	}
	if err := s.repo.WithContext(ctx).UpdateAffiliateFields(affiliate.ID, map[string]interface{}{
		"status":     status,
		"updated_at": s.now(),
	}); err != nil {
		return nil, err
	}
	logger.Infow("affiliate_status_updated", "affiliate_id", affiliate.ID, "from", affiliate.Status, "to", status)
	s.invalidateDashboard(ctx, affiliate.ID)
	return s.GetAffiliate(ctx, affiliate.ID)
}

// UpdateTier 调整等级，升级为 VP 时未指定分成比例则取默认值，降级清空分成比例
func (s *AffiliateService) UpdateTier(ctx context.Context, id, rawTier string, overrideRate *decimal.Decimal) (*models.Affiliate, error) {
	tier := strings.TrimSpace(rawTier)
	updates := map[string]interface{}{"tier": tier, "updated_at": s.now()}
	switch tier {
	case constants.AffiliateTierVP:
		rate := decimal.Zero
		if overrideRate != nil {
			rate = *overrideRate
		} else {
			setting, err := s.settingService.GetAffiliateSetting(ctx)
			if err != nil {
				return nil, err
			}
			rate = setting.DefaultOverrideRate
		}
		if err := ValidateCommissionRate(rate); err != nil {
			return nil, err
		}
		updates["override_rate"] = decimal.NewNullDecimal(rate)
	case constants.AffiliateTierStandard:
		updates["override_rate"] = gorm.Expr("NULL")
	default:
		return nil, ErrAffiliateTierInvalid
	}

	affiliate, err := s.GetAffiliate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithContext(ctx).UpdateAffiliateFields(affiliate.ID, updates); err != nil {
		return nil, err
	}
	logger.Infow("affiliate_tier_updated", "affiliate_id", affiliate.ID, "from", affiliate.Tier, "to", tier)
	s.invalidateDashboard(ctx, affiliate.ID)
	return s.GetAffiliate(ctx, affiliate.ID)
}

// SetUpline 指定上级 VP，uplineID 为空表示解除
func (s *AffiliateService) SetUpline(ctx context.Context, id, uplineID string) (*models.Affiliate, error) {
	affiliate, err := s.GetAffiliate(ctx, id)
	if err != nil {
		return nil, err
	}
	uplineID = strings.TrimSpace(uplineID)
	repo := s.repo.WithContext(ctx)
	updates := map[string]interface{}{"updated_at": s.now()}
	if uplineID == "" {
		updates["upline_affiliate_id"] = gorm.Expr("NULL")
	} else {
		if uplineID == affiliate.ID {
			return nil, ErrUplineInvalid
		}
		upline, err := repo.GetAffiliateByID(uplineID)
		if err != nil {
			return nil, err
		}
		if upline == nil || upline.Tier != constants.AffiliateTierVP {
			return nil, ErrUplineInvalid
		}
		if err := s.ensureNoUplineCycle(ctx, affiliate.ID, upline); err != nil {
			return nil, err
		}
		updates["upline_affiliate_id"] = upline.ID
	}
	if err := repo.UpdateAffiliateFields(affiliate.ID, updates); err != nil {
		return nil, err
	}
	logger.Infow("affiliate_upline_updated", "affiliate_id", affiliate.ID, "upline_affiliate_id", uplineID)
	return s.GetAffiliate(ctx, affiliate.ID)
}

// ensureNoUplineCycle 沿上级链检查不会回到自身
func (s *AffiliateService) ensureNoUplineCycle(ctx context.Context, affiliateID string, upline *models.Affiliate) error {
	repo := s.repo.WithContext(ctx)
	current := upline
	for hops := 0; current != nil; hops++ {
		if hops >= uplineChainMaxHops {
			return ErrUplineInvalid
		}
		if current.ID == affiliateID {
			return ErrUplineInvalid
		}
		if current.UplineAffiliateID == nil || strings.TrimSpace(*current.UplineAffiliateID) == "" {
			return nil
		}
		next, err := repo.GetAffiliateByID(*current.UplineAffiliateID)
		if err != nil {
			return err
		}
		current = next
	}
	return nil
}

// UpdateCommissionRate 调整直推佣金比例，只影响之后的入账
func (s *AffiliateService) UpdateCommissionRate(ctx context.Context, id string, rate decimal.Decimal) (*models.Affiliate, error) {
	if err := ValidateCommissionRate(rate); err != nil {
		return nil, err
	}
	affiliate, err := s.GetAffiliate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithContext(ctx).UpdateAffiliateFields(affiliate.ID, map[string]interface{}{
		"commission_rate": rate,
		"updated_at":      s.now(),
	}); err != nil {
		return nil, err
	}
	logger.Infow("affiliate_commission_rate_updated",
		"affiliate_id", affiliate.ID,
		"from", affiliate.CommissionRate.String(),
		"to", rate.String(),
	)
	s.invalidateDashboard(ctx, affiliate.ID)
	return s.GetAffiliate(ctx, affiliate.ID)
}

// CancelCommission 取消一条待结算佣金并扣回余额，已绑定打款的佣金不可取消
func (s *AffiliateService) CancelCommission(ctx context.Context, commissionID, reason string) (*models.AffiliateCommission, error) {
	commissionID = strings.TrimSpace(commissionID)
	repo := s.repo.WithContext(ctx)
	current, err := repo.GetCommissionByID(commissionID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrCommissionNotFound
	}
	reason = truncateRunes(strings.TrimSpace(reason), commissionCancelMaxRune)

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
		commission, err := repoTx.GetCommissionByIDForUpdate(commissionID)
		if err != nil {
			return err
		}
		if commission == nil {
			return ErrCommissionNotFound
		}
		if commission.Status != constants.CommissionStatusPending {
			return ErrCommissionNotPending
		}
		if commission.PayoutID != nil && strings.TrimSpace(*commission.PayoutID) != "" {
			return ErrCommissionLocked
		}

		amount := commission.Amount.Decimal.Round(2)
		balance := affiliate.PendingPayoutBalance.Decimal.Round(2)
		if balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s below commission %s", ErrLedgerImbalance, balance.StringFixed(2), amount.StringFixed(2))
		}
		if err := repoTx.UpdateCommissionFields(commission.ID, map[string]interface{}{
			"status":        constants.CommissionStatusCanceled,
			"canceled_at":   now,
			"cancel_reason": reason,
			"updated_at":    now,
		}); err != nil {
			return err
		}
		return repoTx.SetAffiliateBalances(
			affiliate.ID,
			models.NewMoneyFromDecimal(balance.Sub(amount)),
			affiliate.TotalEarnings,
			now,
		)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("commission_canceled",
		"commission_id", current.ID,
		"affiliate_id", current.AffiliateID,
		"amount", current.Amount.String(),
		"reason", reason,
	)
	s.invalidateDashboard(ctx, current.AffiliateID)
	return repo.GetCommissionByID(commissionID)
}

// DeleteAffiliate 删除推广员及其佣金与打款，打款进行中时拒绝
func (s *AffiliateService) DeleteAffiliate(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	repo := s.repo.WithContext(ctx)
	err := repo.Transaction(func(tx *gorm.DB) error {
		repoTx := s.repo.WithTx(tx)
		affiliate, err := repoTx.GetAffiliateByIDForUpdate(id)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return ErrAffiliateNotFound
		}
		if affiliate.ActivePayoutID != nil && strings.TrimSpace(*affiliate.ActivePayoutID) != "" {
			return ErrPayoutInProgress
		}
		return repoTx.DeleteAffiliateCascade(affiliate.ID)
	})
	if err != nil {
		return err
	}
	logger.Infow("affiliate_deleted", "affiliate_id", id)
	s.invalidateDashboard(ctx, id)
	return nil
}

func (s *AffiliateService) affiliateOfUser(ctx context.Context, userID string) (*models.Affiliate, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrAffiliateNotFound
	}
	affiliate, err := s.repo.WithContext(ctx).GetAffiliateByUserID(userID)
	if err != nil {
		return nil, err
	}
	if affiliate == nil {
		return nil, ErrAffiliateNotFound
	}
	return affiliate, nil
}

func (s *AffiliateService) invalidateDashboard(ctx context.Context, affiliateID string) {
	if err := cache.DelDashboard(ctx, affiliateID); err != nil {
		logger.Warnw("affiliate_dashboard_cache_invalidate_failed", "affiliate_id", affiliateID, "error", err)
	}
}

func normalizeAffiliateCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func generateAffiliateCode() (string, error) {
	var builder strings.Builder
	builder.Grow(affiliateCodeLength)
	max := big.NewInt(int64(len(affiliateCodeAlphabet)))
	for i := 0; i < affiliateCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(affiliateCodeAlphabet[n.Int64()])
	}
	return builder.String(), nil
}
