package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateRepository 推广账本数据访问接口
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository
	WithContext(ctx context.Context) AffiliateRepository

	CreateAffiliate(affiliate *models.Affiliate) error
	GetAffiliateByID(id string) (*models.Affiliate, error)
	GetAffiliateByIDForUpdate(id string) (*models.Affiliate, error)
	GetAffiliateByUserID(userID string) (*models.Affiliate, error)
	GetAffiliateByCode(code string) (*models.Affiliate, error)
	ListAffiliates(filter AffiliateListFilter) ([]models.Affiliate, int64, error)
	ListAffiliateIDs(statuses []string) ([]string, error)
	CountDownline(uplineID string) (int64, error)
	UpdateAffiliateFields(id string, updates map[string]interface{}) error
	SetAffiliateBalances(id string, pending, total models.Money, now time.Time) error
	ReservePayout(affiliateID, payoutID string, now time.Time) (bool, error)
	ReleasePayout(affiliateID, payoutID string, now time.Time) error
	DeleteAffiliateCascade(id string) error

	GetCommissionByKey(subscriptionID, invoiceID, affiliateID, commissionType string) (*models.AffiliateCommission, error)
	GetCommissionByID(id string) (*models.AffiliateCommission, error)
	GetCommissionByIDForUpdate(id string) (*models.AffiliateCommission, error)
	CreateCommission(commission *models.AffiliateCommission) error
	UpdateCommissionFields(id string, updates map[string]interface{}) error
	ListCommissions(filter CommissionListFilter) ([]models.AffiliateCommission, int64, error)
	SumCommissions(affiliateID string, statuses []string, unboundOnly bool) (decimal.Decimal, error)
	SumCommissionsByPayout(payoutID string) (decimal.Decimal, error)
	BindPendingCommissions(affiliateID, payoutID string, before time.Time) (int64, error)
	UnbindCommissions(payoutID string, now time.Time) (int64, error)
	MarkCommissionsPaid(payoutID string, paidAt time.Time) (int64, error)

	CreatePayout(payout *models.AffiliatePayout) error
	GetPayoutByID(id string) (*models.AffiliatePayout, error)
	GetPayoutByIDForUpdate(id string) (*models.AffiliatePayout, error)
	TransitionPayout(id string, fromStatuses []string, updates map[string]interface{}) (bool, error)
	ListPayouts(filter PayoutListFilter) ([]models.AffiliatePayout, int64, error)
	ListStalePayouts(statuses []string, before time.Time, limit int) ([]models.AffiliatePayout, error)
	SumPayouts(affiliateID string, statuses []string) (decimal.Decimal, error)
}

// GormAffiliateRepository GORM 推广账本仓储
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广账本仓储
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// WithContext 绑定请求上下文
func (r *GormAffiliateRepository) WithContext(ctx context.Context) AffiliateRepository {
	if ctx == nil {
		return r
	}
	return &GormAffiliateRepository{db: r.db.WithContext(ctx)}
}

// Transaction 执行事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// CreateAffiliate 创建推广员
func (r *GormAffiliateRepository) CreateAffiliate(affiliate *models.Affiliate) error {
	if affiliate == nil {
		return nil
	}
	return r.db.Create(affiliate).Error
}

// GetAffiliateByID 按ID获取推广员
func (r *GormAffiliateRepository) GetAffiliateByID(id string) (*models.Affiliate, error) {
	return r.firstAffiliate(r.db, "id = ?", id)
}

// GetAffiliateByIDForUpdate 加行锁获取推广员
func (r *GormAffiliateRepository) GetAffiliateByIDForUpdate(id string) (*models.Affiliate, error) {
	return r.firstAffiliate(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

// GetAffiliateByUserID 按用户获取推广员
func (r *GormAffiliateRepository) GetAffiliateByUserID(userID string) (*models.Affiliate, error) {
	return r.firstAffiliate(r.db, "user_id = ?", userID)
}

// GetAffiliateByCode 按推广码获取推广员
func (r *GormAffiliateRepository) GetAffiliateByCode(code string) (*models.Affiliate, error) {
	return r.firstAffiliate(r.db, "affiliate_code = ?", strings.TrimSpace(code))
}

func (r *GormAffiliateRepository) firstAffiliate(query *gorm.DB, cond string, arg interface{}) (*models.Affiliate, error) {
	if s, ok := arg.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := query.Where(cond, arg).First(&affiliate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// ListAffiliates 推广员列表
func (r *GormAffiliateRepository) ListAffiliates(filter AffiliateListFilter) ([]models.Affiliate, int64, error) {
	query := r.db.Model(&models.Affiliate{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if tier := strings.TrimSpace(filter.Tier); tier != "" {
		query = query.Where("tier = ?", tier)
	}
	if uplineID := strings.TrimSpace(filter.UplineID); uplineID != "" {
		query = query.Where("upline_affiliate_id = ?", uplineID)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		like := "%" + keyword + "%"
		operator := likeOperatorByDialect(dbDialectName(r.db))
		query = query.Where("affiliate_code "+operator+" ? OR user_id "+operator+" ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Affiliate
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListAffiliateIDs 按状态列出推广员ID
func (r *GormAffiliateRepository) ListAffiliateIDs(statuses []string) ([]string, error) {
	query := r.db.Model(&models.Affiliate{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var ids []string
	if err := query.Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CountDownline 统计直属下级数量
func (r *GormAffiliateRepository) CountDownline(uplineID string) (int64, error) {
	var total int64
	err := r.db.Model(&models.Affiliate{}).Where("upline_affiliate_id = ?", uplineID).Count(&total).Error
	return total, err
}

// UpdateAffiliateFields 更新推广员字段
func (r *GormAffiliateRepository) UpdateAffiliateFields(id string, updates map[string]interface{}) error {
	if strings.TrimSpace(id) == "" || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).Where("id = ?", id).Updates(updates).Error
}

// SetAffiliateBalances 写入余额与累计收益，调用方需已持有行锁
func (r *GormAffiliateRepository) SetAffiliateBalances(id string, pending, total models.Money, now time.Time) error {
	result := r.db.Model(&models.Affiliate{}).Where("id = ?", id).Updates(map[string]interface{}{
		"pending_payout_balance": pending,
		"total_earnings":         total,
		"updated_at":             now,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ReservePayout 占用打款互斥位，已有进行中打款时返回 false
func (r *GormAffiliateRepository) ReservePayout(affiliateID, payoutID string, now time.Time) (bool, error) {
	result := r.db.Model(&models.Affiliate{}).
		Where("id = ? AND active_payout_id IS NULL", affiliateID).
		Updates(map[string]interface{}{
			"active_payout_id": payoutID,
			"updated_at":       now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleasePayout 释放打款互斥位，仅当占用者匹配时生效
func (r *GormAffiliateRepository) ReleasePayout(affiliateID, payoutID string, now time.Time) error {
	return r.db.Model(&models.Affiliate{}).
		Where("id = ? AND active_payout_id = ?", affiliateID, payoutID).
		Updates(map[string]interface{}{
			"active_payout_id": gorm.Expr("NULL"),
			"updated_at":       now,
		}).Error
}

// DeleteAffiliateCascade 删除推广员及其佣金、打款记录
func (r *GormAffiliateRepository) DeleteAffiliateCascade(id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	if err := r.db.Where("affiliate_id = ?", id).Delete(&models.AffiliateCommission{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("affiliate_id = ?", id).Delete(&models.AffiliatePayout{}).Error; err != nil {
		return err
	}
	if err := r.db.Model(&models.Affiliate{}).
		Where("upline_affiliate_id = ?", id).
		Update("upline_affiliate_id", gorm.Expr("NULL")).Error; err != nil {
		return err
	}
	return r.db.Where("id = ?", id).Delete(&models.Affiliate{}).Error
}

// GetCommissionByKey 按幂等键获取佣金
func (r *GormAffiliateRepository) GetCommissionByKey(subscriptionID, invoiceID, affiliateID, commissionType string) (*models.AffiliateCommission, error) {
	var commission models.AffiliateCommission
	err := r.db.Where(
		"subscription_id = ? AND invoice_id = ? AND affiliate_id = ? AND commission_type = ?",
		subscriptionID, invoiceID, affiliateID, commissionType,
	).First(&commission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commission, nil
}

// GetCommissionByID 按ID获取佣金
func (r *GormAffiliateRepository) GetCommissionByID(id string) (*models.AffiliateCommission, error) {
	return r.firstCommission(r.db, id)
}

// GetCommissionByIDForUpdate 加行锁获取佣金
func (r *GormAffiliateRepository) GetCommissionByIDForUpdate(id string) (*models.AffiliateCommission, error) {
	return r.firstCommission(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormAffiliateRepository) firstCommission(query *gorm.DB, id string) (*models.AffiliateCommission, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var commission models.AffiliateCommission
	if err := query.Where("id = ?", id).First(&commission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commission, nil
}

// CreateCommission 创建佣金
func (r *GormAffiliateRepository) CreateCommission(commission *models.AffiliateCommission) error {
	if commission == nil {
		return nil
	}
	return r.db.Create(commission).Error
}

// UpdateCommissionFields 更新佣金字段
func (r *GormAffiliateRepository) UpdateCommissionFields(id string, updates map[string]interface{}) error {
	if strings.TrimSpace(id) == "" || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.AffiliateCommission{}).Where("id = ?", id).Updates(updates).Error
}

// ListCommissions 佣金列表
func (r *GormAffiliateRepository) ListCommissions(filter CommissionListFilter) ([]models.AffiliateCommission, int64, error) {
	query := r.db.Model(&models.AffiliateCommission{})
	if filter.AffiliateID != "" {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if filter.SubscriptionID != "" {
		query = query.Where("subscription_id = ?", filter.SubscriptionID)
	}
	if filter.PayoutID != "" {
		query = query.Where("payout_id = ?", filter.PayoutID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if commissionType := strings.TrimSpace(filter.CommissionType); commissionType != "" {
		query = query.Where("commission_type = ?", commissionType)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.AffiliateCommission
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SumCommissions 汇总佣金金额
func (r *GormAffiliateRepository) SumCommissions(affiliateID string, statuses []string, unboundOnly bool) (decimal.Decimal, error) {
	query := r.db.Model(&models.AffiliateCommission{}).Where("affiliate_id = ?", affiliateID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if unboundOnly {
		query = query.Where("payout_id IS NULL")
	}
	return sumAmount(query)
}

// SumCommissionsByPayout 汇总某次打款绑定的佣金
func (r *GormAffiliateRepository) SumCommissionsByPayout(payoutID string) (decimal.Decimal, error) {
	return sumAmount(r.db.Model(&models.AffiliateCommission{}).Where("payout_id = ?", payoutID))
}

// BindPendingCommissions 将指定时间前的待结算佣金绑定到打款
func (r *GormAffiliateRepository) BindPendingCommissions(affiliateID, payoutID string, before time.Time) (int64, error) {
	result := r.db.Model(&models.AffiliateCommission{}).
		Where("affiliate_id = ? AND status = ? AND payout_id IS NULL AND created_at <= ?",
			affiliateID, constants.CommissionStatusPending, before).
		Updates(map[string]interface{}{
			"payout_id":  payoutID,
			"updated_at": before,
		})
	return result.RowsAffected, result.Error
}

// UnbindCommissions 解绑失败打款的佣金，恢复为可结算
func (r *GormAffiliateRepository) UnbindCommissions(payoutID string, now time.Time) (int64, error) {
	result := r.db.Model(&models.AffiliateCommission{}).
		Where("payout_id = ? AND status = ?", payoutID, constants.CommissionStatusPending).
		Updates(map[string]interface{}{
			"payout_id":  gorm.Expr("NULL"),
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// MarkCommissionsPaid 将打款绑定的佣金标记为已支付
func (r *GormAffiliateRepository) MarkCommissionsPaid(payoutID string, paidAt time.Time) (int64, error) {
	result := r.db.Model(&models.AffiliateCommission{}).
		Where("payout_id = ? AND status = ?", payoutID, constants.CommissionStatusPending).
		Updates(map[string]interface{}{
			"status":     constants.CommissionStatusPaid,
			"paid_at":    paidAt,
			"updated_at": paidAt,
		})
	return result.RowsAffected, result.Error
}

// CreatePayout 创建打款记录
func (r *GormAffiliateRepository) CreatePayout(payout *models.AffiliatePayout) error {
	if payout == nil {
		return nil
	}
	return r.db.Create(payout).Error
}

// GetPayoutByID 按ID获取打款
func (r *GormAffiliateRepository) GetPayoutByID(id string) (*models.AffiliatePayout, error) {
	return r.firstPayout(r.db, id)
}

// GetPayoutByIDForUpdate 加行锁获取打款
func (r *GormAffiliateRepository) GetPayoutByIDForUpdate(id string) (*models.AffiliatePayout, error) {
	return r.firstPayout(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormAffiliateRepository) firstPayout(query *gorm.DB, id string) (*models.AffiliatePayout, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var payout models.AffiliatePayout
	if err := query.Where("id = ?", id).First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// TransitionPayout 按状态条件更新打款，未命中返回 false
func (r *GormAffiliateRepository) TransitionPayout(id string, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	query := r.db.Model(&models.AffiliatePayout{}).Where("id = ?", id)
	if len(fromStatuses) > 0 {
		query = query.Where("status IN ?", fromStatuses)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListPayouts 打款列表
func (r *GormAffiliateRepository) ListPayouts(filter PayoutListFilter) ([]models.AffiliatePayout, int64, error) {
	query := r.db.Model(&models.AffiliatePayout{})
	if filter.AffiliateID != "" {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.AffiliatePayout
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListStalePayouts 列出长时间未推进的打款
func (r *GormAffiliateRepository) ListStalePayouts(statuses []string, before time.Time, limit int) ([]models.AffiliatePayout, error) {
	query := r.db.Model(&models.AffiliatePayout{}).
		Where("status IN ? AND updated_at <= ?", statuses, before).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.AffiliatePayout
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SumPayouts 汇总打款金额
func (r *GormAffiliateRepository) SumPayouts(affiliateID string, statuses []string) (decimal.Decimal, error) {
	query := r.db.Model(&models.AffiliatePayout{}).Where("affiliate_id = ?", affiliateID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	return sumAmount(query)
}

func sumAmount(query *gorm.DB) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	if err := query.Select("COALESCE(SUM(amount), 0) AS total").Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}
