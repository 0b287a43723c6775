package admin

import (
	"strings"

	handlershared "github.com/cookinbiz/affiliate-ledger/internal/http/handlers/shared"
	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AffiliateStatusRequest 推广员状态更新请求
type AffiliateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// AffiliateTierRequest 推广员等级调整请求
type AffiliateTierRequest struct {
	Tier         string           `json:"tier" binding:"required"`
	OverrideRate *decimal.Decimal `json:"override_rate"`
}

// AffiliateUplineRequest 上级设置请求，空字符串表示解除
type AffiliateUplineRequest struct {
	UplineID string `json:"upline_id"`
}

// AffiliateCommissionRateRequest 佣金比例调整请求
type AffiliateCommissionRateRequest struct {
	CommissionRate *decimal.Decimal `json:"commission_rate" binding:"required"`
}

// ListAffiliates 推广员列表
func (h *Handler) ListAffiliates(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	rows, total, err := h.AffiliateService.ListAffiliates(c.Request.Context(), repository.AffiliateListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		Tier:     strings.TrimSpace(c.Query("tier")),
		UplineID: strings.TrimSpace(c.Query("upline_id")),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.affiliate_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// GetAffiliate 推广员详情
func (h *Handler) GetAffiliate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	affiliate, err := h.AffiliateService.GetAffiliate(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, affiliateManageErrorRules, response.CodeInternal, "error.affiliate_fetch_failed")
		return
	}
	response.Success(c, affiliate)
}

// UpdateAffiliateStatus 审核或停用推广员
func (h *Handler) UpdateAffiliateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req AffiliateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	affiliate, err := h.AffiliateService.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondWithMappedError(c, err, affiliateManageErrorRules, response.CodeInternal, "error.affiliate_save_failed")
		return
	}
	h.auditLog(c, "affiliate_status_updated", "affiliate_id", affiliate.ID, "status", affiliate.Status)
	response.Success(c, affiliate)
}

// UpdateAffiliateTier 调整推广员等级
func (h *Handler) UpdateAffiliateTier(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req AffiliateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	affiliate, err := h.AffiliateService.UpdateTier(c.Request.Context(), id, req.Tier, req.OverrideRate)
	if err != nil {
		respondWithMappedError(c, err, affiliateManageErrorRules, response.CodeInternal, "error.affiliate_save_failed")
		return
	}
	h.auditLog(c, "affiliate_tier_updated", "affiliate_id", affiliate.ID, "tier", affiliate.Tier)
	response.Success(c, affiliate)
}

// SetAffiliateUpline 设置或解除上级
func (h *Handler) SetAffiliateUpline(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req AffiliateUplineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	affiliate, err := h.AffiliateService.SetUpline(c.Request.Context(), id, strings.TrimSpace(req.UplineID))
	if err != nil {
		respondWithMappedError(c, err, affiliateManageErrorRules, response.CodeInternal, "error.affiliate_save_failed")
		return
	}
	h.auditLog(c, "affiliate_upline_updated", "affiliate_id", affiliate.ID, "upline_id", req.UplineID)
	response.Success(c, affiliate)
}

// UpdateAffiliateCommissionRate 调整个人佣金比例
func (h *Handler) UpdateAffiliateCommissionRate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req AffiliateCommissionRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.commission_rate_invalid", err)
		return
	}
	affiliate, err := h.AffiliateService.UpdateCommissionRate(c.Request.Context(), id, *req.CommissionRate)
	if err != nil {
		respondWithMappedError(c, err, affiliateManageErrorRules, response.CodeInternal, "error.affiliate_save_failed")
		return
	}
	h.auditLog(c, "affiliate_commission_rate_updated", "affiliate_id", affiliate.ID, "rate", affiliate.CommissionRate.String())
	response.Success(c, affiliate)
}

// CheckAffiliateLedger 余额与待结算佣金对账
func (h *Handler) CheckAffiliateLedger(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	check, err := h.LedgerService.CheckLedgerBalance(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, affiliateManageErrorRules, response.CodeInternal, "error.affiliate_fetch_failed")
		return
	}
	response.Success(c, check)
}

// DeleteAffiliate 删除推广员
func (h *Handler) DeleteAffiliate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.AffiliateService.DeleteAffiliate(c.Request.Context(), id); err != nil {
		respondWithMappedError(c, err, affiliateManageErrorRules, response.CodeInternal, "error.affiliate_save_failed")
		return
	}
	h.auditLog(c, "affiliate_deleted", "affiliate_id", id)
	response.Success(c, gin.H{"deleted": true})
}

func (h *Handler) auditLog(c *gin.Context, action string, kv ...interface{}) {
	operator := c.GetString(handlershared.ContextUserIDKey)
	fields := append([]interface{}{"operator_id", operator, "action", action}, kv...)
	requestLog(c).Infow("admin_operation", fields...)
}
