package public

import (
	"errors"
	"strings"

	handlershared "github.com/cookinbiz/affiliate-ledger/internal/http/handlers/shared"
	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// AffiliateReferralRequest 绑定推荐码请求
type AffiliateReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

// AffiliateConnectRequest 收款账户入驻请求
type AffiliateConnectRequest struct {
	ReturnURL  string `json:"return_url" binding:"required,url"`
	RefreshURL string `json:"refresh_url" binding:"required,url"`
}

// EnrollAffiliate 开通推广员
func (h *Handler) EnrollAffiliate(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	affiliate, err := h.AffiliateService.Enroll(c.Request.Context(), uid)
	if err != nil {
		respondWithMappedError(c, err, affiliateEnrollErrorRules, response.CodeInternal, "error.affiliate_save_failed")
		return
	}
	response.Success(c, affiliate)
}

// AttributeReferral 绑定推荐来源
func (h *Handler) AttributeReferral(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req AffiliateReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	affiliate, err := h.AffiliateService.AttributeReferral(c.Request.Context(), uid, req.Code)
	if err != nil {
		respondWithMappedError(c, err, affiliateReferralErrorRules, response.CodeInternal, "error.affiliate_save_failed")
		return
	}
	response.Success(c, gin.H{
		"affiliate_code": affiliate.AffiliateCode,
		"attributed":     true,
	})
}

// GetAffiliateDashboard 推广员中心
func (h *Handler) GetAffiliateDashboard(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	data, err := h.AffiliateService.GetDashboard(c.Request.Context(), uid)
	if err != nil {
		respondWithMappedError(c, err, affiliateLookupErrorRules, response.CodeInternal, "error.affiliate_fetch_failed")
		return
	}
	response.Success(c, data)
}

// ListAffiliateCommissions 我的佣金
func (h *Handler) ListAffiliateCommissions(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	status := strings.TrimSpace(c.Query("status"))

	rows, total, err := h.AffiliateService.ListUserCommissions(c.Request.Context(), uid, page, pageSize, status)
	if err != nil {
		respondWithMappedError(c, err, affiliateLookupErrorRules, response.CodeInternal, "error.affiliate_fetch_failed")
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// ListAffiliatePayouts 我的打款记录
func (h *Handler) ListAffiliatePayouts(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, pageSize := handlershared.ParsePagination(c)
	status := strings.TrimSpace(c.Query("status"))

	rows, total, err := h.AffiliateService.ListUserPayouts(c.Request.Context(), uid, page, pageSize, status)
	if err != nil {
		respondWithMappedError(c, err, affiliateLookupErrorRules, response.CodeInternal, "error.affiliate_fetch_failed")
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// RequestAffiliatePayout 推广员申请打款
func (h *Handler) RequestAffiliatePayout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	affiliate, err := h.AffiliateService.GetAffiliateByUserID(ctx, uid)
	if err != nil {
		respondWithMappedError(c, err, affiliateLookupErrorRules, response.CodeInternal, "error.affiliate_fetch_failed")
		return
	}
	payout, err := h.PayoutService.RequestPayout(ctx, affiliate.ID)
	if err != nil {
		// 转账结果未知时打款单仍在处理中，由对账任务推进
		if errors.Is(err, service.ErrPayoutTransferPending) && payout != nil {
			requestLog(c).Warnw("affiliate_payout_pending_confirmation", "payout_id", payout.ID, "error", err)
			response.Success(c, payout)
			return
		}
		respondWithMappedError(c, err, payoutRequestErrorRules, response.CodeInternal, "error.payout_failed")
		return
	}
	response.Success(c, payout)
}

// ConnectPayoutAccount 开通收款账户并返回入驻链接
func (h *Handler) ConnectPayoutAccount(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req AffiliateConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	link, err := h.AffiliateService.ConnectPayoutAccount(c.Request.Context(), uid, req.ReturnURL, req.RefreshURL)
	if err != nil {
		respondWithMappedError(c, err, payoutAccountErrorRules, response.CodeInternal, "error.affiliate_save_failed")
		return
	}
	response.Success(c, gin.H{"onboarding_url": link})
}
