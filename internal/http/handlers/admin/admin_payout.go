package admin

import (
	"errors"
	"strings"

	handlershared "github.com/cookinbiz/affiliate-ledger/internal/http/handlers/shared"
	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"
	"github.com/cookinbiz/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// PayoutFailRequest 人工标记打款失败
type PayoutFailRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ListPayouts 打款列表
func (h *Handler) ListPayouts(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	from, to, ok := parseCreatedRange(c)
	if !ok {
		return
	}
	rows, total, err := h.PayoutService.ListPayouts(c.Request.Context(), repository.PayoutListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: strings.TrimSpace(c.Query("affiliate_id")),
		Status:      strings.TrimSpace(c.Query("status")),
		CreatedFrom: from,
		CreatedTo:   to,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.affiliate_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// CreateAffiliatePayout 运营代推广员发起打款
func (h *Handler) CreateAffiliatePayout(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payout, err := h.PayoutService.RequestPayout(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPayoutTransferPending) && payout != nil {
			requestLog(c).Warnw("admin_payout_pending_confirmation", "payout_id", payout.ID, "error", err)
			h.auditLog(c, "payout_requested", "affiliate_id", id, "payout_id", payout.ID)
			response.Success(c, payout)
			return
		}
		respondWithMappedError(c, err, payoutErrorRules, response.CodeInternal, "error.payout_failed")
		return
	}
	h.auditLog(c, "payout_requested", "affiliate_id", id, "payout_id", payout.ID)
	response.Success(c, payout)
}

// CompletePayout 确认打款到账
func (h *Handler) CompletePayout(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payout, err := h.PayoutService.CompletePayout(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, payoutErrorRules, response.CodeInternal, "error.payout_failed")
		return
	}
	h.auditLog(c, "payout_completed", "payout_id", payout.ID)
	response.Success(c, payout)
}

// FailPayout 标记打款失败并释放佣金
func (h *Handler) FailPayout(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req PayoutFailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	payout, err := h.PayoutService.FailPayout(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondWithMappedError(c, err, payoutErrorRules, response.CodeInternal, "error.payout_failed")
		return
	}
	h.auditLog(c, "payout_failed", "payout_id", payout.ID, "reason", req.Reason)
	response.Success(c, payout)
}
