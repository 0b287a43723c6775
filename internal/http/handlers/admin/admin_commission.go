package admin

import (
	"strings"

	handlershared "github.com/cookinbiz/affiliate-ledger/internal/http/handlers/shared"
	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"

	"github.com/gin-gonic/gin"
)

// CommissionCancelRequest 取消佣金请求
type CommissionCancelRequest struct {
	Reason string `json:"reason"`
}

// ListCommissions 佣金流水
func (h *Handler) ListCommissions(c *gin.Context) {
	page, pageSize := handlershared.ParsePagination(c)
	from, to, ok := parseCreatedRange(c)
	if !ok {
		return
	}
	rows, total, err := h.AffiliateService.ListCommissions(c.Request.Context(), repository.CommissionListFilter{
		Page:           page,
		PageSize:       pageSize,
		AffiliateID:    strings.TrimSpace(c.Query("affiliate_id")),
		SubscriptionID: strings.TrimSpace(c.Query("subscription_id")),
		PayoutID:       strings.TrimSpace(c.Query("payout_id")),
		Status:         strings.TrimSpace(c.Query("status")),
		CommissionType: strings.TrimSpace(c.Query("commission_type")),
		CreatedFrom:    from,
		CreatedTo:      to,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.affiliate_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// CancelCommission 取消待结算佣金
func (h *Handler) CancelCommission(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req CommissionCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	commission, err := h.AffiliateService.CancelCommission(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondWithMappedError(c, err, commissionErrorRules, response.CodeInternal, "error.affiliate_save_failed")
		return
	}
	h.auditLog(c, "commission_canceled", "commission_id", commission.ID, "affiliate_id", commission.AffiliateID)
	response.Success(c, commission)
}
