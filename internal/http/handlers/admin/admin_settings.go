package admin

import (
	"errors"

	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// GetAffiliateSetting 获取推广配置
func (h *Handler) GetAffiliateSetting(c *gin.Context) {
	setting, err := h.SettingService.GetAffiliateSetting(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "error.settings_fetch_failed", err)
		return
	}
	response.Success(c, setting)
}

// UpdateAffiliateSetting 更新推广配置，未提交的字段保持原值
func (h *Handler) UpdateAffiliateSetting(c *gin.Context) {
	ctx := c.Request.Context()
	current, err := h.SettingService.GetAffiliateSetting(ctx)
	if err != nil {
		respondError(c, response.CodeInternal, "error.settings_fetch_failed", err)
		return
	}
	if err := c.ShouldBindJSON(&current); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	updated, err := h.SettingService.UpdateAffiliateSetting(ctx, current)
	if err != nil {
		if errors.Is(err, service.ErrAffiliateConfigInvalid) {
			respondErrorWithMsg(c, response.CodeBadRequest, err.Error(), nil)
			return
		}
		respondError(c, response.CodeInternal, "error.settings_save_failed", err)
		return
	}
	h.auditLog(c, "affiliate_setting_updated",
		"min_payout_amount", updated.MinPayoutAmount.String(),
		"currency", updated.Currency,
	)
	response.Success(c, updated)
}
