package admin

import (
	"errors"

	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

type mappedHandlerError struct {
	target error
	code   int
	key    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.key, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackKey, err)
}

var affiliateManageErrorRules = []mappedHandlerError{
	{target: service.ErrAffiliateNotFound, code: response.CodeNotFound, key: "error.affiliate_not_found"},
	{target: service.ErrAffiliateStatusInvalid, code: response.CodeBadRequest, key: "error.affiliate_status_invalid"},
	{target: service.ErrAffiliateTierInvalid, code: response.CodeBadRequest, key: "error.affiliate_tier_invalid"},
	{target: service.ErrUplineInvalid, code: response.CodeBadRequest, key: "error.upline_invalid"},
	{target: service.ErrCommissionRateInvalid, code: response.CodeBadRequest, key: "error.commission_rate_invalid"},
	{target: service.ErrPayoutInProgress, code: response.CodeConflict, key: "error.payout_in_progress"},
}

var commissionErrorRules = []mappedHandlerError{
	{target: service.ErrCommissionNotFound, code: response.CodeNotFound, key: "error.commission_not_found"},
	{target: service.ErrCommissionNotPending, code: response.CodeConflict, key: "error.commission_not_pending"},
	{target: service.ErrCommissionLocked, code: response.CodeConflict, key: "error.commission_locked"},
	{target: service.ErrAffiliateNotFound, code: response.CodeNotFound, key: "error.affiliate_not_found"},
}

var payoutErrorRules = []mappedHandlerError{
	{target: service.ErrAffiliateNotFound, code: response.CodeNotFound, key: "error.affiliate_not_found"},
	{target: service.ErrAffiliateNotActive, code: response.CodeForbidden, key: "error.affiliate_not_active"},
	{target: service.ErrPayoutNotFound, code: response.CodeNotFound, key: "error.payout_not_found"},
	{target: service.ErrPayoutStatusInvalid, code: response.CodeConflict, key: "error.payout_status_invalid"},
	{target: service.ErrPayoutBelowMinimum, code: response.CodeBadRequest, key: "error.payout_below_minimum"},
	{target: service.ErrPayoutDestinationMissing, code: response.CodeBadRequest, key: "error.payout_destination_missing"},
	{target: service.ErrPayoutMethodUnsupported, code: response.CodeBadRequest, key: "error.payout_method_unsupported"},
	{target: service.ErrPayoutInProgress, code: response.CodeConflict, key: "error.payout_in_progress"},
	{target: service.ErrPayoutTransferFailed, code: response.CodeBadRequest, key: "error.payout_transfer_failed"},
	{target: service.ErrPayoutTransferPending, code: response.CodeConflict, key: "error.payout_transfer_pending"},
	{target: service.ErrPayoutProviderUnavailable, code: response.CodeUnavailable, key: "error.payout_provider_unavailable"},
}
