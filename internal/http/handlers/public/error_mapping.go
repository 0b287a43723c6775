package public

import (
	"errors"

	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
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

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var affiliateLookupErrorRules = []mappedHandlerError{
	{target: service.ErrAffiliateNotFound, code: response.CodeNotFound, key: "error.affiliate_not_found"},
	{target: service.ErrInvalidArgument, code: response.CodeBadRequest, key: "error.bad_request"},
}

var affiliateEnrollErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidArgument, code: response.CodeBadRequest, key: "error.user_id_invalid"},
	{target: service.ErrNotFound, code: response.CodeNotFound, key: "error.user_not_found"},
}

var affiliateReferralErrorRules = []mappedHandlerError{
	{target: service.ErrAffiliateCodeInvalid, code: response.CodeBadRequest, key: "error.affiliate_code_invalid"},
	{target: service.ErrSelfReferral, code: response.CodeBadRequest, key: "error.self_referral"},
	{target: service.ErrReferralAlreadySet, code: response.CodeConflict, key: "error.referral_already_set"},
	{target: service.ErrNotFound, code: response.CodeNotFound, key: "error.user_not_found"},
	{target: service.ErrInvalidArgument, code: response.CodeBadRequest, key: "error.bad_request"},
}

var payoutAccountErrorRules = concatMappedHandlerErrors(affiliateLookupErrorRules, []mappedHandlerError{
	{target: service.ErrPayoutProviderUnavailable, code: response.CodeUnavailable, key: "error.payout_provider_unavailable"},
	{target: service.ErrPaymentGatewayConfig, code: response.CodeUnavailable, key: "error.payment_gateway_config"},
})

var payoutRequestErrorRules = concatMappedHandlerErrors(affiliateLookupErrorRules, []mappedHandlerError{
	{target: service.ErrAffiliateNotActive, code: response.CodeForbidden, key: "error.affiliate_not_active"},
	{target: service.ErrPayoutBelowMinimum, code: response.CodeBadRequest, key: "error.payout_below_minimum"},
	{target: service.ErrPayoutDestinationMissing, code: response.CodeBadRequest, key: "error.payout_destination_missing"},
	{target: service.ErrPayoutMethodUnsupported, code: response.CodeBadRequest, key: "error.payout_method_unsupported"},
	{target: service.ErrPayoutInProgress, code: response.CodeConflict, key: "error.payout_in_progress"},
	{target: service.ErrPayoutTransferFailed, code: response.CodeBadRequest, key: "error.payout_transfer_failed"},
	{target: service.ErrPayoutTransferPending, code: response.CodeConflict, key: "error.payout_transfer_pending"},
	{target: service.ErrPayoutProviderUnavailable, code: response.CodeUnavailable, key: "error.payout_provider_unavailable"},
})
