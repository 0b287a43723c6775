package service

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")

	ErrAffiliateNotFound      = errors.New("affiliate not found")
	ErrAffiliateNotActive     = errors.New("affiliate not active")
	ErrAffiliateStatusInvalid = errors.New("affiliate status invalid")
	ErrAffiliateTierInvalid   = errors.New("affiliate tier invalid")
	ErrAffiliateConfigInvalid = errors.New("affiliate config invalid")
	ErrAffiliateCodeInvalid   = errors.New("affiliate code invalid")
	ErrUplineInvalid          = errors.New("upline invalid")
	ErrSelfReferral           = errors.New("self referral not allowed")
	ErrReferralAlreadySet     = errors.New("referral already attributed")
	ErrCommissionRateInvalid  = errors.New("commission rate invalid")

	// 规则引擎前置条件，违反即 panic
	ErrCommissionRateOutOfRange = errors.New("commission rate out of range")
	ErrCommissionPriceNegative  = errors.New("commission price negative")

	ErrCommissionNotFound   = errors.New("commission not found")
	ErrCommissionLocked     = errors.New("commission locked by payout")
	ErrCommissionNotPending = errors.New("commission not pending")

	ErrPayoutNotFound            = errors.New("payout not found")
	ErrPayoutBelowMinimum        = errors.New("payout below minimum")
	ErrPayoutDestinationMissing  = errors.New("payout destination missing")
	ErrPayoutMethodUnsupported   = errors.New("payout method unsupported")
	ErrPayoutInProgress          = errors.New("payout already in progress")
	ErrPayoutStatusInvalid       = errors.New("payout status invalid")
	ErrPayoutTransferFailed      = errors.New("payout transfer failed")
	ErrPayoutTransferPending     = errors.New("payout transfer pending confirmation")
	ErrPayoutProviderUnavailable = errors.New("payout provider unavailable")
	ErrLedgerImbalance           = errors.New("ledger imbalance")

	// 转账方明确拒绝，区别于网络等不确定失败
	ErrTransferRejected = errors.New("transfer rejected")

	ErrBillingEventInvalid  = errors.New("billing event invalid")
	ErrWebhookSignature     = errors.New("webhook signature invalid")
	ErrPaymentGatewayConfig = errors.New("payment gateway not configured")
)
