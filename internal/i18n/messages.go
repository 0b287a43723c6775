package i18n

var messages = map[string]map[string]string{
	LocaleEN: {
		"error.bad_request":                 "Invalid request",
		"error.unauthorized":                "Please sign in",
		"error.forbidden":                   "Permission denied",
		"error.not_found":                   "Resource not found",
		"error.too_many_requests":           "Too many requests, please retry later",
		"error.internal":                    "Internal server error",
		"error.user_id_invalid":             "Invalid user",
		"error.user_not_found":              "User not found",
		"error.affiliate_not_found":         "Affiliate not found",
		"error.affiliate_not_active":        "Affiliate account is not active",
		"error.affiliate_status_invalid":    "Invalid affiliate status",
		"error.affiliate_tier_invalid":      "Invalid affiliate tier",
		"error.affiliate_code_invalid":      "Referral code not found",
		"error.affiliate_fetch_failed":      "Failed to load affiliate data",
		"error.affiliate_save_failed":       "Failed to save affiliate",
		"error.self_referral":               "You cannot use your own referral code",
		"error.referral_already_set":        "A referral code is already applied to this account",
		"error.upline_invalid":              "Invalid upline",
		"error.commission_rate_invalid":     "Commission rate must be between 0 and 1",
		"error.commission_not_found":        "Commission not found",
		"error.commission_not_pending":      "Only pending commissions can be cancelled",
		"error.commission_locked":           "Commission is locked by a payout",
		"error.payout_not_found":            "Payout not found",
		"error.payout_below_minimum":        "Balance is below the minimum payout amount",
		"error.payout_destination_missing":  "Connect a payout account first",
		"error.payout_method_unsupported":   "Payout method is not supported",
		"error.payout_in_progress":          "A payout is already in progress",
		"error.payout_status_invalid":       "Payout status does not allow this action",
		"error.payout_transfer_failed":      "Transfer was rejected by the payment provider",
		"error.payout_transfer_pending":     "Transfer submitted, awaiting confirmation",
		"error.payout_provider_unavailable": "Payout provider is not configured",
		"error.payout_failed":               "Payout failed",
		"error.ledger_imbalance":            "Ledger check failed, payout blocked",
		"error.payment_gateway_config":      "Payment provider is not configured",
		"error.webhook_signature":           "Invalid webhook signature",
		"error.webhook_failed":              "Webhook processing failed",
		"error.settings_fetch_failed":       "Failed to load settings",
		"error.settings_save_failed":        "Failed to save settings",
		"error.settings_invalid":            "Invalid settings",
		"error.auth_header_missing":         "Authorization header is required",
		"error.auth_header_invalid":         "Authorization header must be a bearer token",
		"error.token_invalid":               "Invalid or expired token",
		"error.jwt_secret_missing":          "Token verification is not configured",
		"error.rate_limited":                "Too many requests, retry in %d seconds",
		"error.rate_limit_unavailable":      "Rate limiter unavailable, please retry later",
		"error.authz_fetch_failed":          "Failed to load permissions",
		"error.authz_save_failed":           "Failed to update permissions",
	},
	LocaleZH: {
		"error.bad_request":                 "请求参数错误",
		"error.unauthorized":                "请先登录",
		"error.forbidden":                   "无权限访问",
		"error.not_found":                   "资源不存在",
		"error.too_many_requests":           "请求过于频繁，请稍后再试",
		"error.internal":                    "服务器内部错误",
		"error.user_id_invalid":             "用户无效",
		"error.user_not_found":              "用户不存在",
		"error.affiliate_not_found":         "推广员不存在",
		"error.affiliate_not_active":        "推广账户未启用",
		"error.affiliate_status_invalid":    "推广员状态无效",
		"error.affiliate_tier_invalid":      "推广员等级无效",
		"error.affiliate_code_invalid":      "推广码不存在",
		"error.affiliate_fetch_failed":      "获取推广数据失败",
		"error.affiliate_save_failed":       "保存推广员失败",
		"error.self_referral":               "不能使用自己的推广码",
		"error.referral_already_set":        "该账户已绑定推广码",
		"error.upline_invalid":              "上级无效",
		"error.commission_rate_invalid":     "佣金比例需在 0 到 1 之间",
		"error.commission_not_found":        "佣金不存在",
		"error.commission_not_pending":      "仅待结算佣金可以取消",
		"error.commission_locked":           "佣金已被打款锁定",
		"error.payout_not_found":            "打款记录不存在",
		"error.payout_below_minimum":        "余额未达到最低提现金额",
		"error.payout_destination_missing":  "请先绑定收款账户",
		"error.payout_method_unsupported":   "不支持的打款方式",
		"error.payout_in_progress":          "已有进行中的打款",
		"error.payout_status_invalid":       "打款状态不允许该操作",
		"error.payout_transfer_failed":      "转账被支付平台拒绝",
		"error.payout_transfer_pending":     "转账已提交，等待确认",
		"error.payout_provider_unavailable": "未配置打款渠道",
		"error.payout_failed":               "打款失败",
		"error.ledger_imbalance":            "账本核对失败，已阻止打款",
		"error.payment_gateway_config":      "未配置支付平台",
		"error.webhook_signature":           "回调签名无效",
		"error.webhook_failed":              "回调处理失败",
		"error.settings_fetch_failed":       "获取设置失败",
		"error.settings_save_failed":        "保存设置失败",
		"error.settings_invalid":            "设置无效",
		"error.auth_header_missing":         "缺少认证信息",
		"error.auth_header_invalid":         "认证信息格式错误",
		"error.token_invalid":               "登录已失效，请重新登录",
		"error.jwt_secret_missing":          "未配置令牌校验",
		"error.rate_limited":                "请求过于频繁，请 %d 秒后再试",
		"error.rate_limit_unavailable":      "限流服务不可用，请稍后再试",
		"error.authz_fetch_failed":          "获取权限失败",
		"error.authz_save_failed":           "更新权限失败",
	},
}
