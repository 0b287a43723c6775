package public

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/i18n"
	"github.com/cookinbiz/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

const webhookBodyMaxBytes = 1 << 20

// StripeWebhook Stripe 事件回调，失败时返回非 2xx 由平台重投
func (h *Handler) StripeWebhook(c *gin.Context) {
	log := requestLog(c)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyMaxBytes))
	if err != nil {
		log.Warnw("stripe_webhook_body_read_failed", "error", err)
		respondWebhookError(c, http.StatusBadRequest, response.CodeBadRequest, "error.bad_request")
		return
	}
	log.Infow("stripe_webhook_received",
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"stripe_signature_present", strings.TrimSpace(c.GetHeader("Stripe-Signature")) != "",
	)
	headers := make(map[string]string)
	for key, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}

	outcome, err := h.BillingService.HandleStripeWebhook(c.Request.Context(), headers, body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWebhookSignature):
			log.Warnw("stripe_webhook_signature_invalid", "error", err)
			respondWebhookError(c, http.StatusBadRequest, response.CodeBadRequest, "error.webhook_signature")
		case errors.Is(err, service.ErrBillingEventInvalid):
			log.Warnw("stripe_webhook_payload_invalid", "error", err)
			respondWebhookError(c, http.StatusBadRequest, response.CodeBadRequest, "error.bad_request")
		case errors.Is(err, service.ErrPaymentGatewayConfig):
			log.Errorw("stripe_webhook_not_configured", "error", err)
			respondWebhookError(c, http.StatusServiceUnavailable, response.CodeUnavailable, "error.payment_gateway_config")
		default:
			log.Errorw("stripe_webhook_handle_failed", "error", err)
			respondWebhookError(c, http.StatusInternalServerError, response.CodeInternal, "error.webhook_failed")
		}
		return
	}
	response.Success(c, outcome)
}

func respondWebhookError(c *gin.Context, httpStatus, code int, key string) {
	response.ErrorWithStatus(c, httpStatus, code, i18n.T(i18n.ResolveLocale(c), key))
}
