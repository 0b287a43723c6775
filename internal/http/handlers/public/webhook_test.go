package public

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/service"
)

const testWebhookSecret = "whsec_handler_test"

func signedWebhookRequest(t *testing.T, secret, body string) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(ts + "." + body))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", "t="+ts+",v1="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func serveWebhook(t *testing.T, f *publicFixture, req *http.Request) (int, envelope, service.WebhookOutcome) {
	t.Helper()
	w := httptest.NewRecorder()
	f.newEngine("").ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response failed: %v body=%s", err, w.Body.String())
	}
	var outcome service.WebhookOutcome
	if env.StatusCode == response.CodeOK {
		if err := json.Unmarshal(env.Data, &outcome); err != nil {
			t.Fatalf("decode outcome failed: %v", err)
		}
	}
	return w.Code, env, outcome
}

func TestStripeWebhookNotConfigured(t *testing.T) {
	f := setupPublicHandlerTest(t, "")
	code, env, _ := serveWebhook(t, f, signedWebhookRequest(t, "whatever", `{"id":"evt_1"}`))
	if code != http.StatusServiceUnavailable || env.StatusCode != response.CodeUnavailable {
		t.Fatalf("expected 503, got http=%d code=%d", code, env.StatusCode)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := setupPublicHandlerTest(t, testWebhookSecret)
	body := `{"id":"evt_bad","type":"invoice.paid","data":{"object":{"object":"invoice","id":"in_1"}}}`

	code, env, _ := serveWebhook(t, f, signedWebhookRequest(t, "whsec_other", body))
	if code != http.StatusBadRequest || env.StatusCode != response.CodeBadRequest {
		t.Fatalf("expected 400, got http=%d code=%d", code, env.StatusCode)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	code, _, _ = serveWebhook(t, f, req)
	if code != http.StatusBadRequest {
		t.Fatalf("missing signature should be 400, got %d", code)
	}
}

func TestStripeWebhookIgnoresUnknownEvent(t *testing.T) {
	f := setupPublicHandlerTest(t, testWebhookSecret)
	body := `{"id":"evt_unknown","type":"customer.created","data":{"object":{"object":"customer","id":"cus_1"}}}`

	code, _, outcome := serveWebhook(t, f, signedWebhookRequest(t, testWebhookSecret, body))
	if code != http.StatusOK || outcome.Status != constants.BillingEventStatusIgnored {
		t.Fatalf("expected ignored, got http=%d outcome=%+v", code, outcome)
	}
}

func TestStripeWebhookRenewalCreditsReferrer(t *testing.T) {
	f := setupPublicHandlerTest(t, testWebhookSecret)
	ctx := context.Background()
	affiliate, err := f.handler.AffiliateService.Enroll(ctx, "user-referrer")
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if err := f.db.Create(&models.UserProfile{ID: "user-payer", ReferredBy: affiliate.AffiliateCode}).Error; err != nil {
		t.Fatalf("create payer failed: %v", err)
	}

	checkout := `{"id":"evt_checkout","type":"checkout.session.completed","data":{"object":{` +
		`"object":"checkout.session","id":"cs_1","mode":"subscription","subscription":"sub_hook",` +
		`"customer":"cus_hook","metadata":{"user_id":"user-payer","plan":"pro"}}}}`
	code, _, outcome := serveWebhook(t, f, signedWebhookRequest(t, testWebhookSecret, checkout))
	if code != http.StatusOK || outcome.Status != constants.BillingEventStatusProcessed {
		t.Fatalf("checkout not processed: http=%d outcome=%+v", code, outcome)
	}

	renewal := `{"id":"evt_renewal","type":"invoice.paid","data":{"object":{` +
		`"object":"invoice","id":"in_hook_2","subscription":"sub_hook","customer":"cus_hook",` +
		`"billing_reason":"subscription_cycle","currency":"usd","amount_paid":9700}}}`
	code, _, outcome = serveWebhook(t, f, signedWebhookRequest(t, testWebhookSecret, renewal))
	if code != http.StatusOK || outcome.Status != constants.BillingEventStatusProcessed {
		t.Fatalf("renewal not processed: http=%d outcome=%+v", code, outcome)
	}

	var commissions []models.AffiliateCommission
	if err := f.db.Where("affiliate_id = ?", affiliate.ID).Find(&commissions).Error; err != nil {
		t.Fatalf("load commissions failed: %v", err)
	}
	if len(commissions) != 1 || commissions[0].Amount.String() != "29.10" {
		t.Fatalf("unexpected commissions: %+v", commissions)
	}

	code, _, outcome = serveWebhook(t, f, signedWebhookRequest(t, testWebhookSecret, renewal))
	if code != http.StatusOK || !outcome.Duplicate {
		t.Fatalf("replayed event should be duplicate: http=%d outcome=%+v", code, outcome)
	}
	var count int64
	f.db.Model(&models.AffiliateCommission{}).Where("affiliate_id = ?", affiliate.ID).Count(&count)
	if count != 1 {
		t.Fatalf("replay must not add commissions, got %d", count)
	}
}
