package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestConfig(baseURL string) *Config {
	cfg := &Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test_abc",
		APIBaseURL:    baseURL,
	}
	cfg.Normalize()
	return cfg
}

func TestNormalizeConfigDefaults(t *testing.T) {
	cfg := &Config{SecretKey: " sk_test_123 ", ConnectCountry: " gb "}
	cfg.Normalize()
	if cfg.SecretKey != "sk_test_123" {
		t.Fatalf("unexpected secret key: %q", cfg.SecretKey)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default api base url: %s", cfg.APIBaseURL)
	}
	if cfg.WebhookToleranceSeconds != defaultWebhookToleranceS {
		t.Fatalf("unexpected tolerance: %d", cfg.WebhookToleranceSeconds)
	}
	if cfg.ConnectCountry != "GB" {
		t.Fatalf("unexpected country: %s", cfg.ConnectCountry)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
	if err := ValidateConfig(&Config{APIBaseURL: defaultAPIBaseURL}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestCreateTransferEncodesRequest(t *testing.T) {
	var gotForm url.Values
	var gotKey, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transfers" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "tr_123",
			"amount":         183000,
			"currency":       "usd",
			"destination":    "acct_1",
			"transfer_group": "payout-1",
		})
	}))
	defer server.Close()

	result, err := CreateTransfer(context.Background(), newTestConfig(server.URL), TransferInput{
		AmountMinor:    183000,
		Currency:       "USD",
		Destination:    "acct_1",
		Description:    "CookinBiz Affiliate Payout - 2026-01-15",
		TransferGroup:  "payout-1",
		IdempotencyKey: "payout-payout-1",
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}
	if result.TransferID != "tr_123" || result.AmountMinor != 183000 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if gotForm.Get("amount") != "183000" || gotForm.Get("currency") != "usd" || gotForm.Get("destination") != "acct_1" {
		t.Fatalf("unexpected form: %v", gotForm)
	}
	if gotForm.Get("transfer_group") != "payout-1" {
		t.Fatalf("unexpected transfer group: %s", gotForm.Get("transfer_group"))
	}
	if gotKey != "payout-payout-1" {
		t.Fatalf("unexpected idempotency key: %s", gotKey)
	}
	if gotAuth != "Bearer sk_test_123" {
		t.Fatalf("unexpected authorization: %s", gotAuth)
	}
}

func TestCreateTransferClassifiesFailures(t *testing.T) {
	status := http.StatusBadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"Insufficient funds in Stripe account"}}`))
	}))
	defer server.Close()
	cfg := newTestConfig(server.URL)
	input := TransferInput{AmountMinor: 100, Currency: "usd", Destination: "acct_1"}

	_, err := CreateTransfer(context.Background(), cfg, input)
	if !errors.Is(err, ErrRequestRejected) {
		t.Fatalf("expected ErrRequestRejected, got %v", err)
	}

	status = http.StatusInternalServerError
	_, err = CreateTransfer(context.Background(), cfg, input)
	if !errors.Is(err, ErrRequestFailed) || errors.Is(err, ErrRequestRejected) {
		t.Fatalf("expected ErrRequestFailed only, got %v", err)
	}

	status = http.StatusTooManyRequests
	_, err = CreateTransfer(context.Background(), cfg, input)
	if errors.Is(err, ErrRequestRejected) {
		t.Fatalf("rate limit must not be treated as rejection: %v", err)
	}
}

func TestFindTransferByGroup(t *testing.T) {
	found := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("transfer_group") != "payout-9" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		data := []interface{}{}
		if found {
			data = append(data, map[string]interface{}{"id": "tr_9", "transfer_group": "payout-9"})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
	defer server.Close()
	cfg := newTestConfig(server.URL)

	result, err := FindTransferByGroup(context.Background(), cfg, "payout-9")
	if err != nil {
		t.Fatalf("find transfer failed: %v", err)
	}
	if result == nil || result.TransferID != "tr_9" {
		t.Fatalf("unexpected result: %+v", result)
	}

	found = false
	result, err = FindTransferByGroup(context.Background(), cfg, "payout-9")
	if err != nil || result != nil {
		t.Fatalf("expected nil result, got %+v err=%v", result, err)
	}
}

func TestCreateExpressAccountAndLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.URL.Path {
		case "/v1/accounts":
			if r.PostForm.Get("type") != "express" || r.PostForm.Get("capabilities[transfers][requested]") != "true" {
				t.Errorf("unexpected account form: %v", r.PostForm)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "acct_777"})
		case "/v1/account_links":
			if r.PostForm.Get("account") != "acct_777" || r.PostForm.Get("type") != "account_onboarding" {
				t.Errorf("unexpected link form: %v", r.PostForm)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"url": "https://connect.stripe.com/setup/e/acct_777"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	cfg := newTestConfig(server.URL)

	accountID, err := CreateExpressAccount(context.Background(), cfg, "partner@example.com")
	if err != nil {
		t.Fatalf("create account failed: %v", err)
	}
	if accountID != "acct_777" {
		t.Fatalf("unexpected account id: %s", accountID)
	}
	link, err := CreateAccountLink(context.Background(), cfg, accountID, "https://app.example.com/retry", "https://app.example.com/done")
	if err != nil {
		t.Fatalf("create link failed: %v", err)
	}
	if link != "https://connect.stripe.com/setup/e/acct_777" {
		t.Fatalf("unexpected link: %s", link)
	}
}

func signedHeaders(t *testing.T, cfg *Config, body []byte, now time.Time) map[string]string {
	t.Helper()
	sig := computeSignature(cfg.WebhookSecret, now.Unix(), body)
	return map[string]string{"stripe-signature": "t=" + strconv.FormatInt(now.Unix(), 10) + ",v1=" + sig}
}

func TestVerifyAndParseWebhookInvoicePaid(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := newTestConfig(defaultAPIBaseURL)
	body, _ := json.Marshal(map[string]interface{}{
		"id":   "evt_invoice_1",
		"type": "invoice.paid",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":         "invoice",
				"id":             "in_123",
				"customer":       "cus_1",
				"subscription":   "sub_1",
				"billing_reason": "subscription_cycle",
				"amount_paid":    9700,
				"currency":       "usd",
				"lines": map[string]interface{}{
					"data": []interface{}{
						map[string]interface{}{"price": map[string]interface{}{"id": "price_pro_monthly"}},
					},
				},
			},
		},
	})

	event, err := VerifyAndParseWebhook(cfg, signedHeaders(t, cfg, body, now), body, now)
	if err != nil {
		t.Fatalf("verify webhook failed: %v", err)
	}
	if event.EventID != "evt_invoice_1" || event.EventType != "invoice.paid" {
		t.Fatalf("unexpected event identity: %+v", event)
	}
	if event.InvoiceID != "in_123" || event.SubscriptionID != "sub_1" || event.BillingReason != "subscription_cycle" {
		t.Fatalf("unexpected invoice fields: %+v", event)
	}
	if event.AmountPaid != "97.00" || event.Currency != "USD" {
		t.Fatalf("unexpected amount: %s %s", event.AmountPaid, event.Currency)
	}
	if event.PriceID != "price_pro_monthly" {
		t.Fatalf("unexpected price id: %s", event.PriceID)
	}
}

func TestVerifyAndParseWebhookSubscriptionUpdated(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := newTestConfig(defaultAPIBaseURL)
	body, _ := json.Marshal(map[string]interface{}{
		"id":   "evt_sub_1",
		"type": "customer.subscription.updated",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":               "subscription",
				"id":                   "sub_1",
				"status":               "past_due",
				"current_period_start": 1759000000,
				"current_period_end":   1761600000,
				"cancel_at_period_end": true,
				"items": map[string]interface{}{
					"data": []interface{}{
						map[string]interface{}{"price": map[string]interface{}{"id": "price_teams_monthly"}},
					},
				},
			},
		},
	})

	event, err := VerifyAndParseWebhook(cfg, signedHeaders(t, cfg, body, now), body, now)
	if err != nil {
		t.Fatalf("verify webhook failed: %v", err)
	}
	if event.SubscriptionID != "sub_1" || event.Status != "past_due" || !event.CancelAtPeriodEnd {
		t.Fatalf("unexpected subscription fields: %+v", event)
	}
	if event.PriceID != "price_teams_monthly" {
		t.Fatalf("unexpected price id: %s", event.PriceID)
	}
	if event.CurrentPeriodEnd == nil || event.CurrentPeriodEnd.Unix() != 1761600000 {
		t.Fatalf("unexpected period end: %v", event.CurrentPeriodEnd)
	}
}

func TestVerifyAndParseWebhookRejectsBadSignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := newTestConfig(defaultAPIBaseURL)
	body := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"object":"invoice"}}}`)

	headers := map[string]string{"Stripe-Signature": "t=1760000000,v1=deadbeef"}
	if _, err := VerifyAndParseWebhook(cfg, headers, body, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}

	stale := signedHeaders(t, cfg, body, now.Add(-time.Hour))
	if _, err := VerifyAndParseWebhook(cfg, stale, body, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected stale timestamp rejected, got %v", err)
	}

	if _, err := VerifyAndParseWebhook(cfg, map[string]string{}, body, now); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected missing header rejected, got %v", err)
	}
}

func TestToMinorAmount(t *testing.T) {
	minor, err := ToMinorAmount(decimal.RequireFromString("1830.00"), "USD")
	if err != nil || minor != 183000 {
		t.Fatalf("unexpected minor amount: %d err=%v", minor, err)
	}
	minor, err = ToMinorAmount(decimal.RequireFromString("500"), "JPY")
	if err != nil || minor != 500 {
		t.Fatalf("unexpected jpy amount: %d err=%v", minor, err)
	}
	if _, err := ToMinorAmount(decimal.RequireFromString("1.005"), "USD"); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected precision error, got %v", err)
	}
	if _, err := ToMinorAmount(decimal.Zero, "USD"); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected zero amount error, got %v", err)
	}
}
