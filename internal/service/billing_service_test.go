package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/payment/stripe"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

type fakeSubscriptionLookup struct {
	calls  int
	result *stripe.SubscriptionResult
	err    error
}

func (f *fakeSubscriptionLookup) RetrieveSubscription(_ context.Context, subscriptionID string) (*stripe.SubscriptionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &stripe.SubscriptionResult{SubscriptionID: subscriptionID, Status: "active"}, nil
}

type fakeBillingEnqueuer struct {
	events []BillingEvent
}

func (f *fakeBillingEnqueuer) EnqueueBillingEvent(event BillingEvent) error {
	f.events = append(f.events, event)
	return nil
}

type billingTestEnv struct {
	*ledgerTestEnv
	lookup  *fakeSubscriptionLookup
	service *BillingService
	now     time.Time
}

func setupBillingTest(t *testing.T, enqueuer BillingEventEnqueuer) *billingTestEnv {
	t.Helper()
	env := setupLedgerTest(t)
	now := time.Unix(1760000000, 0)
	lookup := &fakeSubscriptionLookup{}
	plans := NewPlanCatalog(config.BillingConfig{
		Plans:      map[string]string{"starter": "49", "pro": "97", "teams": "197"},
		PricePlans: map[string]string{"price_pro_monthly": "pro", "price_teams_monthly": "teams"},
	})
	svc := NewBillingService(
		&stripe.Config{WebhookSecret: testWebhookSecret, WebhookToleranceSeconds: 300},
		lookup,
		repository.NewSubscriptionRepository(env.db),
		repository.NewBillingEventRepository(env.db),
		env.ledger,
		plans,
		enqueuer,
	)
	svc.now = func() time.Time { return now }
	return &billingTestEnv{ledgerTestEnv: env, lookup: lookup, service: svc, now: now}
}

func (env *billingTestEnv) deliver(t *testing.T, eventID, eventType string, object map[string]interface{}) (*WebhookOutcome, error) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": eventType,
		"data": map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	ts := strconv.FormatInt(env.now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	_, _ = mac.Write([]byte(ts + "." + string(body)))
	headers := map[string]string{"Stripe-Signature": "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))}
	return env.service.HandleStripeWebhook(context.Background(), headers, body)
}

func (env *billingTestEnv) seedSubscription(t *testing.T, userID, stripeID, plan string) {
	t.Helper()
	require.NoError(t, env.db.Create(&models.Subscription{
		UserID:               userID,
		StripeSubscriptionID: stripeID,
		Plan:                 plan,
		Status:               constants.SubscriptionStatusActive,
	}).Error)
}

func (env *billingTestEnv) subscription(t *testing.T, stripeID string) *models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, env.db.Where("stripe_subscription_id = ?", stripeID).First(&sub).Error)
	return &sub
}

func renewalInvoice(invoiceID, subscriptionID, reason string) map[string]interface{} {
	return map[string]interface{}{
		"object":         "invoice",
		"id":             invoiceID,
		"subscription":   subscriptionID,
		"billing_reason": reason,
		"amount_paid":    9700,
		"currency":       "usd",
	}
}

func TestHandleStripeWebhookRecordsRenewalCommission(t *testing.T) {
	env := setupBillingTest(t, nil)
	a := env.createAffiliate(t, affiliateFixture{UserID: "user-a", Code: "AFFBIL01"})
	env.createPayer(t, "payer-1", a.AffiliateCode)
	env.seedSubscription(t, "payer-1", "sub_1", "pro")

	outcome, err := env.deliver(t, "evt_1", "invoice.paid", renewalInvoice("in_1", "sub_1", constants.BillingReasonSubscriptionCycle))
	require.NoError(t, err)
	assert.Equal(t, constants.BillingEventStatusProcessed, outcome.Status)
	assert.False(t, outcome.Duplicate)

	rows := env.commissionsOf(t, a.ID)
	require.Len(t, rows, 1)
	assertMoney(t, "29.10", rows[0].Amount)
	assert.Equal(t, "sub_1", rows[0].SubscriptionID)
	assertMoney(t, "29.10", env.reloadAffiliate(t, a.ID).PendingPayoutBalance)

	var record models.BillingWebhookEvent
	require.NoError(t, env.db.Where("event_id = ?", "evt_1").First(&record).Error)
	assert.Equal(t, constants.BillingEventStatusProcessed, record.Status)
	require.NotNil(t, record.ProcessedAt)
}

func TestHandleStripeWebhookDeduplicatesEvents(t *testing.T) {
	env := setupBillingTest(t, nil)
	a := env.createAffiliate(t, affiliateFixture{UserID: "user-a", Code: "AFFBIL02"})
	env.createPayer(t, "payer-2", a.AffiliateCode)
	env.seedSubscription(t, "payer-2", "sub_2", "pro")
	invoice := renewalInvoice("in_2", "sub_2", constants.BillingReasonSubscriptionCycle)

	_, err := env.deliver(t, "evt_dup", "invoice.paid", invoice)
	require.NoError(t, err)
	outcome, err := env.deliver(t, "evt_dup", "invoice.paid", invoice)
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate)

	// 同一张账单的另一个事件号由入账层幂等兜底
	_, err = env.deliver(t, "evt_dup_alias", "invoice.payment_succeeded", invoice)
	require.NoError(t, err)

	assert.Len(t, env.commissionsOf(t, a.ID), 1)
	assertMoney(t, "29.10", env.reloadAffiliate(t, a.ID).PendingPayoutBalance)
	env.assertLedgerBalanced(t, a.ID)
}

func TestHandleStripeWebhookIgnoresInitialInvoice(t *testing.T) {
	env := setupBillingTest(t, nil)
	a := env.createAffiliate(t, affiliateFixture{UserID: "user-a", Code: "AFFBIL03"})
	env.createPayer(t, "payer-3", a.AffiliateCode)
	env.seedSubscription(t, "payer-3", "sub_3", "pro")

	outcome, err := env.deliver(t, "evt_3", "invoice.paid", renewalInvoice("in_3", "sub_3", constants.BillingReasonSubscriptionCreate))
	require.NoError(t, err)
	assert.Equal(t, constants.BillingEventStatusIgnored, outcome.Status)
	assert.Empty(t, env.commissionsOf(t, a.ID))

	outcome, err = env.deliver(t, "evt_4", "invoice.paid", renewalInvoice("in_4", "sub_unknown", constants.BillingReasonSubscriptionCycle))
	require.NoError(t, err)
	assert.Equal(t, constants.BillingEventStatusIgnored, outcome.Status)

	outcome, err = env.deliver(t, "evt_5", "charge.refunded", map[string]interface{}{"object": "charge", "id": "ch_1"})
	require.NoError(t, err)
	assert.Equal(t, constants.BillingEventStatusIgnored, outcome.Status)
}

func TestHandleStripeWebhookEnqueuesWhenQueueConfigured(t *testing.T) {
	enqueuer := &fakeBillingEnqueuer{}
	env := setupBillingTest(t, enqueuer)
	a := env.createAffiliate(t, affiliateFixture{UserID: "user-a", Code: "AFFBIL04"})
	env.createPayer(t, "payer-4", a.AffiliateCode)
	env.seedSubscription(t, "payer-4", "sub_4", "teams")

	_, err := env.deliver(t, "evt_q", "invoice.paid", renewalInvoice("in_q", "sub_4", constants.BillingReasonSubscriptionCycle))
	require.NoError(t, err)

	require.Len(t, enqueuer.events, 1)
	event := enqueuer.events[0]
	assert.Equal(t, constants.BillingEventRecurringChargeSucceeded, event.EventType)
	assert.Equal(t, "sub_4", event.SubscriptionID)
	assert.Equal(t, "in_q", event.InvoiceID)
	assert.Equal(t, "payer-4", event.PayerUserID)
	assert.Equal(t, "197", event.PlanPrice.String())
	assert.Empty(t, env.commissionsOf(t, a.ID))
}

func TestHandleStripeWebhookSyncsSubscriptionLifecycle(t *testing.T) {
	env := setupBillingTest(t, nil)
	start := time.Unix(1759000000, 0)
	end := time.Unix(1761600000, 0)
	env.lookup.result = &stripe.SubscriptionResult{
		SubscriptionID:     "sub_5",
		CustomerID:         "cus_5",
		Status:             "active",
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}

	_, err := env.deliver(t, "evt_checkout", "checkout.session.completed", map[string]interface{}{
		"object":       "checkout.session",
		"id":           "cs_1",
		"mode":         "subscription",
		"subscription": "sub_5",
		"metadata":     map[string]interface{}{"user_id": "payer-5", "plan": "Pro"},
	})
	require.NoError(t, err)
	sub := env.subscription(t, "sub_5")
	assert.Equal(t, "payer-5", sub.UserID)
	assert.Equal(t, "pro", sub.Plan)
	assert.Equal(t, "cus_5", sub.StripeCustomerID)
	assert.Equal(t, constants.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, end.Unix(), sub.CurrentPeriodEnd.Unix())
	assert.Equal(t, 1, env.lookup.calls)

	_, err = env.deliver(t, "evt_update", "customer.subscription.updated", map[string]interface{}{
		"object":               "subscription",
		"id":                   "sub_5",
		"status":               "unpaid",
		"cancel_at_period_end": true,
		"items": map[string]interface{}{
			"data": []interface{}{
				map[string]interface{}{"price": map[string]interface{}{"id": "price_teams_monthly"}},
			},
		},
	})
	require.NoError(t, err)
	sub = env.subscription(t, "sub_5")
	assert.Equal(t, "teams", sub.Plan)
	assert.Equal(t, constants.SubscriptionStatusPastDue, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)

	_, err = env.deliver(t, "evt_failed", "invoice.payment_failed", renewalInvoice("in_f", "sub_5", constants.BillingReasonSubscriptionCycle))
	require.NoError(t, err)
	assert.Equal(t, constants.SubscriptionStatusPastDue, env.subscription(t, "sub_5").Status)

	_, err = env.deliver(t, "evt_deleted", "customer.subscription.deleted", map[string]interface{}{
		"object": "subscription",
		"id":     "sub_5",
		"status": "canceled",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.SubscriptionStatusCanceled, env.subscription(t, "sub_5").Status)
}

func TestHandleStripeWebhookRecordsFailureForRetry(t *testing.T) {
	env := setupBillingTest(t, nil)
	env.lookup.err = errors.New("stripe unavailable")
	object := map[string]interface{}{
		"object":       "checkout.session",
		"id":           "cs_2",
		"mode":         "subscription",
		"subscription": "sub_6",
		"metadata":     map[string]interface{}{"user_id": "payer-6"},
	}

	outcome, err := env.deliver(t, "evt_retry", "checkout.session.completed", object)
	require.Error(t, err)
	assert.Equal(t, constants.BillingEventStatusFailed, outcome.Status)

	env.lookup.err = nil
	outcome, err = env.deliver(t, "evt_retry", "checkout.session.completed", object)
	require.NoError(t, err)
	assert.False(t, outcome.Duplicate)
	assert.Equal(t, constants.BillingEventStatusProcessed, outcome.Status)
	assert.Equal(t, defaultPlan, env.subscription(t, "sub_6").Plan)
}

func TestHandleStripeWebhookRejectsBadSignature(t *testing.T) {
	env := setupBillingTest(t, nil)
	body := []byte(`{"id":"evt_x","type":"invoice.paid","data":{"object":{"object":"invoice","id":"in_x"}}}`)
	headers := map[string]string{"Stripe-Signature": "t=" + strconv.FormatInt(env.now.Unix(), 10) + ",v1=deadbeef"}

	_, err := env.service.HandleStripeWebhook(context.Background(), headers, body)
	assert.ErrorIs(t, err, ErrWebhookSignature)

	var count int64
	require.NoError(t, env.db.Model(&models.BillingWebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}
