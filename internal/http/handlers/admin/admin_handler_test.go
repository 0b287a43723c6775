package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/authz"
	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/cookinbiz/affiliate-ledger/internal/constants"
	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/provider"
	"github.com/cookinbiz/affiliate-ledger/internal/repository"
	"github.com/cookinbiz/affiliate-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type okTransferer struct {
	calls int
}

func (o *okTransferer) Transfer(_ context.Context, _ service.TransferRequest) (*service.TransferResult, error) {
	o.calls++
	return &service.TransferResult{ExternalTransferID: fmt.Sprintf("tr_admin_%d", o.calls)}, nil
}

func (o *okTransferer) LookupTransfer(_ context.Context, _ string) (*service.TransferResult, error) {
	return nil, nil
}

func setupAdminHandlerTest(t *testing.T) (*Handler, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:admin_handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	authzService, err := authz.NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}

	affiliateRepo := repository.NewAffiliateRepository(db)
	profileRepo := repository.NewUserProfileRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	settingService := service.NewSettingService(repository.NewSettingRepository(db), service.AffiliateSettingFromConfig(config.AffiliateConfig{
		MinPayoutAmount:       "25.00",
		Currency:              "usd",
		PayoutBrand:           "CookinBiz",
		DefaultCommissionRate: "0.30",
		DefaultOverrideRate:   "0.15",
		AutoApprove:           true,
	}))
	ledger := service.NewLedgerService(affiliateRepo, profileRepo)

	h := New(&provider.Container{
		DB:               db,
		AffiliateRepo:    affiliateRepo,
		UserProfileRepo:  profileRepo,
		SubscriptionRepo: subscriptionRepo,
		AuthzService:     authzService,
		SettingService:   settingService,
		LedgerService:    ledger,
		PayoutService:    service.NewPayoutService(affiliateRepo, settingService, &okTransferer{}, nil),
		AffiliateService: service.NewAffiliateService(affiliateRepo, profileRepo, subscriptionRepo, settingService, nil, time.Second),
	})
	return h, db
}

func newAdminEngine(h *Handler) *gin.Engine {
	r := gin.New()
	g := r.Group("/admin", func(c *gin.Context) {
		c.Set("user_id", "operator-1")
		c.Set("user_role", "admin")
		c.Next()
	})
	g.GET("/affiliates", h.ListAffiliates)
	g.GET("/affiliates/:id", h.GetAffiliate)
	g.PUT("/affiliates/:id/status", h.UpdateAffiliateStatus)
	g.PUT("/affiliates/:id/commission-rate", h.UpdateAffiliateCommissionRate)
	g.GET("/affiliates/:id/ledger-check", h.CheckAffiliateLedger)
	g.POST("/affiliates/:id/payouts", h.CreateAffiliatePayout)
	g.GET("/commissions", h.ListCommissions)
	g.POST("/commissions/:id/cancel", h.CancelCommission)
	g.GET("/payouts", h.ListPayouts)
	g.POST("/payouts/:id/complete", h.CompletePayout)
	g.POST("/payouts/:id/fail", h.FailPayout)
	g.GET("/settings/affiliate", h.GetAffiliateSetting)
	g.PUT("/settings/affiliate", h.UpdateAffiliateSetting)
	g.GET("/authz/me", h.GetAuthzMe)
	g.GET("/authz/roles", h.ListAuthzRoles)
	g.PUT("/authz/users/:id/roles", h.SetAuthzUserRoles)
	g.GET("/authz/users/:id/roles", h.GetAuthzUserRoles)
	return r
}

type adminEnvelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func adminRequest(t *testing.T, r http.Handler, method, path, body string) adminEnvelope {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected http status %d for %s %s", w.Code, method, path)
	}
	var env adminEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response failed: %v body=%s", err, w.Body.String())
	}
	return env
}

// seedEarner 创建带收款账户且有 29.10 待结算佣金的推广员
func seedEarner(t *testing.T, h *Handler, db *gorm.DB, userID string) *models.Affiliate {
	t.Helper()
	ctx := context.Background()
	affiliate, err := h.AffiliateService.Enroll(ctx, userID)
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	if err := db.Model(&models.Affiliate{}).Where("id = ?", affiliate.ID).
		Update("payout_destination_id", "acct_"+userID).Error; err != nil {
		t.Fatalf("set destination failed: %v", err)
	}
	payerID := "payer-of-" + userID
	if err := db.Create(&models.UserProfile{ID: payerID, ReferredBy: affiliate.AffiliateCode}).Error; err != nil {
		t.Fatalf("create payer failed: %v", err)
	}
	if _, err := h.LedgerService.RecordRecurringPayment(ctx, service.RecurringPaymentInput{
		SubscriptionID: "sub_" + userID,
		InvoiceID:      "in_" + userID,
		PayerUserID:    payerID,
		PlanPrice:      decimal.RequireFromString("97.00"),
	}); err != nil {
		t.Fatalf("record payment failed: %v", err)
	}
	return affiliate
}

func decodePayout(t *testing.T, env adminEnvelope) models.AffiliatePayout {
	t.Helper()
	var payout models.AffiliatePayout
	if err := json.Unmarshal(env.Data, &payout); err != nil {
		t.Fatalf("decode payout failed: %v", err)
	}
	return payout
}

func TestAdminPayoutFailThenComplete(t *testing.T) {
	h, db := setupAdminHandlerTest(t)
	affiliate := seedEarner(t, h, db, "user-admin-payout")
	r := newAdminEngine(h)

	env := adminRequest(t, r, http.MethodPost, "/admin/affiliates/"+affiliate.ID+"/payouts", "")
	if env.StatusCode != response.CodeOK {
		t.Fatalf("create payout failed: %d %s", env.StatusCode, env.Msg)
	}
	first := decodePayout(t, env)
	if first.Status != constants.PayoutStatusProcessing {
		t.Fatalf("expected processing without auto complete, got %s", first.Status)
	}

	env = adminRequest(t, r, http.MethodPost, "/admin/affiliates/"+affiliate.ID+"/payouts", "")
	if env.StatusCode != response.CodeConflict {
		t.Fatalf("second payout while processing should conflict, got %d", env.StatusCode)
	}

	env = adminRequest(t, r, http.MethodPost, "/admin/payouts/"+first.ID+"/fail", `{}`)
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("fail without reason should be bad request, got %d", env.StatusCode)
	}
	env = adminRequest(t, r, http.MethodPost, "/admin/payouts/"+first.ID+"/fail", `{"reason":"bank rejected"}`)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("fail payout failed: %d %s", env.StatusCode, env.Msg)
	}
	if failed := decodePayout(t, env); failed.Status != constants.PayoutStatusFailed {
		t.Fatalf("expected failed, got %s", failed.Status)
	}

	env = adminRequest(t, r, http.MethodPost, "/admin/payouts/"+first.ID+"/complete", "")
	if env.StatusCode != response.CodeConflict {
		t.Fatalf("completing a failed payout should conflict, got %d", env.StatusCode)
	}

	env = adminRequest(t, r, http.MethodPost, "/admin/affiliates/"+affiliate.ID+"/payouts", "")
	if env.StatusCode != response.CodeOK {
		t.Fatalf("retry payout failed: %d %s", env.StatusCode, env.Msg)
	}
	second := decodePayout(t, env)
	if !second.Amount.Decimal.Equal(decimal.RequireFromString("29.10")) {
		t.Fatalf("released balance should be payable again, got %s", second.Amount.String())
	}

	env = adminRequest(t, r, http.MethodPost, "/admin/payouts/"+second.ID+"/complete", "")
	if env.StatusCode != response.CodeOK {
		t.Fatalf("complete payout failed: %d %s", env.StatusCode, env.Msg)
	}
	if completed := decodePayout(t, env); completed.Status != constants.PayoutStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}

	env = adminRequest(t, r, http.MethodGet, "/admin/affiliates/"+affiliate.ID+"/ledger-check", "")
	var check service.LedgerCheck
	if err := json.Unmarshal(env.Data, &check); err != nil {
		t.Fatalf("decode ledger check failed: %v", err)
	}
	if !check.Balanced || !check.Balance.Decimal.IsZero() {
		t.Fatalf("unexpected ledger check: %+v", check)
	}

	env = adminRequest(t, r, http.MethodGet, "/admin/payouts?affiliate_id="+affiliate.ID+"&status=failed", "")
	var failedRows []models.AffiliatePayout
	if err := json.Unmarshal(env.Data, &failedRows); err != nil {
		t.Fatalf("decode payouts failed: %v", err)
	}
	if len(failedRows) != 1 || failedRows[0].ID != first.ID {
		t.Fatalf("unexpected failed payouts: %+v", failedRows)
	}

	env = adminRequest(t, r, http.MethodPost, "/admin/payouts/missing-id/complete", "")
	if env.StatusCode != response.CodeNotFound {
		t.Fatalf("unknown payout should be not found, got %d", env.StatusCode)
	}
}

func TestAdminCancelCommission(t *testing.T) {
	h, db := setupAdminHandlerTest(t)
	affiliate := seedEarner(t, h, db, "user-admin-cancel")
	r := newAdminEngine(h)

	env := adminRequest(t, r, http.MethodGet, "/admin/commissions?affiliate_id="+affiliate.ID, "")
	var rows []models.AffiliateCommission
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		t.Fatalf("decode commissions failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one commission, got %d", len(rows))
	}

	env = adminRequest(t, r, http.MethodPost, "/admin/commissions/"+rows[0].ID+"/cancel", `{"reason":"refund"}`)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("cancel failed: %d %s", env.StatusCode, env.Msg)
	}
	env = adminRequest(t, r, http.MethodPost, "/admin/commissions/"+rows[0].ID+"/cancel", `{"reason":"refund"}`)
	if env.StatusCode != response.CodeConflict {
		t.Fatalf("second cancel should conflict, got %d", env.StatusCode)
	}

	var stored models.Affiliate
	if err := db.First(&stored, "id = ?", affiliate.ID).Error; err != nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if !stored.PendingPayoutBalance.Decimal.IsZero() {
		t.Fatalf("cancel should claw back balance, got %s", stored.PendingPayoutBalance.String())
	}

	env = adminRequest(t, r, http.MethodGet, "/admin/commissions?created_from=yesterday", "")
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("invalid created_from should be bad request, got %d", env.StatusCode)
	}
}

func TestAdminUpdateAffiliateCommissionRate(t *testing.T) {
	h, _ := setupAdminHandlerTest(t)
	affiliate, err := h.AffiliateService.Enroll(context.Background(), "user-rate")
	if err != nil {
		t.Fatalf("enroll failed: %v", err)
	}
	r := newAdminEngine(h)
	path := "/admin/affiliates/" + affiliate.ID + "/commission-rate"

	cases := []struct {
		name string
		body string
		want int
	}{
		{name: "missing", body: `{}`, want: response.CodeBadRequest},
		{name: "above one", body: `{"commission_rate":"1.5"}`, want: response.CodeBadRequest},
		{name: "too precise", body: `{"commission_rate":"0.12345"}`, want: response.CodeBadRequest},
		{name: "valid", body: `{"commission_rate":"0.25"}`, want: response.CodeOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := adminRequest(t, r, http.MethodPut, path, tc.body)
			if env.StatusCode != tc.want {
				t.Fatalf("want %d got %d (%s)", tc.want, env.StatusCode, env.Msg)
			}
		})
	}

	env := adminRequest(t, r, http.MethodGet, "/admin/affiliates/"+affiliate.ID, "")
	var updated models.Affiliate
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("decode affiliate failed: %v", err)
	}
	if !updated.CommissionRate.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("unexpected rate: %s", updated.CommissionRate)
	}

	env = adminRequest(t, r, http.MethodPut, "/admin/affiliates/"+affiliate.ID+"/status", `{"status":"frozen"}`)
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("unknown status should be bad request, got %d", env.StatusCode)
	}
	env = adminRequest(t, r, http.MethodGet, "/admin/affiliates/unknown", "")
	if env.StatusCode != response.CodeNotFound {
		t.Fatalf("unknown affiliate should be not found, got %d", env.StatusCode)
	}
}

func TestAdminAffiliateSettingPartialUpdate(t *testing.T) {
	h, _ := setupAdminHandlerTest(t)
	r := newAdminEngine(h)

	env := adminRequest(t, r, http.MethodPut, "/admin/settings/affiliate", `{"min_payout_amount":"40"}`)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("update setting failed: %d %s", env.StatusCode, env.Msg)
	}

	env = adminRequest(t, r, http.MethodGet, "/admin/settings/affiliate", "")
	var setting service.AffiliateSetting
	if err := json.Unmarshal(env.Data, &setting); err != nil {
		t.Fatalf("decode setting failed: %v", err)
	}
	if !setting.MinPayoutAmount.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("unexpected min payout: %s", setting.MinPayoutAmount)
	}
	if setting.Currency != "USD" || setting.PayoutBrand != "CookinBiz" {
		t.Fatalf("untouched fields should keep values, got %+v", setting)
	}

	env = adminRequest(t, r, http.MethodPut, "/admin/settings/affiliate", `{"default_commission_rate":"2"}`)
	if env.StatusCode != response.CodeBadRequest {
		t.Fatalf("invalid rate should be bad request, got %d", env.StatusCode)
	}
}

func TestAdminAuthzUserRoles(t *testing.T) {
	h, _ := setupAdminHandlerTest(t)
	r := newAdminEngine(h)

	env := adminRequest(t, r, http.MethodPut, "/admin/authz/users/user-finance/roles", `{"roles":["finance"]}`)
	if env.StatusCode != response.CodeOK {
		t.Fatalf("set roles failed: %d %s", env.StatusCode, env.Msg)
	}
	env = adminRequest(t, r, http.MethodGet, "/admin/authz/users/user-finance/roles", "")
	var roles []string
	if err := json.Unmarshal(env.Data, &roles); err != nil {
		t.Fatalf("decode roles failed: %v", err)
	}
	if len(roles) != 1 || !strings.Contains(roles[0], "finance") {
		t.Fatalf("unexpected roles: %v", roles)
	}

	env = adminRequest(t, r, http.MethodGet, "/admin/authz/me", "")
	var me struct {
		UserID    string `json:"user_id"`
		TokenRole string `json:"token_role"`
	}
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode me failed: %v", err)
	}
	if me.UserID != "operator-1" || me.TokenRole != "admin" {
		t.Fatalf("unexpected me: %+v", me)
	}
}
