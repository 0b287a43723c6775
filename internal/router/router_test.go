package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/cookinbiz/affiliate-ledger/internal/http/response"
	"github.com/cookinbiz/affiliate-ledger/internal/models"
	"github.com/cookinbiz/affiliate-ledger/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupRouterTest(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.Server.Mode = "debug"
	cfg.Auth = config.AuthConfig{JWTSecret: testJWTSecret, Issuer: "accounts", Audience: "ledger"}
	cfg.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics"}
	cfg.Affiliate = config.AffiliateConfig{MinPayoutAmount: "25.00", Currency: "USD", PayoutBrand: "CookinBiz", AutoApprove: true}

	container, err := provider.NewContainer(cfg, db)
	if err != nil {
		t.Fatalf("new container failed: %v", err)
	}
	t.Cleanup(container.Close)
	if container.StripeGateway != nil {
		t.Fatalf("gateway should stay disabled without a secret key")
	}
	return SetupRouter(cfg, container)
}

func serveWithToken(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(""))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	r := setupRouterTest(t)

	w := serveWithToken(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health want 200 got %d", w.Code)
	}
	var status healthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode health failed: %v", err)
	}
	if status.Database != "ok" || status.Redis != "disabled" {
		t.Fatalf("unexpected health: %+v", status)
	}

	w = serveWithToken(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "# HELP") {
		t.Fatalf("metrics endpoint not served: %d", w.Code)
	}
}

func TestAffiliateRoutesRequireToken(t *testing.T) {
	r := setupRouterTest(t)

	w := serveWithToken(r, http.MethodGet, "/api/v1/affiliate/dashboard", "")
	if code := decodeStatusCode(t, w); code != response.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %d", code)
	}

	token := signTestToken(t, testJWTSecret, validClaims("user-router", ""))
	w = serveWithToken(r, http.MethodPost, "/api/v1/affiliate/enroll", token)
	if code := decodeStatusCode(t, w); code != response.CodeOK {
		t.Fatalf("enroll through router failed: %d body=%s", code, w.Body.String())
	}
	w = serveWithToken(r, http.MethodGet, "/api/v1/affiliate/dashboard", token)
	if code := decodeStatusCode(t, w); code != response.CodeOK {
		t.Fatalf("dashboard through router failed: %d", code)
	}
}

func TestAdminRoutesEnforceRoles(t *testing.T) {
	r := setupRouterTest(t)
	auditor := signTestToken(t, testJWTSecret, validClaims("user-auditor", "Auditor"))
	member := signTestToken(t, testJWTSecret, validClaims("user-member", ""))

	w := serveWithToken(r, http.MethodGet, "/api/v1/admin/affiliates", auditor)
	if code := decodeStatusCode(t, w); code != response.CodeOK {
		t.Fatalf("auditor should list affiliates, got %d", code)
	}
	w = serveWithToken(r, http.MethodPut, "/api/v1/admin/settings/affiliate", auditor)
	if code := decodeStatusCode(t, w); code != response.CodeForbidden {
		t.Fatalf("auditor must not update settings, got %d", code)
	}
	w = serveWithToken(r, http.MethodGet, "/api/v1/admin/affiliates", member)
	if code := decodeStatusCode(t, w); code != response.CodeForbidden {
		t.Fatalf("plain member must be forbidden, got %d", code)
	}
}

func TestPermissionCatalogListsAdminRoutes(t *testing.T) {
	r := setupRouterTest(t)
	admin := signTestToken(t, testJWTSecret, validClaims("user-admin", "admin"))

	w := serveWithToken(r, http.MethodGet, "/api/v1/admin/authz/permissions/catalog", admin)
	var resp struct {
		StatusCode int                          `json:"status_code"`
		Data       []adminPermissionCatalogItem `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode catalog failed: %v", err)
	}
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("catalog failed: %d", resp.StatusCode)
	}
	found := false
	for _, item := range resp.Data {
		if item.Permission == "POST:/admin/payouts/:id/complete" {
			found = true
		}
		if !strings.HasPrefix(item.Object, "/admin/") {
			t.Fatalf("catalog object should be normalized, got %s", item.Object)
		}
	}
	if !found {
		t.Fatalf("complete payout permission missing from catalog")
	}
}
