package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsUnmarshal(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Unmarshal(v)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "25.00", cfg.Affiliate.MinPayoutAmount)
	assert.Equal(t, "0.30", cfg.Affiliate.DefaultCommissionRate)
	assert.Equal(t, "0.15", cfg.Affiliate.DefaultOverrideRate)
	assert.True(t, cfg.Affiliate.AutoCompletePayout)
	assert.Equal(t, "97", cfg.Billing.Plans["pro"])
	assert.Equal(t, "pro", cfg.Billing.PricePlans["price_pro_monthly"])
	assert.Equal(t, 3, cfg.Security.PayoutRateLimit.MaxRequests)
	assert.Equal(t, "/", cfg.Consumer.VHost)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestYAMLOverridesDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	yml := `
database:
  driver: postgres
  dsn: host=db user=ledger dbname=ledger
affiliate:
  min_payout_amount: "50.00"
  auto_approve: true
stripe:
  webhook_secret: whsec_from_file
`
	require.NoError(t, v.ReadConfig(strings.NewReader(yml)))

	cfg, err := Unmarshal(v)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "50.00", cfg.Affiliate.MinPayoutAmount)
	assert.True(t, cfg.Affiliate.AutoApprove)
	assert.Equal(t, "whsec_from_file", cfg.Stripe.WebhookSecret)
	// 未覆盖的键保持默认
	assert.Equal(t, "0.30", cfg.Affiliate.DefaultCommissionRate)
	assert.Equal(t, 300, cfg.Stripe.WebhookToleranceSeconds)
}

func TestLogConfigToLoggerOptions(t *testing.T) {
	opts := LogConfig{Dir: "/var/log/ledger", Filename: "ledger.log", MaxSizeMB: 10, Compress: true}.ToLoggerOptions()
	assert.Equal(t, "/var/log/ledger", opts.Dir)
	assert.Equal(t, "ledger.log", opts.Filename)
	assert.Equal(t, 10, opts.MaxSizeMB)
	assert.True(t, opts.Compress)
}
