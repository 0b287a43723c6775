package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cookinbiz/affiliate-ledger/internal/config"
	"github.com/cookinbiz/affiliate-ledger/internal/payment/stripe"
)

// StripeGateway 基于 Stripe Connect 的转账与收款账户实现
type StripeGateway struct {
	cfg *stripe.Config
}

// NewStripeGateway 创建 Stripe 网关，未配置密钥时返回 ErrPaymentGatewayConfig
func NewStripeGateway(cfg config.StripeConfig) (*StripeGateway, error) {
	stripeCfg := &stripe.Config{
		SecretKey:               cfg.SecretKey,
		WebhookSecret:           cfg.WebhookSecret,
		APIBaseURL:              cfg.APIBaseURL,
		WebhookToleranceSeconds: cfg.WebhookToleranceSeconds,
		ConnectCountry:          cfg.ConnectCountry,
	}
	stripeCfg.Normalize()
	if err := stripe.ValidateConfig(stripeCfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentGatewayConfig, err)
	}
	return &StripeGateway{cfg: stripeCfg}, nil
}

// Config 返回规范化后的配置
func (g *StripeGateway) Config() *stripe.Config {
	return g.cfg
}

// Transfer 发起平台转账，4xx 映射为 ErrTransferRejected
func (g *StripeGateway) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	result, err := stripe.CreateTransfer(ctx, g.cfg, stripe.TransferInput{
		AmountMinor:    req.AmountCents,
		Currency:       req.Currency,
		Destination:    req.DestinationID,
		Description:    req.Description,
		TransferGroup:  req.TransferGroup,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &TransferResult{ExternalTransferID: result.TransferID}, nil
}

// LookupTransfer 按转账分组查询
func (g *StripeGateway) LookupTransfer(ctx context.Context, transferGroup string) (*TransferResult, error) {
	result, err := stripe.FindTransferByGroup(ctx, g.cfg, transferGroup)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return &TransferResult{ExternalTransferID: result.TransferID}, nil
}

// CreatePayoutAccount 创建 Express 关联账户
func (g *StripeGateway) CreatePayoutAccount(ctx context.Context, email string) (string, error) {
	return stripe.CreateExpressAccount(ctx, g.cfg, strings.TrimSpace(email))
}

// CreateOnboardingLink 创建入驻链接
func (g *StripeGateway) CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	return stripe.CreateAccountLink(ctx, g.cfg, accountID, refreshURL, returnURL)
}

func classifyStripeError(err error) error {
	if errors.Is(err, stripe.ErrRequestRejected) || errors.Is(err, stripe.ErrConfigInvalid) {
		return fmt.Errorf("%w: %v", ErrTransferRejected, err)
	}
	return err
}

// RetrieveSubscription 查询订阅周期等详情
func (g *StripeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripe.SubscriptionResult, error) {
	return stripe.RetrieveSubscription(ctx, g.cfg, subscriptionID)
}
