package service

import (
	"context"
	"time"
)

// TransferRequest 转账请求，金额单位为分
type TransferRequest struct {
	AmountCents    int64
	Currency       string
	DestinationID  string
	Description    string
	IdempotencyKey string
	TransferGroup  string
}

// TransferResult 转账受理结果
type TransferResult struct {
	ExternalTransferID string
}

// FundsTransferer 资金转出协作方
// 明确拒绝时返回的错误需满足 errors.Is(err, ErrTransferRejected)，其余错误视为结果未知
type FundsTransferer interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	// LookupTransfer 按转账分组查找已受理的转账，不存在返回 nil, nil
	LookupTransfer(ctx context.Context, transferGroup string) (*TransferResult, error)
}

// PayoutAccountProvider 收款账户开通协作方
type PayoutAccountProvider interface {
	CreatePayoutAccount(ctx context.Context, email string) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error)
}

// PayoutReconcileScheduler 异步对账调度
type PayoutReconcileScheduler interface {
	EnqueuePayoutReconcile(payoutID string, delay time.Duration) error
}
