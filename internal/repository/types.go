package repository

import "time"

// AffiliateListFilter 推广员列表筛选
type AffiliateListFilter struct {
	Page     int
	PageSize int
	Status   string
	Tier     string
	UplineID string
	Keyword  string
}

// CommissionListFilter 佣金列表筛选
type CommissionListFilter struct {
	Page           int
	PageSize       int
	AffiliateID    string
	SubscriptionID string
	PayoutID       string
	Status         string
	CommissionType string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
}

// PayoutListFilter 打款列表筛选
type PayoutListFilter struct {
	Page        int
	PageSize    int
	AffiliateID string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}
