package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	ratingdomain "github.com/smallbiznis/paygo/internal/rating/domain"
	"github.com/smallbiznis/paygo/pkg/db/pagination"
)

type Service interface {
	// Record bills one usage event: it prices the tokens, debits the
	// account, appends the ledger line and advances the lifetime
	// counter, all in one transaction.
	Record(ctx context.Context, req RecordRequest) (*RecordResponse, error)
	History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error)
	Summary(ctx context.Context, accountID string) (*SummaryResponse, error)
}

type RecordRequest struct {
	UserID      string         `json:"user_id"`
	ServiceType string         `json:"service_type"`
	Tokens      int64          `json:"tokens"`
	ActionType  string         `json:"action_type,omitempty"`
	RecordedAt  *time.Time     `json:"recorded_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type RecordResponse struct {
	RecordID  string `json:"record_id"`
	AccountID string `json:"account_id"`

	ratingdomain.Calculation

	BalanceAfter     decimal.Decimal `json:"balance_after"`
	AccountStatus    string          `json:"account_status"`
	CumulativeTokens int64           `json:"cumulative_tokens"`
	RecordedAt       time.Time       `json:"recorded_at"`
}

type HistoryRequest struct {
	AccountID   string     `json:"-"`
	ServiceType string     `form:"service_type"`
	ActionType  string     `form:"action_type"`
	From        *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To          *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`

	pagination.Pagination
}

type HistoryResponse struct {
	Records []UsageRecord `json:"records"`

	// Running totals over everything the filter matches, not just the
	// returned page.
	TotalTokens int64           `json:"total_tokens"`
	TotalCost   decimal.Decimal `json:"total_cost"`

	PageInfo *pagination.PageInfo `json:"page_info"`
}

type ServiceSummary struct {
	ServiceType string          `json:"service_type"`
	Label       string          `json:"label"`
	TotalTokens int64           `json:"total_tokens"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	RecordCount int64           `json:"record_count"`
}

type SummaryResponse struct {
	AccountID string           `json:"account_id"`
	Services  []ServiceSummary `json:"services"`
}

var (
	ErrInvalidServiceType = errors.New("invalid_service_type")
	ErrInvalidTokens      = errors.New("invalid_tokens")
	ErrInvalidAccount     = errors.New("invalid_account")
	ErrAccountNotFound    = errors.New("account_not_found")

	// ErrConcurrencyExhausted reports that the recording transaction
	// kept losing the version race and gave up.
	ErrConcurrencyExhausted = errors.New("concurrency_exhausted")
)
