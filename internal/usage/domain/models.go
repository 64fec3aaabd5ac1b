// Package domain contains the usage ledger entities and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"gorm.io/datatypes"
)

// UsageRecord is the immutable charge line for one usage event. It
// snapshots the prices that applied at recording time so later catalog
// changes never rewrite history.
type UsageRecord struct {
	ID               snowflake.ID            `json:"id" gorm:"primaryKey"`
	AccountID        snowflake.ID            `json:"account_id" gorm:"not null;index:idx_usage_records_account_recorded,priority:1"`
	ServiceType      servicetype.ServiceType `json:"service_type" gorm:"type:text;not null;index"`
	Tokens           int64                   `json:"tokens" gorm:"not null"`
	BillableTokens   int64                   `json:"billable_tokens" gorm:"not null"`
	ActionType       string                  `json:"action_type,omitempty" gorm:"type:text;not null;default:''"`
	BasePrice        decimal.Decimal         `json:"base_price_per_1k_tokens" gorm:"type:numeric(16,4);not null"`
	EffectivePrice   decimal.Decimal         `json:"effective_price_per_1k_tokens" gorm:"type:numeric(16,4);not null"`
	DiscountPercent  *decimal.Decimal        `json:"discount_percent,omitempty" gorm:"type:numeric(5,2)"`
	Cost             decimal.Decimal         `json:"cost" gorm:"type:numeric(16,4);not null"`
	Currency         string                  `json:"currency" gorm:"type:text;not null"`
	BalanceAfter     decimal.Decimal         `json:"balance_after" gorm:"type:numeric(16,4);not null"`
	CumulativeBefore int64                   `json:"cumulative_tokens_before" gorm:"not null"`
	Metadata         datatypes.JSONMap       `json:"metadata,omitempty" gorm:"type:jsonb"`
	RecordedAt       time.Time               `json:"recorded_at" gorm:"not null;index:idx_usage_records_account_recorded,priority:2"`
	CreatedAt        time.Time               `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UsageRecord) TableName() string { return "usage_records" }

// UsageTotal is the maintained lifetime counter per account and service
// type. It advances in the same transaction as each usage record, so it
// always equals the sum over usage_records.
type UsageTotal struct {
	AccountID   snowflake.ID            `json:"account_id" gorm:"primaryKey;autoIncrement:false"`
	ServiceType servicetype.ServiceType `json:"service_type" gorm:"type:text;primaryKey"`
	TotalTokens int64                   `json:"total_tokens" gorm:"not null;default:0"`
	TotalCost   decimal.Decimal         `json:"total_cost" gorm:"type:numeric(16,4);not null;default:0"`
	RecordCount int64                   `json:"record_count" gorm:"not null;default:0"`
	UpdatedAt   time.Time               `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UsageTotal) TableName() string { return "usage_totals" }
