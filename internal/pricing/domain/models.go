// Package domain contains the pricing catalog entities and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/internal/servicetype"
)

// Pricing is a time-bounded price for a service type. A record with a nil
// EffectiveUntil is the currently open one; at most one open record may
// exist per service type at any instant.
type Pricing struct {
	ID               snowflake.ID            `json:"id" gorm:"primaryKey"`
	ServiceType      servicetype.ServiceType `json:"service_type" gorm:"type:text;not null;index:ix_pricing_service_window,priority:1"`
	PricePer1KTokens decimal.Decimal         `json:"price_per_1k_tokens" gorm:"column:price_per_1k_tokens;type:numeric(16,4);not null"`
	MinTokens        int64                   `json:"min_tokens" gorm:"not null;default:0"`
	Currency         string                  `json:"currency" gorm:"type:text;not null"`
	EffectiveFrom    time.Time               `json:"effective_from" gorm:"not null;index:ix_pricing_service_window,priority:2"`
	EffectiveUntil   *time.Time              `json:"effective_until,omitempty" gorm:""`
	CreatedAt        time.Time               `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time               `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Pricing) TableName() string { return "pricing" }

// Open reports whether the record has no end of validity yet.
func (p *Pricing) Open() bool {
	return p.EffectiveUntil == nil
}

// ActiveAt reports whether the record covers the given instant.
func (p *Pricing) ActiveAt(at time.Time) bool {
	if p.EffectiveFrom.After(at) {
		return false
	}
	return p.EffectiveUntil == nil || p.EffectiveUntil.After(at)
}
