// Package domain contains the volume tier entities and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/internal/servicetype"
)

// PricingTier unlocks a discounted or overridden price once an account's
// cumulative usage for a service type reaches MinTokens. Thresholds are
// unique per service type.
type PricingTier struct {
	ID               snowflake.ID            `json:"id" gorm:"primaryKey"`
	ServiceType      servicetype.ServiceType `json:"service_type" gorm:"type:text;not null;uniqueIndex:ux_pricing_tiers_service_min,priority:1"`
	MinTokens        int64                   `json:"min_tokens" gorm:"not null;uniqueIndex:ux_pricing_tiers_service_min,priority:2"`
	DiscountPercent  *decimal.Decimal        `json:"discount_percent,omitempty" gorm:"type:numeric(5,2)"`
	PricePer1KTokens *decimal.Decimal        `json:"price_per_1k_tokens,omitempty" gorm:"column:price_per_1k_tokens;type:numeric(16,4)"`
	CreatedAt        time.Time               `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time               `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PricingTier) TableName() string { return "pricing_tiers" }

// EffectivePrice returns the per-1k-token price this tier yields against
// the base catalog price. An override price wins over a percent discount.
func (t *PricingTier) EffectivePrice(basePrice decimal.Decimal) decimal.Decimal {
	if t == nil {
		return basePrice
	}
	if t.PricePer1KTokens != nil {
		return t.PricePer1KTokens.Round(4)
	}
	if t.DiscountPercent == nil {
		return basePrice
	}
	factor := decimal.NewFromInt(1).Sub(t.DiscountPercent.Div(decimal.NewFromInt(100)))
	return basePrice.Mul(factor).Round(4)
}
