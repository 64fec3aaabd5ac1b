// Package domain contains the deterministic cost computation shared by
// usage recording and estimation.
package domain

import (
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
)

var thousand = decimal.NewFromInt(1000)

// Calculation is the priced outcome of a single usage event. The same
// inputs always produce the same output, which lets estimates and
// recorded charges agree to the cent.
type Calculation struct {
	TokensRequested int64            `json:"tokens_requested"`
	BillableTokens  int64            `json:"billable_tokens"`
	BasePrice       decimal.Decimal  `json:"base_price_per_1k_tokens"`
	EffectivePrice  decimal.Decimal  `json:"effective_price_per_1k_tokens"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	TierMinTokens   *int64           `json:"tier_min_tokens,omitempty"`
	TotalCost       decimal.Decimal  `json:"total_cost"`
	Currency        string           `json:"currency"`
}

// Calculate prices tokens against the catalog price and, when a volume
// tier applies, the tier's effective price. The minimum billable volume
// comes from the catalog record. Results round to 4 decimal places,
// half away from zero.
func Calculate(tokens int64, pricing *pricingdomain.Pricing, tier *tierdomain.PricingTier) Calculation {
	billable := tokens
	if billable < pricing.MinTokens {
		billable = pricing.MinTokens
	}

	effective := tier.EffectivePrice(pricing.PricePer1KTokens)
	cost := decimal.NewFromInt(billable).Mul(effective).Div(thousand).Round(4)

	calc := Calculation{
		TokensRequested: tokens,
		BillableTokens:  billable,
		BasePrice:       pricing.PricePer1KTokens,
		EffectivePrice:  effective,
		TotalCost:       cost,
		Currency:        pricing.Currency,
	}
	if tier != nil {
		calc.DiscountPercent = tier.DiscountPercent
		minTokens := tier.MinTokens
		calc.TierMinTokens = &minTokens
	}
	return calc
}
