package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"github.com/stretchr/testify/assert"
)

func basePricing(price string, minTokens int64) *pricingdomain.Pricing {
	return &pricingdomain.Pricing{
		ServiceType:      servicetype.CallCenter,
		PricePer1KTokens: decimal.RequireFromString(price),
		MinTokens:        minTokens,
		Currency:         "USD",
	}
}

func TestCalculate_MinimumVolumeFloor(t *testing.T) {
	pricing := basePricing("50", 100)

	calc := Calculate(50, pricing, nil)
	assert.Equal(t, int64(50), calc.TokensRequested)
	assert.Equal(t, int64(100), calc.BillableTokens)
	assert.True(t, calc.TotalCost.Equal(decimal.RequireFromString("5")), "got %s", calc.TotalCost)
}

func TestCalculate_AboveMinimum(t *testing.T) {
	pricing := basePricing("50", 100)

	calc := Calculate(1000, pricing, nil)
	assert.Equal(t, int64(1000), calc.BillableTokens)
	assert.True(t, calc.TotalCost.Equal(decimal.RequireFromString("50")), "got %s", calc.TotalCost)
}

func TestCalculate_TierDiscount(t *testing.T) {
	pricing := basePricing("50", 100)
	discount := decimal.RequireFromString("10")
	tier := &tierdomain.PricingTier{
		ServiceType:     servicetype.CallCenter,
		MinTokens:       100_000,
		DiscountPercent: &discount,
	}

	calc := Calculate(1000, pricing, tier)
	assert.True(t, calc.EffectivePrice.Equal(decimal.RequireFromString("45")), "got %s", calc.EffectivePrice)
	assert.True(t, calc.TotalCost.Equal(decimal.RequireFromString("45")), "got %s", calc.TotalCost)
	assert.NotNil(t, calc.DiscountPercent)
	assert.NotNil(t, calc.TierMinTokens)
	assert.Equal(t, int64(100_000), *calc.TierMinTokens)
}

func TestCalculate_TierOverrideWinsOverDiscount(t *testing.T) {
	pricing := basePricing("50", 0)
	discount := decimal.RequireFromString("20")
	override := decimal.RequireFromString("30")
	tier := &tierdomain.PricingTier{
		ServiceType:      servicetype.CallCenter,
		MinTokens:        500_000,
		DiscountPercent:  &discount,
		PricePer1KTokens: &override,
	}

	calc := Calculate(2000, pricing, tier)
	assert.True(t, calc.EffectivePrice.Equal(decimal.RequireFromString("30")))
	assert.True(t, calc.TotalCost.Equal(decimal.RequireFromString("60")))
}

func TestCalculate_RoundsToFourPlaces(t *testing.T) {
	pricing := basePricing("0.0333", 0)

	calc := Calculate(7, pricing, nil)
	// 7/1000 * 0.0333 = 0.0002331 -> 0.0002
	assert.True(t, calc.TotalCost.Equal(decimal.RequireFromString("0.0002")), "got %s", calc.TotalCost)
	assert.Equal(t, int32(-4), calc.TotalCost.Exponent())
}

func TestCalculate_ZeroPriceIsFree(t *testing.T) {
	pricing := basePricing("0", 100)

	calc := Calculate(1_000_000, pricing, nil)
	assert.True(t, calc.TotalCost.IsZero())
}
