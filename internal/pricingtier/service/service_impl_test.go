package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/internal/clock"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	tierrepo "github.com/smallbiznis/paygo/internal/pricingtier/repository"
	tierservice "github.com/smallbiznis/paygo/internal/pricingtier/service"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTiers(t *testing.T) (*gorm.DB, tierdomain.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:tiers_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&tierdomain.PricingTier{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := tierservice.New(tierservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  tierrepo.Provide(),
	})

	return db, svc
}

func discountTier(t *testing.T, svc tierdomain.Service, minTokens int64, percent string) *tierdomain.Response {
	t.Helper()
	pct := decimal.RequireFromString(percent)
	resp, err := svc.CreateOrUpdate(context.Background(), tierdomain.UpsertRequest{
		ServiceType:     "call_center",
		MinTokens:       minTokens,
		DiscountPercent: &pct,
	})
	require.NoError(t, err)
	return resp
}

func TestCreateOrUpdate_UpsertsOnThreshold(t *testing.T) {
	db, svc := setupTiers(t)

	discountTier(t, svc, 100_000, "10")
	updated := discountTier(t, svc, 100_000, "15")

	require.NotNil(t, updated.DiscountPercent)
	assert.True(t, updated.DiscountPercent.Equal(decimal.NewFromInt(15)))

	var count int64
	require.NoError(t, db.Table("pricing_tiers").Count(&count).Error)
	assert.Equal(t, int64(1), count, "same threshold rewrites the existing tier")
}

func TestCreateOrUpdate_Validation(t *testing.T) {
	_, svc := setupTiers(t)
	ctx := context.Background()

	pct := decimal.NewFromInt(10)
	override := decimal.NewFromInt(40)

	_, err := svc.CreateOrUpdate(ctx, tierdomain.UpsertRequest{
		ServiceType: "gardening", MinTokens: 100, DiscountPercent: &pct,
	})
	assert.ErrorIs(t, err, tierdomain.ErrInvalidServiceType)

	_, err = svc.CreateOrUpdate(ctx, tierdomain.UpsertRequest{
		ServiceType: "hr", MinTokens: 0, DiscountPercent: &pct,
	})
	assert.ErrorIs(t, err, tierdomain.ErrInvalidMinTokens)

	_, err = svc.CreateOrUpdate(ctx, tierdomain.UpsertRequest{
		ServiceType: "hr", MinTokens: 100,
	})
	assert.ErrorIs(t, err, tierdomain.ErrMissingPriceRule)

	_, err = svc.CreateOrUpdate(ctx, tierdomain.UpsertRequest{
		ServiceType: "hr", MinTokens: 100, DiscountPercent: &pct, PricePer1KTokens: &override,
	})
	assert.ErrorIs(t, err, tierdomain.ErrMissingPriceRule)

	over := decimal.NewFromInt(101)
	_, err = svc.CreateOrUpdate(ctx, tierdomain.UpsertRequest{
		ServiceType: "hr", MinTokens: 100, DiscountPercent: &over,
	})
	assert.ErrorIs(t, err, tierdomain.ErrInvalidDiscount)

	negative := decimal.NewFromInt(-1)
	_, err = svc.CreateOrUpdate(ctx, tierdomain.UpsertRequest{
		ServiceType: "hr", MinTokens: 100, PricePer1KTokens: &negative,
	})
	assert.ErrorIs(t, err, tierdomain.ErrInvalidOverride)
}

func TestTierForUsage_ResolvesLargestReachedThreshold(t *testing.T) {
	_, svc := setupTiers(t)
	ctx := context.Background()

	discountTier(t, svc, 100_000, "10")
	discountTier(t, svc, 500_000, "20")

	tier, err := svc.TierForUsage(ctx, servicetype.CallCenter, 99_999)
	require.NoError(t, err)
	assert.Nil(t, tier, "below the first threshold no tier applies")

	tier, err = svc.TierForUsage(ctx, servicetype.CallCenter, 100_000)
	require.NoError(t, err)
	require.NotNil(t, tier)
	assert.Equal(t, int64(100_000), tier.MinTokens)

	tier, err = svc.TierForUsage(ctx, servicetype.CallCenter, 2_000_000)
	require.NoError(t, err)
	require.NotNil(t, tier)
	assert.Equal(t, int64(500_000), tier.MinTokens)

	tier, err = svc.TierForUsage(ctx, servicetype.HR, 2_000_000)
	require.NoError(t, err)
	assert.Nil(t, tier, "thresholds are per service type")
}

func TestList_OrdersByThreshold(t *testing.T) {
	_, svc := setupTiers(t)

	discountTier(t, svc, 500_000, "20")
	discountTier(t, svc, 100_000, "10")

	tiers, err := svc.List(context.Background(), servicetype.CallCenter)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, int64(100_000), tiers[0].MinTokens)
	assert.Equal(t, int64(500_000), tiers[1].MinTokens)
}

func TestDelete_RemovesTier(t *testing.T) {
	_, svc := setupTiers(t)
	ctx := context.Background()

	tier := discountTier(t, svc, 100_000, "10")
	require.NoError(t, svc.Delete(ctx, tier.ID))

	tiers, err := svc.List(ctx, servicetype.CallCenter)
	require.NoError(t, err)
	assert.Empty(t, tiers)

	err = svc.Delete(ctx, "not-a-snowflake")
	assert.ErrorIs(t, err, tierdomain.ErrInvalidID)
}
