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
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	pricingrepo "github.com/smallbiznis/paygo/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/paygo/internal/pricing/service"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	tierrepo "github.com/smallbiznis/paygo/internal/pricingtier/repository"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCatalog(t *testing.T) (*gorm.DB, pricingdomain.Service, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:pricing_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&pricingdomain.Pricing{},
		&tierdomain.PricingTier{},
	))
	require.NoError(t, db.Exec(`CREATE TABLE usage_records (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		service_type TEXT NOT NULL,
		tokens INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL
	)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	svc := pricingservice.New(pricingservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Repo:     pricingrepo.Provide(),
		TierRepo: tierrepo.Provide(),
	})

	return db, svc, fake
}

func createPrice(t *testing.T, svc pricingdomain.Service, serviceType, price string, minTokens int64) *pricingdomain.Response {
	t.Helper()
	resp, err := svc.Create(context.Background(), pricingdomain.CreateRequest{
		ServiceType:      serviceType,
		PricePer1KTokens: decimal.RequireFromString(price),
		MinTokens:        minTokens,
		Currency:         "usd",
	})
	require.NoError(t, err)
	return resp
}

func TestCreate_ClosesPreviousOpenRecord(t *testing.T) {
	db, svc, fake := setupCatalog(t)
	ctx := context.Background()

	first := createPrice(t, svc, "call_center", "50", 100)
	assert.Equal(t, "USD", first.Currency)
	assert.Nil(t, first.EffectiveUntil)

	fake.Advance(48 * time.Hour)
	second := createPrice(t, svc, "call_center", "60", 100)
	assert.Nil(t, second.EffectiveUntil)

	var open int64
	require.NoError(t, db.Table("pricing").
		Where("service_type = ? AND effective_until IS NULL", "call_center").
		Count(&open).Error)
	assert.Equal(t, int64(1), open, "exactly one open record per service type")

	// A point inside the first window still resolves to the old price.
	inFirstWindow := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	resolved, err := svc.Resolve(ctx, servicetype.CallCenter, inFirstWindow)
	require.NoError(t, err)
	assert.True(t, resolved.PricePer1KTokens.Equal(decimal.NewFromInt(50)))

	resolved, err = svc.Resolve(ctx, servicetype.CallCenter, fake.Now())
	require.NoError(t, err)
	assert.True(t, resolved.PricePer1KTokens.Equal(decimal.NewFromInt(60)))
}

func TestCreate_LeavesOtherServiceTypesOpen(t *testing.T) {
	_, svc, fake := setupCatalog(t)
	ctx := context.Background()

	createPrice(t, svc, "call_center", "50", 100)
	createPrice(t, svc, "hr", "30", 100)

	fake.Advance(time.Hour)
	createPrice(t, svc, "call_center", "55", 100)

	resolved, err := svc.Resolve(ctx, servicetype.HR, fake.Now())
	require.NoError(t, err)
	assert.True(t, resolved.PricePer1KTokens.Equal(decimal.NewFromInt(30)))
}

func TestCreate_Validation(t *testing.T) {
	_, svc, _ := setupCatalog(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, pricingdomain.CreateRequest{
		ServiceType:      "video_editing",
		PricePer1KTokens: decimal.NewFromInt(10),
		Currency:         "USD",
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidServiceType)

	_, err = svc.Create(ctx, pricingdomain.CreateRequest{
		ServiceType:      "hr",
		PricePer1KTokens: decimal.NewFromInt(-1),
		Currency:         "USD",
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPrice)

	_, err = svc.Create(ctx, pricingdomain.CreateRequest{
		ServiceType:      "hr",
		PricePer1KTokens: decimal.NewFromInt(10),
		MinTokens:        -1,
		Currency:         "USD",
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidMinTokens)

	_, err = svc.Create(ctx, pricingdomain.CreateRequest{
		ServiceType:      "hr",
		PricePer1KTokens: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidCurrency)
}

func TestResolve_NoPricingConfigured(t *testing.T) {
	_, svc, fake := setupCatalog(t)

	_, err := svc.Resolve(context.Background(), servicetype.HR, fake.Now())
	assert.ErrorIs(t, err, pricingdomain.ErrNoPricingConfigured)
}

func TestDelete_RefusesWhenWindowHasBilledUsage(t *testing.T) {
	db, svc, fake := setupCatalog(t)
	ctx := context.Background()

	price := createPrice(t, svc, "call_center", "50", 100)

	require.NoError(t, db.Exec(
		`INSERT INTO usage_records (id, account_id, service_type, tokens, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		1, 42, "call_center", 2000, fake.Now().Add(time.Minute),
	).Error)

	err := svc.Delete(ctx, price.ID)
	assert.ErrorIs(t, err, pricingdomain.ErrPricingInUse)

	unused := createPrice(t, svc, "hr", "30", 100)
	require.NoError(t, svc.Delete(ctx, unused.ID))

	_, err = svc.Resolve(ctx, servicetype.HR, fake.Now())
	assert.ErrorIs(t, err, pricingdomain.ErrNoPricingConfigured)
}

func TestUpdate_RewritesMutableFields(t *testing.T) {
	_, svc, fake := setupCatalog(t)
	ctx := context.Background()

	price := createPrice(t, svc, "call_center", "50", 100)

	newPrice := decimal.RequireFromString("52.5")
	minTokens := int64(200)
	updated, err := svc.Update(ctx, pricingdomain.UpdateRequest{
		ID:               price.ID,
		PricePer1KTokens: &newPrice,
		MinTokens:        &minTokens,
	})
	require.NoError(t, err)
	assert.True(t, updated.PricePer1KTokens.Equal(newPrice))
	assert.Equal(t, int64(200), updated.MinTokens)

	resolved, err := svc.Resolve(ctx, servicetype.CallCenter, fake.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(200), resolved.MinTokens)

	_, err = svc.Update(ctx, pricingdomain.UpdateRequest{ID: "not-a-snowflake"})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidID)
}

func TestCurrent_FlagsNonMonotonicTierSchedule(t *testing.T) {
	db, svc, fake := setupCatalog(t)
	ctx := context.Background()

	createPrice(t, svc, "call_center", "50", 100)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	tenPct := decimal.NewFromInt(10)
	override := decimal.NewFromInt(60)
	now := fake.Now()
	require.NoError(t, db.Create(&tierdomain.PricingTier{
		ID:              node.Generate(),
		ServiceType:     servicetype.CallCenter,
		MinTokens:       100_000,
		DiscountPercent: &tenPct,
		CreatedAt:       now,
		UpdatedAt:       now,
	}).Error)
	require.NoError(t, db.Create(&tierdomain.PricingTier{
		ID:               node.Generate(),
		ServiceType:      servicetype.CallCenter,
		MinTokens:        500_000,
		PricePer1KTokens: &override,
		CreatedAt:        now,
		UpdatedAt:        now,
	}).Error)

	st := servicetype.CallCenter
	current, err := svc.Current(ctx, &st)
	require.NoError(t, err)
	require.Len(t, current, 1)

	require.Len(t, current[0].Tiers, 2)
	assert.True(t, current[0].Tiers[0].EffectivePrice.Equal(decimal.NewFromInt(45)))
	assert.True(t, current[0].Tiers[1].EffectivePrice.Equal(override))
	assert.False(t, current[0].Monotonic, "tier above the discount raises the price again")
}
