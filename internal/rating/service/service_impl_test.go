package service

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
	ratingdomain "github.com/smallbiznis/paygo/internal/rating/domain"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupEstimator(t *testing.T) (*gorm.DB, ratingdomain.Service, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:rating_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&pricingdomain.Pricing{},
		&tierdomain.PricingTier{},
	))
	require.NoError(t, db.Exec(`CREATE TABLE usage_totals (
		account_id INTEGER NOT NULL,
		service_type TEXT NOT NULL,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		total_cost NUMERIC(16,4) NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (account_id, service_type)
	)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE service_accounts (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		balance NUMERIC(16,4) NOT NULL DEFAULT 0,
		credit_limit NUMERIC(16,4) NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	tiers := tierrepo.Provide()
	pricingSvc := pricingservice.New(pricingservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    fake,
		Repo:     pricingrepo.Provide(),
		TierRepo: tiers,
	})

	svc := New(Params{
		DB:       db,
		Log:      log,
		Clock:    fake,
		Pricing:  pricingSvc,
		TierRepo: tiers,
	})

	return db, svc, fake, node
}

func seedPricing(t *testing.T, db *gorm.DB, node *snowflake.Node, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&pricingdomain.Pricing{
		ID:               node.Generate(),
		ServiceType:      servicetype.CallCenter,
		PricePer1KTokens: decimal.RequireFromString("50"),
		MinTokens:        100,
		Currency:         "USD",
		EffectiveFrom:    at.Add(-time.Hour),
		CreatedAt:        at,
		UpdatedAt:        at,
	}).Error)
}

func TestEstimate_WithoutAccount(t *testing.T) {
	db, svc, fake, node := setupEstimator(t)
	seedPricing(t, db, node, fake.Now())

	resp, err := svc.Estimate(context.Background(), ratingdomain.EstimateRequest{
		ServiceType: "call_center",
		Tokens:      1000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), resp.BillableTokens)
	assert.True(t, resp.TotalCost.Equal(decimal.RequireFromString("50")))
	assert.Nil(t, resp.Affordable)
	assert.Equal(t, int64(0), resp.CumulativeTokens)
}

func TestEstimate_TierResolvesAgainstCumulativeUsage(t *testing.T) {
	db, svc, fake, node := setupEstimator(t)
	seedPricing(t, db, node, fake.Now())

	discount := decimal.RequireFromString("10")
	require.NoError(t, db.Create(&tierdomain.PricingTier{
		ID:              node.Generate(),
		ServiceType:     servicetype.CallCenter,
		MinTokens:       100_000,
		DiscountPercent: &discount,
		CreatedAt:       fake.Now(),
		UpdatedAt:       fake.Now(),
	}).Error)

	accountID := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO service_accounts (id, user_id, status, balance, credit_limit, currency, version, created_at, updated_at)
		 VALUES (?, ?, 'active', 40, 0, 'USD', 0, ?, ?)`,
		accountID, "user-1", fake.Now(), fake.Now(),
	).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO usage_totals (account_id, service_type, total_tokens, total_cost, record_count, updated_at)
		 VALUES (?, 'call_center', 150000, 7500, 12, ?)`,
		accountID, fake.Now(),
	).Error)

	resp, err := svc.Estimate(context.Background(), ratingdomain.EstimateRequest{
		AccountID:   accountID.String(),
		ServiceType: "call_center",
		Tokens:      1000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(150_000), resp.CumulativeTokens)
	assert.True(t, resp.EffectivePrice.Equal(decimal.RequireFromString("45")), "got %s", resp.EffectivePrice)
	assert.True(t, resp.TotalCost.Equal(decimal.RequireFromString("45")))
	if assert.NotNil(t, resp.Affordable) {
		// balance 40 < cost 45 with no credit limit
		assert.False(t, *resp.Affordable)
	}
}

func TestEstimate_Validation(t *testing.T) {
	db, svc, fake, node := setupEstimator(t)
	seedPricing(t, db, node, fake.Now())

	_, err := svc.Estimate(context.Background(), ratingdomain.EstimateRequest{ServiceType: "video", Tokens: 10})
	assert.ErrorIs(t, err, ratingdomain.ErrInvalidServiceType)

	_, err = svc.Estimate(context.Background(), ratingdomain.EstimateRequest{ServiceType: "hr", Tokens: 0})
	assert.ErrorIs(t, err, ratingdomain.ErrInvalidTokens)

	_, err = svc.Estimate(context.Background(), ratingdomain.EstimateRequest{ServiceType: "hr", Tokens: 10})
	assert.ErrorIs(t, err, pricingdomain.ErrNoPricingConfigured)
}
