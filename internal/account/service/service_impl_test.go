package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/paygo/internal/account/domain"
	accountrepo "github.com/smallbiznis/paygo/internal/account/repository"
	accountservice "github.com/smallbiznis/paygo/internal/account/service"
	"github.com/smallbiznis/paygo/internal/clock"
	"github.com/smallbiznis/paygo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAccounts(t *testing.T) (*gorm.DB, accountdomain.Service, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:account_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&accountdomain.ServiceAccount{}))
	require.NoError(t, db.Exec(`CREATE TABLE payments (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		type TEXT NOT NULL,
		provider TEXT NOT NULL,
		external_ref TEXT NOT NULL,
		description TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	svc := accountservice.New(accountservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Billing: config.NewStaticBillingConfigHolder(config.BillingConfig{DefaultCurrency: "USD"}),
		Repo:    accountrepo.Provide(),
	})

	return db, svc, fake
}

func TestGetOrCreateForUser_FirstTouchCreatesActiveAccount(t *testing.T) {
	_, svc, _ := setupAccounts(t)
	ctx := context.Background()

	account, err := svc.GetOrCreateForUser(ctx, "u_1")
	require.NoError(t, err)
	assert.Equal(t, accountdomain.AccountStatusActive, account.Status)
	assert.True(t, account.Balance.IsZero())
	assert.True(t, account.CreditLimit.IsZero())
	assert.Equal(t, "USD", account.Currency)

	again, err := svc.GetOrCreateForUser(ctx, "u_1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.ID)

	_, err = svc.GetOrCreateForUser(ctx, "  ")
	assert.ErrorIs(t, err, accountdomain.ErrInvalidUser)
}

func TestAdjust_CreditReactivatesSuspendedDebtor(t *testing.T) {
	db, svc, _ := setupAccounts(t)
	ctx := context.Background()

	account, err := svc.GetOrCreateForUser(ctx, "u_1")
	require.NoError(t, err)

	require.NoError(t, db.Exec(
		`UPDATE service_accounts SET balance = ?, status = ? WHERE id = ?`,
		decimal.RequireFromString("-150"), accountdomain.AccountStatusSuspended, account.ID,
	).Error)

	view, err := svc.Adjust(ctx, accountdomain.AdjustRequest{
		AccountID: account.ID.String(),
		Amount:    decimal.NewFromInt(500),
		Reason:    "goodwill credit",
	})
	require.NoError(t, err)
	assert.True(t, view.Balance.Equal(decimal.NewFromInt(350)))
	assert.Equal(t, accountdomain.AccountStatusActive, view.Status)
	assert.True(t, view.Available.Equal(decimal.NewFromInt(350)))

	var row struct {
		Type   string
		Status string
		Amount decimal.Decimal
	}
	require.NoError(t, db.Raw(
		`SELECT type, status, amount FROM payments WHERE account_id = ?`, account.ID,
	).Scan(&row).Error)
	assert.Equal(t, "adjustment", row.Type)
	assert.Equal(t, "completed", row.Status)
	assert.True(t, row.Amount.Equal(decimal.NewFromInt(500)))
}

func TestAdjust_NegativeCorrectionDoesNotReactivate(t *testing.T) {
	db, svc, _ := setupAccounts(t)
	ctx := context.Background()

	account, err := svc.GetOrCreateForUser(ctx, "u_1")
	require.NoError(t, err)

	require.NoError(t, db.Exec(
		`UPDATE service_accounts SET balance = ?, status = ? WHERE id = ?`,
		decimal.NewFromInt(100), accountdomain.AccountStatusSuspended, account.ID,
	).Error)

	view, err := svc.Adjust(ctx, accountdomain.AdjustRequest{
		AccountID: account.ID.String(),
		Amount:    decimal.NewFromInt(-40),
		Reason:    "billing correction",
	})
	require.NoError(t, err)
	assert.True(t, view.Balance.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, accountdomain.AccountStatusSuspended, view.Status)
}

func TestAdjust_Validation(t *testing.T) {
	_, svc, _ := setupAccounts(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, accountdomain.AdjustRequest{AccountID: "nope", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, accountdomain.ErrInvalidID)

	account, err := svc.GetOrCreateForUser(ctx, "u_1")
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, accountdomain.AdjustRequest{AccountID: account.ID.String()})
	assert.ErrorIs(t, err, accountdomain.ErrInvalidAmount)
}

func TestChangeStatus_ClosedIsTerminal(t *testing.T) {
	_, svc, _ := setupAccounts(t)
	ctx := context.Background()

	account, err := svc.GetOrCreateForUser(ctx, "u_1")
	require.NoError(t, err)

	updated, err := svc.ChangeStatus(ctx, account.ID.String(), accountdomain.AccountStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, accountdomain.AccountStatusClosed, updated.Status)

	_, err = svc.ChangeStatus(ctx, account.ID.String(), accountdomain.AccountStatusActive)
	assert.ErrorIs(t, err, accountdomain.ErrInvalidStatusTransition)
}

func TestSetCreditLimit_ExtendsAvailableBalance(t *testing.T) {
	_, svc, _ := setupAccounts(t)
	ctx := context.Background()

	account, err := svc.GetOrCreateForUser(ctx, "u_1")
	require.NoError(t, err)

	updated, err := svc.SetCreditLimit(ctx, account.ID.String(), decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.True(t, updated.CreditLimit.Equal(decimal.NewFromInt(500)))

	view, err := svc.GetBalance(ctx, account.ID.String())
	require.NoError(t, err)
	assert.True(t, view.Available.Equal(decimal.NewFromInt(500)))

	_, err = svc.SetCreditLimit(ctx, account.ID.String(), decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, accountdomain.ErrInvalidCreditLimit)
}
