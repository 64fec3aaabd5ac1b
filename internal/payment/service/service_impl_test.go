package service

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
	"github.com/smallbiznis/paygo/internal/clock"
	"github.com/smallbiznis/paygo/internal/config"
	paymentdomain "github.com/smallbiznis/paygo/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/paygo/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	fake     *clock.FakeClock
	accounts accountdomain.Repository
	svc      paymentdomain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:payment_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&accountdomain.ServiceAccount{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	holder := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	accRepo := accountrepo.Provide()
	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Billing:     holder,
		AccountRepo: accRepo,
		Repo:        paymentrepo.Provide(),
	})

	return &fixture{db: db, node: node, fake: fake, accounts: accRepo, svc: svc}
}

func (f *fixture) seedAccount(t *testing.T, balance string, status accountdomain.AccountStatus) *accountdomain.ServiceAccount {
	t.Helper()
	account := &accountdomain.ServiceAccount{
		ID:       f.node.Generate(),
		UserID:   fmt.Sprintf("user-%d", f.node.Generate()),
		Status:   status,
		Balance:  decimal.RequireFromString(balance),
		Currency: "USD",
	}
	require.NoError(t, f.db.Create(account).Error)
	return account
}

func succeededEvent(payment *paymentdomain.Payment, eventID string) *paymentdomain.GatewayEvent {
	return &paymentdomain.GatewayEvent{
		Provider:        payment.Provider,
		ProviderEventID: eventID,
		Type:            paymentdomain.EventTypePaymentSucceeded,
		ExternalRef:     payment.ExternalRef,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		RawPayload:      []byte(`{"source":"test"}`),
	}
}

func TestCreateTopup(t *testing.T) {
	f := setup(t)
	account := f.seedAccount(t, "0", accountdomain.AccountStatusActive)

	payment, err := f.svc.CreateTopup(context.Background(), paymentdomain.TopupRequest{
		AccountID: account.ID.String(),
		Amount:    decimal.RequireFromString("5000"),
		Provider:  "Stripe",
	})
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.PaymentStatusPending, payment.Status)
	assert.Equal(t, paymentdomain.PaymentTypeTopup, payment.Type)
	assert.Equal(t, "stripe", payment.Provider)
	assert.NotEmpty(t, payment.ExternalRef)
	assert.Equal(t, "USD", payment.Currency)
}

func TestCreateTopup_Validation(t *testing.T) {
	f := setup(t)
	account := f.seedAccount(t, "0", accountdomain.AccountStatusActive)
	closed := f.seedAccount(t, "0", accountdomain.AccountStatusClosed)

	ctx := context.Background()

	_, err := f.svc.CreateTopup(ctx, paymentdomain.TopupRequest{
		AccountID: account.ID.String(), Amount: decimal.RequireFromString("500"), Provider: "stripe",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrBelowMinimumTopup)

	_, err = f.svc.CreateTopup(ctx, paymentdomain.TopupRequest{
		AccountID: account.ID.String(), Amount: decimal.Zero, Provider: "stripe",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = f.svc.CreateTopup(ctx, paymentdomain.TopupRequest{
		AccountID: account.ID.String(), Amount: decimal.RequireFromString("5000"), Provider: " ",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidProvider)

	_, err = f.svc.CreateTopup(ctx, paymentdomain.TopupRequest{
		AccountID: closed.ID.String(), Amount: decimal.RequireFromString("5000"), Provider: "stripe",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrAccountClosed)
}

func TestProcessEvent_CreditsBalanceOnce(t *testing.T) {
	f := setup(t)
	account := f.seedAccount(t, "100", accountdomain.AccountStatusActive)

	ctx := context.Background()
	payment, err := f.svc.CreateTopup(ctx, paymentdomain.TopupRequest{
		AccountID: account.ID.String(),
		Amount:    decimal.RequireFromString("5000"),
		Provider:  "stripe",
	})
	require.NoError(t, err)

	result, err := f.svc.ProcessEvent(ctx, succeededEvent(payment, "evt_1"))
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, paymentdomain.PaymentStatusCompleted, result.Payment.Status)

	// Same event redelivered: journal dedupe, no second credit.
	result, err = f.svc.ProcessEvent(ctx, succeededEvent(payment, "evt_1"))
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.False(t, result.Applied)

	// A different event for the same payment: terminal state guard.
	result, err = f.svc.ProcessEvent(ctx, succeededEvent(payment, "evt_2"))
	require.NoError(t, err)
	assert.True(t, result.AlreadySettled)
	assert.False(t, result.Applied)

	fresh, err := f.accounts.FindByID(ctx, f.db, account.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Balance.Equal(decimal.RequireFromString("5100")), "got %s", fresh.Balance)
}

func TestProcessEvent_CreditReactivatesSuspendedAccount(t *testing.T) {
	f := setup(t)
	account := f.seedAccount(t, "-200", accountdomain.AccountStatusSuspended)

	ctx := context.Background()
	payment, err := f.svc.CreateTopup(ctx, paymentdomain.TopupRequest{
		AccountID: account.ID.String(),
		Amount:    decimal.RequireFromString("1000"),
		Provider:  "stripe",
	})
	require.NoError(t, err)

	_, err = f.svc.ProcessEvent(ctx, succeededEvent(payment, "evt_1"))
	require.NoError(t, err)

	fresh, err := f.accounts.FindByID(ctx, f.db, account.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Balance.Equal(decimal.RequireFromString("800")))
	assert.Equal(t, accountdomain.AccountStatusActive, fresh.Status)
}

func TestProcessEvent_CompletedRefundDeductsBalance(t *testing.T) {
	f := setup(t)
	account := f.seedAccount(t, "1000", accountdomain.AccountStatusActive)

	ctx := context.Background()
	refund := &paymentdomain.Payment{
		ID:          f.node.Generate(),
		AccountID:   account.ID,
		Amount:      decimal.RequireFromString("300"),
		Currency:    "USD",
		Status:      paymentdomain.PaymentStatusPending,
		Type:        paymentdomain.PaymentTypeRefund,
		Provider:    "stripe",
		ExternalRef: "ref_refund_1",
		CreatedAt:   f.fake.Now(),
		UpdatedAt:   f.fake.Now(),
	}
	require.NoError(t, f.db.Create(refund).Error)

	result, err := f.svc.ProcessEvent(ctx, succeededEvent(refund, "evt_refund_1"))
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, paymentdomain.PaymentStatusCompleted, result.Payment.Status)

	fresh, err := f.accounts.FindByID(ctx, f.db, account.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Balance.Equal(decimal.RequireFromString("700")), "got %s", fresh.Balance)
}

func TestProcessEvent_FailureIsTerminal(t *testing.T) {
	f := setup(t)
	account := f.seedAccount(t, "0", accountdomain.AccountStatusActive)

	ctx := context.Background()
	payment, err := f.svc.CreateTopup(ctx, paymentdomain.TopupRequest{
		AccountID: account.ID.String(),
		Amount:    decimal.RequireFromString("5000"),
		Provider:  "stripe",
	})
	require.NoError(t, err)

	failed := succeededEvent(payment, "evt_fail")
	failed.Type = paymentdomain.EventTypePaymentFailed
	failed.Reason = "card_declined"

	result, err := f.svc.ProcessEvent(ctx, failed)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, result.Payment.Status)
	require.NotNil(t, result.Payment.FailureReason)
	assert.Equal(t, "card_declined", *result.Payment.FailureReason)

	// A late success must not resurrect a failed payment or credit funds.
	result, err = f.svc.ProcessEvent(ctx, succeededEvent(payment, "evt_late"))
	require.NoError(t, err)
	assert.True(t, result.AlreadySettled)

	fresh, err := f.accounts.FindByID(ctx, f.db, account.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Balance.IsZero())
}

func TestProcessEvent_StateMachine(t *testing.T) {
	f := setup(t)
	account := f.seedAccount(t, "0", accountdomain.AccountStatusActive)

	ctx := context.Background()
	payment, err := f.svc.CreateTopup(ctx, paymentdomain.TopupRequest{
		AccountID: account.ID.String(),
		Amount:    decimal.RequireFromString("5000"),
		Provider:  "stripe",
	})
	require.NoError(t, err)

	processing := succeededEvent(payment, "evt_proc")
	processing.Type = paymentdomain.EventTypePaymentProcessing
	result, err := f.svc.ProcessEvent(ctx, processing)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, paymentdomain.PaymentStatusProcessing, result.Payment.Status)

	// processing -> completed is legal.
	result, err = f.svc.ProcessEvent(ctx, succeededEvent(payment, "evt_done"))
	require.NoError(t, err)
	assert.True(t, result.Applied)
}

func TestProcessEvent_Validation(t *testing.T) {
	f := setup(t)
	account := f.seedAccount(t, "0", accountdomain.AccountStatusActive)

	ctx := context.Background()
	payment, err := f.svc.CreateTopup(ctx, paymentdomain.TopupRequest{
		AccountID: account.ID.String(),
		Amount:    decimal.RequireFromString("5000"),
		Provider:  "stripe",
	})
	require.NoError(t, err)

	_, err = f.svc.ProcessEvent(ctx, nil)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	unknownRef := succeededEvent(payment, "evt_x")
	unknownRef.ExternalRef = "missing"
	_, err = f.svc.ProcessEvent(ctx, unknownRef)
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)

	badType := succeededEvent(payment, "evt_y")
	badType.Type = "payment_teleported"
	_, err = f.svc.ProcessEvent(ctx, badType)
	assert.ErrorIs(t, err, paymentdomain.ErrUnknownEventType)

	mismatch := succeededEvent(payment, "evt_z")
	mismatch.Amount = decimal.RequireFromString("4999")
	_, err = f.svc.ProcessEvent(ctx, mismatch)
	assert.ErrorIs(t, err, paymentdomain.ErrAmountMismatch)
}

func TestHistory_Paginates(t *testing.T) {
	f := setup(t)
	account := f.seedAccount(t, "0", accountdomain.AccountStatusActive)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateTopup(ctx, paymentdomain.TopupRequest{
			AccountID: account.ID.String(),
			Amount:    decimal.RequireFromString("5000"),
			Provider:  "stripe",
		})
		require.NoError(t, err)
	}

	req := paymentdomain.HistoryRequest{AccountID: account.ID.String()}
	req.PageSize = 2

	page1, err := f.svc.History(ctx, req)
	require.NoError(t, err)
	assert.Len(t, page1.Payments, 2)
	assert.True(t, page1.PageInfo.HasMore)

	req.PageToken = page1.PageInfo.NextPageToken
	page2, err := f.svc.History(ctx, req)
	require.NoError(t, err)
	assert.Len(t, page2.Payments, 1)
	assert.False(t, page2.PageInfo.HasMore)
}
