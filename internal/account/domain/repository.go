package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *ServiceAccount) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ServiceAccount, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*ServiceAccount, error)

	// ApplyBalanceChange writes a new balance and status against the
	// version the caller read. It returns false without writing when
	// another writer got there first.
	ApplyBalanceChange(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, balance decimal.Decimal, status AccountStatus, now time.Time) (bool, error)

	// CreditBalance increments the balance in place. Additions commute,
	// so no version check is needed.
	CreditBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, now time.Time) (bool, error)

	// ReactivateIfSolvent flips a suspended account back to active once
	// its balance is non-negative again.
	ReactivateIfSolvent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	// InsertAdjustmentPayment journals a manual balance correction as a
	// completed payment row so it shows up in payment history.
	InsertAdjustmentPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, accountID snowflake.ID, amount decimal.Decimal, currency, externalRef, reason string, now time.Time) error

	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status AccountStatus, now time.Time) error
	UpdateCreditLimit(ctx context.Context, db *gorm.DB, id snowflake.ID, limit decimal.Decimal, now time.Time) error
}
