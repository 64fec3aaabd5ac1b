package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/paygo/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() accountdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *accountdomain.ServiceAccount) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*accountdomain.ServiceAccount, error) {
	var account accountdomain.ServiceAccount
	err := db.WithContext(ctx).First(&account, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*accountdomain.ServiceAccount, error) {
	var account accountdomain.ServiceAccount
	err := db.WithContext(ctx).First(&account, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) ApplyBalanceChange(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	version int64,
	balance decimal.Decimal,
	status accountdomain.AccountStatus,
	now time.Time,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE service_accounts
		 SET balance = ?, status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		balance, status, now, id, version,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) CreditBalance(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	amount decimal.Decimal,
	now time.Time,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE service_accounts
		 SET balance = balance + ?, version = version + 1, updated_at = ?
		 WHERE id = ?`,
		amount, now, id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ReactivateIfSolvent(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	now time.Time,
) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE service_accounts
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND balance >= 0`,
		accountdomain.AccountStatusActive, now, id, accountdomain.AccountStatusSuspended,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertAdjustmentPayment(
	ctx context.Context,
	db *gorm.DB,
	paymentID snowflake.ID,
	accountID snowflake.ID,
	amount decimal.Decimal,
	currency, externalRef, reason string,
	now time.Time,
) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments
		 (id, account_id, amount, currency, status, type, provider, external_ref, description, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, 'completed', 'adjustment', 'internal', ?, ?, ?, ?, ?)`,
		paymentID, accountID, amount, currency, externalRef, reason, now, now, now,
	).Error
}

func (r *repo) UpdateCreditLimit(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	limit decimal.Decimal,
	now time.Time,
) error {
	return db.WithContext(ctx).Exec(
		`UPDATE service_accounts SET credit_limit = ?, updated_at = ? WHERE id = ?`,
		limit, now, id,
	).Error
}

func (r *repo) UpdateStatus(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	status accountdomain.AccountStatus,
	now time.Time,
) error {
	return db.WithContext(ctx).Exec(
		`UPDATE service_accounts SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, id,
	).Error
}
