package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Service interface {
	// GetOrCreateForUser returns the user's account, creating it on
	// first touch.
	GetOrCreateForUser(ctx context.Context, userID string) (*ServiceAccount, error)
	Get(ctx context.Context, id string) (*ServiceAccount, error)
	GetBalance(ctx context.Context, id string) (*BalanceView, error)

	// Adjust applies a manual balance correction outside the payment
	// flow, reactivating the account when the credit clears its debt.
	Adjust(ctx context.Context, req AdjustRequest) (*BalanceView, error)
	ChangeStatus(ctx context.Context, id string, status AccountStatus) (*ServiceAccount, error)
	SetCreditLimit(ctx context.Context, id string, limit decimal.Decimal) (*ServiceAccount, error)
}

type AdjustRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

var (
	ErrNotFound                = errors.New("account_not_found")
	ErrAccountInactive         = errors.New("account_inactive")
	ErrInsufficientBalance     = errors.New("insufficient_balance")
	ErrInvalidStatusTransition = errors.New("invalid_status_transition")
	ErrVersionConflict         = errors.New("version_conflict")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidUser             = errors.New("invalid_user")
	ErrInvalidID               = errors.New("invalid_id")
	ErrInvalidCreditLimit      = errors.New("invalid_credit_limit")
)
