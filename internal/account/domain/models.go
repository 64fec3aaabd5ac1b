// Package domain contains the prepaid account entities and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AccountStatus represents the lifecycle state of a service account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
)

// CanTransition reports whether moving to next is a legal lifecycle step.
// Closed is terminal.
func (s AccountStatus) CanTransition(next AccountStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case AccountStatusActive:
		return next == AccountStatusSuspended || next == AccountStatusClosed
	case AccountStatusSuspended:
		return next == AccountStatusActive || next == AccountStatusClosed
	default:
		return false
	}
}

// ServiceAccount is the prepaid balance holder for one user. Version
// guards concurrent balance mutations: every write bumps it and every
// writer proves it saw the latest row.
type ServiceAccount struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID      string            `json:"user_id" gorm:"type:text;not null;uniqueIndex:ux_service_accounts_user"`
	Status      AccountStatus     `json:"status" gorm:"type:text;not null;default:'active'"`
	Balance     decimal.Decimal   `json:"balance" gorm:"type:numeric(16,4);not null;default:0"`
	CreditLimit decimal.Decimal   `json:"credit_limit" gorm:"type:numeric(16,4);not null;default:0"`
	Currency    string            `json:"currency" gorm:"type:text;not null"`
	Version     int64             `json:"-" gorm:"not null;default:0"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ServiceAccount) TableName() string { return "service_accounts" }

// Available is the spend ceiling: balance plus any credit line.
func (a *ServiceAccount) Available() decimal.Decimal {
	return a.Balance.Add(a.CreditLimit)
}

// ShouldSuspend reports whether the account has exhausted both its
// balance and its credit line.
func (a *ServiceAccount) ShouldSuspend() bool {
	return a.Balance.IsNegative() && a.CreditLimit.IsZero()
}

// BalanceView is the read model returned by balance queries.
type BalanceView struct {
	AccountID   string          `json:"account_id"`
	UserID      string          `json:"user_id"`
	Status      AccountStatus   `json:"status"`
	Balance     decimal.Decimal `json:"balance"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Available   decimal.Decimal `json:"available"`
	Currency    string          `json:"currency"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
