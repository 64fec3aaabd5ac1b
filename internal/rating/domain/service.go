package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Service interface {
	// Estimate prices a prospective usage event without recording it.
	Estimate(ctx context.Context, req EstimateRequest) (*EstimateResponse, error)
}

type EstimateRequest struct {
	AccountID   string `json:"account_id,omitempty"`
	ServiceType string `json:"service_type"`
	Tokens      int64  `json:"tokens"`
}

type EstimateResponse struct {
	Calculation

	// CumulativeTokens is the account's lifetime volume for the service
	// type before this event; tiers resolve against it.
	CumulativeTokens int64 `json:"cumulative_tokens"`

	// Affordable reports whether the account's available balance covers
	// the estimated cost. Nil when no account was supplied.
	Affordable       *bool            `json:"affordable,omitempty"`
	AvailableBalance *decimal.Decimal `json:"available_balance,omitempty"`
}

var (
	ErrInvalidServiceType = errors.New("invalid_service_type")
	ErrInvalidTokens      = errors.New("invalid_tokens")
	ErrInvalidAccount     = errors.New("invalid_account")
	ErrAccountNotFound    = errors.New("account_not_found")
)
