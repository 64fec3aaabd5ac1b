package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/internal/servicetype"
)

type Service interface {
	// CreateOrUpdate upserts a tier keyed by (service_type, min_tokens).
	CreateOrUpdate(ctx context.Context, req UpsertRequest) (*Response, error)
	List(ctx context.Context, serviceType servicetype.ServiceType) ([]Response, error)
	Delete(ctx context.Context, id string) error
	// TierForUsage is a pure read used by cost computation.
	TierForUsage(ctx context.Context, serviceType servicetype.ServiceType, cumulativeTokens int64) (*PricingTier, error)
}

type UpsertRequest struct {
	ServiceType      string           `json:"service_type"`
	MinTokens        int64            `json:"min_tokens"`
	DiscountPercent  *decimal.Decimal `json:"discount_percent,omitempty"`
	PricePer1KTokens *decimal.Decimal `json:"price_per_1k_tokens,omitempty"`
}

type Response struct {
	ID               string           `json:"id"`
	ServiceType      string           `json:"service_type"`
	MinTokens        int64            `json:"min_tokens"`
	DiscountPercent  *decimal.Decimal `json:"discount_percent,omitempty"`
	PricePer1KTokens *decimal.Decimal `json:"price_per_1k_tokens,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

var (
	ErrInvalidServiceType = errors.New("invalid_service_type")
	ErrInvalidMinTokens   = errors.New("invalid_min_tokens")
	ErrInvalidDiscount    = errors.New("invalid_discount_percent")
	ErrInvalidOverride    = errors.New("invalid_price_per_1k_tokens")
	ErrMissingPriceRule   = errors.New("missing_price_rule")
	ErrInvalidID          = errors.New("invalid_id")
	ErrNotFound           = errors.New("not_found")
)
