package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/internal/servicetype"
)

type Service interface {
	// Create inserts a new pricing record and closes the previously open
	// record for the same service type in the same transaction.
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	// Delete refuses to remove a record that billed usage references.
	Delete(ctx context.Context, id string) error
	// Resolve returns the pricing record effective at the given instant.
	Resolve(ctx context.Context, serviceType servicetype.ServiceType, at time.Time) (*Pricing, error)
	// Current returns the active price and tier schedule per service type.
	Current(ctx context.Context, serviceType *servicetype.ServiceType) ([]CurrentPricing, error)
	List(ctx context.Context, serviceType *servicetype.ServiceType) ([]Response, error)
}

type CreateRequest struct {
	ServiceType      string          `json:"service_type"`
	PricePer1KTokens decimal.Decimal `json:"price_per_1k_tokens"`
	MinTokens        int64           `json:"min_tokens"`
	Currency         string          `json:"currency"`
	EffectiveFrom    *time.Time      `json:"effective_from"`
}

type UpdateRequest struct {
	ID               string           `json:"id"`
	PricePer1KTokens *decimal.Decimal `json:"price_per_1k_tokens,omitempty"`
	MinTokens        *int64           `json:"min_tokens,omitempty"`
	Currency         *string          `json:"currency,omitempty"`
}

type Response struct {
	ID               string          `json:"id"`
	ServiceType      string          `json:"service_type"`
	PricePer1KTokens decimal.Decimal `json:"price_per_1k_tokens"`
	MinTokens        int64           `json:"min_tokens"`
	Currency         string          `json:"currency"`
	EffectiveFrom    time.Time       `json:"effective_from"`
	EffectiveUntil   *time.Time      `json:"effective_until,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TierSchedule describes one volume tier in the current pricing view.
type TierSchedule struct {
	MinTokens        int64            `json:"min_tokens"`
	DiscountPercent  *decimal.Decimal `json:"discount_percent,omitempty"`
	PricePer1KTokens *decimal.Decimal `json:"price_per_1k_tokens,omitempty"`
	EffectivePrice   decimal.Decimal  `json:"effective_price_per_1k"`
}

// CurrentPricing is the active price plus its tier schedule for one
// service type.
type CurrentPricing struct {
	ServiceType      string          `json:"service_type"`
	Label            string          `json:"label"`
	PricePer1KTokens decimal.Decimal `json:"price_per_1k_tokens"`
	MinTokens        int64           `json:"min_tokens"`
	Currency         string          `json:"currency"`
	EffectiveFrom    time.Time       `json:"effective_from"`
	Tiers            []TierSchedule  `json:"tiers"`
	// Monotonic is false when a higher tier yields a higher effective
	// price than a lower one; the schedule needs administrative review.
	Monotonic bool `json:"monotonic"`
}

var (
	ErrInvalidServiceType   = errors.New("invalid_service_type")
	ErrInvalidPrice         = errors.New("invalid_price_per_1k_tokens")
	ErrInvalidMinTokens     = errors.New("invalid_min_tokens")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidEffectiveFrom = errors.New("invalid_effective_from")
	ErrInvalidID            = errors.New("invalid_id")
	ErrNotFound             = errors.New("not_found")
	ErrNoPricingConfigured  = errors.New("no_pricing_configured")
	ErrPricingInUse         = errors.New("pricing_in_use")
)
