package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the tier or, when a tier with the same
	// (service_type, min_tokens) exists, replaces its price fields.
	Upsert(ctx context.Context, db *gorm.DB, tier *PricingTier) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PricingTier, error)
	// TierForUsage returns the tier with the largest threshold not above
	// cumulativeTokens, or nil when no tier matches.
	TierForUsage(ctx context.Context, db *gorm.DB, serviceType servicetype.ServiceType, cumulativeTokens int64) (*PricingTier, error)
	ListForService(ctx context.Context, db *gorm.DB, serviceType servicetype.ServiceType) ([]PricingTier, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
