package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() tierdomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, tier *tierdomain.PricingTier) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "service_type"}, {Name: "min_tokens"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"discount_percent",
			"price_per_1k_tokens",
			"updated_at",
		}),
	}).Create(tier).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tierdomain.PricingTier, error) {
	var tier tierdomain.PricingTier
	err := db.WithContext(ctx).First(&tier, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

func (r *repo) TierForUsage(
	ctx context.Context,
	db *gorm.DB,
	serviceType servicetype.ServiceType,
	cumulativeTokens int64,
) (*tierdomain.PricingTier, error) {
	var tier tierdomain.PricingTier
	err := db.WithContext(ctx).
		Where("service_type = ? AND min_tokens <= ?", serviceType, cumulativeTokens).
		Order("min_tokens DESC").
		First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

func (r *repo) ListForService(
	ctx context.Context,
	db *gorm.DB,
	serviceType servicetype.ServiceType,
) ([]tierdomain.PricingTier, error) {
	var items []tierdomain.PricingTier
	err := db.WithContext(ctx).
		Where("service_type = ?", serviceType).
		Order("min_tokens ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Delete(&tierdomain.PricingTier{}, "id = ?", id).Error
}
