package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pricing *pricingdomain.Pricing) error {
	return db.WithContext(ctx).Create(pricing).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pricingdomain.Pricing, error) {
	var pricing pricingdomain.Pricing
	err := db.WithContext(ctx).First(&pricing, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pricing, nil
}

func (r *repo) FindEffective(
	ctx context.Context,
	db *gorm.DB,
	serviceType servicetype.ServiceType,
	at time.Time,
) (*pricingdomain.Pricing, error) {
	var pricing pricingdomain.Pricing
	err := db.WithContext(ctx).
		Where("service_type = ? AND effective_from <= ?", serviceType, at).
		Where("effective_until IS NULL OR effective_until > ?", at).
		Order("effective_from DESC").
		First(&pricing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pricing, nil
}

func (r *repo) CloseOpen(
	ctx context.Context,
	db *gorm.DB,
	serviceType servicetype.ServiceType,
	until time.Time,
) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE pricing SET effective_until = ?, updated_at = ? WHERE service_type = ? AND effective_until IS NULL`,
		until,
		until,
		serviceType,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListEffective(ctx context.Context, db *gorm.DB, at time.Time) ([]pricingdomain.Pricing, error) {
	var items []pricingdomain.Pricing
	err := db.WithContext(ctx).
		Where("effective_from <= ?", at).
		Where("effective_until IS NULL OR effective_until > ?", at).
		Order("service_type ASC, effective_from DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(
	ctx context.Context,
	db *gorm.DB,
	serviceType *servicetype.ServiceType,
) ([]pricingdomain.Pricing, error) {
	stmt := db.WithContext(ctx).Order("service_type ASC, effective_from DESC")
	if serviceType != nil {
		stmt = stmt.Where("service_type = ?", *serviceType)
	}

	var items []pricingdomain.Pricing
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, pricing *pricingdomain.Pricing) error {
	return db.WithContext(ctx).Exec(
		`UPDATE pricing SET price_per_1k_tokens = ?, min_tokens = ?, currency = ?, updated_at = ? WHERE id = ?`,
		pricing.PricePer1KTokens,
		pricing.MinTokens,
		pricing.Currency,
		pricing.UpdatedAt,
		pricing.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Delete(&pricingdomain.Pricing{}, "id = ?", id).Error
}

func (r *repo) CountUsageInWindow(
	ctx context.Context,
	db *gorm.DB,
	serviceType servicetype.ServiceType,
	from time.Time,
	until *time.Time,
) (int64, error) {
	stmt := db.WithContext(ctx).
		Table("usage_records").
		Where("service_type = ? AND recorded_at >= ?", serviceType, from)
	if until != nil {
		stmt = stmt.Where("recorded_at < ?", *until)
	}

	var count int64
	if err := stmt.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
