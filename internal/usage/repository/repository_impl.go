package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/internal/servicetype"
	usagedomain "github.com/smallbiznis/paygo/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, record *usagedomain.UsageRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindRecordByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*usagedomain.UsageRecord, error) {
	var record usagedomain.UsageRecord
	err := db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) ListRecords(
	ctx context.Context,
	db *gorm.DB,
	accountID snowflake.ID,
	filter usagedomain.RecordFilter,
	afterID *snowflake.ID,
	limit int,
) ([]usagedomain.UsageRecord, error) {
	q := applyFilter(db.WithContext(ctx), accountID, filter)
	// Snowflake IDs order by creation time, which makes them a stable
	// cursor even when recorded_at collides.
	if afterID != nil {
		q = q.Where("id < ?", *afterID)
	}

	var records []usagedomain.UsageRecord
	err := q.Order("id DESC").Limit(limit + 1).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func applyFilter(q *gorm.DB, accountID snowflake.ID, filter usagedomain.RecordFilter) *gorm.DB {
	q = q.Where("account_id = ?", accountID)
	if filter.ServiceType != nil {
		q = q.Where("service_type = ?", *filter.ServiceType)
	}
	if filter.ActionType != nil {
		q = q.Where("action_type = ?", *filter.ActionType)
	}
	if filter.From != nil {
		q = q.Where("recorded_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("recorded_at < ?", *filter.To)
	}
	return q
}

func (r *repo) SumFiltered(
	ctx context.Context,
	db *gorm.DB,
	accountID snowflake.ID,
	filter usagedomain.RecordFilter,
) (int64, decimal.Decimal, error) {
	var row struct {
		Tokens int64
		Cost   decimal.Decimal
	}
	err := applyFilter(db.WithContext(ctx).Model(&usagedomain.UsageRecord{}), accountID, filter).
		Select("COALESCE(SUM(tokens), 0) AS tokens, COALESCE(SUM(cost), 0) AS cost").
		Scan(&row).Error
	if err != nil {
		return 0, decimal.Zero, err
	}
	return row.Tokens, row.Cost, nil
}

func (r *repo) GetTotal(
	ctx context.Context,
	db *gorm.DB,
	accountID snowflake.ID,
	serviceType servicetype.ServiceType,
) (*usagedomain.UsageTotal, error) {
	var total usagedomain.UsageTotal
	err := db.WithContext(ctx).
		First(&total, "account_id = ? AND service_type = ?", accountID, serviceType).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &total, nil
}

func (r *repo) ListTotals(
	ctx context.Context,
	db *gorm.DB,
	accountID snowflake.ID,
) ([]usagedomain.UsageTotal, error) {
	var totals []usagedomain.UsageTotal
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("service_type ASC").
		Find(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *repo) IncrementTotal(
	ctx context.Context,
	db *gorm.DB,
	accountID snowflake.ID,
	serviceType servicetype.ServiceType,
	tokens int64,
	cost decimal.Decimal,
	now time.Time,
) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE usage_totals
		 SET total_tokens = total_tokens + ?,
		     total_cost = total_cost + ?,
		     record_count = record_count + 1,
		     updated_at = ?
		 WHERE account_id = ? AND service_type = ?`,
		tokens, cost, now, accountID, serviceType,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return db.WithContext(ctx).Create(&usagedomain.UsageTotal{
		AccountID:   accountID,
		ServiceType: serviceType,
		TotalTokens: tokens,
		TotalCost:   cost,
		RecordCount: 1,
		UpdatedAt:   now,
	}).Error
}

func (r *repo) SumRecords(
	ctx context.Context,
	db *gorm.DB,
	accountID snowflake.ID,
	serviceType servicetype.ServiceType,
) (int64, decimal.Decimal, int64, error) {
	var row struct {
		Tokens int64
		Cost   decimal.Decimal
		Count  int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(tokens), 0) AS tokens,
		        COALESCE(SUM(cost), 0) AS cost,
		        COUNT(*) AS count
		 FROM usage_records
		 WHERE account_id = ? AND service_type = ?`,
		accountID, serviceType,
	).Scan(&row).Error
	if err != nil {
		return 0, decimal.Zero, 0, err
	}
	return row.Tokens, row.Cost, row.Count, nil
}
