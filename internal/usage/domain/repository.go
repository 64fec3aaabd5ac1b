package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"gorm.io/gorm"
)

// RecordFilter narrows history reads.
type RecordFilter struct {
	ServiceType *servicetype.ServiceType
	ActionType  *string
	From        *time.Time
	To          *time.Time
}

type Repository interface {
	InsertRecord(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	FindRecordByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UsageRecord, error)

	// ListRecords returns records newest-first, keyed for cursor
	// pagination. limit+1 rows signal another page.
	ListRecords(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter RecordFilter, afterID *snowflake.ID, limit int) ([]UsageRecord, error)

	GetTotal(ctx context.Context, db *gorm.DB, accountID snowflake.ID, serviceType servicetype.ServiceType) (*UsageTotal, error)
	ListTotals(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]UsageTotal, error)

	// IncrementTotal advances the lifetime counter, creating the row on
	// first use. Must run inside the recording transaction.
	IncrementTotal(ctx context.Context, db *gorm.DB, accountID snowflake.ID, serviceType servicetype.ServiceType, tokens int64, cost decimal.Decimal, now time.Time) error

	// SumFiltered totals tokens and cost over the records matching a
	// history filter, for the running totals on paginated reads.
	SumFiltered(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter RecordFilter) (tokens int64, cost decimal.Decimal, err error)

	// SumRecords recomputes the counter from the ledger. Audit use only.
	SumRecords(ctx context.Context, db *gorm.DB, accountID snowflake.ID, serviceType servicetype.ServiceType) (tokens int64, cost decimal.Decimal, count int64, err error)
}
