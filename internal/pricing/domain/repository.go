package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pricing *Pricing) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Pricing, error)
	// FindEffective returns the record covering at, preferring the latest
	// effective_from when more than one qualifies.
	FindEffective(ctx context.Context, db *gorm.DB, serviceType servicetype.ServiceType, at time.Time) (*Pricing, error)
	// CloseOpen stamps effective_until on the currently open record for the
	// service type. Returns the number of records closed.
	CloseOpen(ctx context.Context, db *gorm.DB, serviceType servicetype.ServiceType, until time.Time) (int64, error)
	ListEffective(ctx context.Context, db *gorm.DB, at time.Time) ([]Pricing, error)
	List(ctx context.Context, db *gorm.DB, serviceType *servicetype.ServiceType) ([]Pricing, error)
	Update(ctx context.Context, db *gorm.DB, pricing *Pricing) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// CountUsageInWindow counts audit records billed under the given
	// pricing window; a non-zero count blocks deletion.
	CountUsageInWindow(ctx context.Context, db *gorm.DB, serviceType servicetype.ServiceType, from time.Time, until *time.Time) (int64, error)
}
