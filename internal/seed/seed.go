// Package seed bootstraps a default pricing catalog so a fresh install
// can bill usage immediately.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	"github.com/smallbiznis/paygo/internal/servicetype"
	"gorm.io/gorm"
)

var defaultPrices = map[servicetype.ServiceType]struct {
	price     string
	minTokens int64
}{
	servicetype.CallCenter: {price: "50", minTokens: 100},
	servicetype.HR:         {price: "30", minTokens: 100},
}

// EnsureDefaultPricing opens a catalog record for every service type
// that has none. Existing catalogs are left untouched.
func EnsureDefaultPricing(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	now := time.Now().UTC()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, st := range servicetype.All() {
			var count int64
			if err := tx.Model(&pricingdomain.Pricing{}).
				Where("service_type = ?", st).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}

			defaults := defaultPrices[st]
			if err := tx.Create(&pricingdomain.Pricing{
				ID:               node.Generate(),
				ServiceType:      st,
				PricePer1KTokens: decimal.RequireFromString(defaults.price),
				MinTokens:        defaults.minTokens,
				Currency:         "USD",
				EffectiveFrom:    now,
				CreatedAt:        now,
				UpdatedAt:        now,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
