package migration

import (
	accountdomain "github.com/smallbiznis/paygo/internal/account/domain"
	"github.com/smallbiznis/paygo/internal/config"
	paymentdomain "github.com/smallbiznis/paygo/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/paygo/internal/pricing/domain"
	tierdomain "github.com/smallbiznis/paygo/internal/pricingtier/domain"
	"github.com/smallbiznis/paygo/internal/seed"
	usagedomain "github.com/smallbiznis/paygo/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// mysql and sqlite deployments are dev conveniences; the
			// versioned SQL targets postgres.
			if err := conn.AutoMigrate(
				&pricingdomain.Pricing{},
				&tierdomain.PricingTier{},
				&accountdomain.ServiceAccount{},
				&usagedomain.UsageRecord{},
				&usagedomain.UsageTotal{},
				&paymentdomain.Payment{},
				&paymentdomain.EventRecord{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureDefaultPricing(conn)
	}),
)
