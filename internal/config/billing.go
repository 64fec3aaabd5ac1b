package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// OverdraftPolicy names how a deduction that would push the balance below
// zero is treated when the account has no credit limit left.
type OverdraftPolicy string

const (
	// OverdraftAllowSingleOverage lets one in-flight billable request drive
	// the balance negative; suspension then blocks further usage.
	OverdraftAllowSingleOverage OverdraftPolicy = "allow_single_overage"
	// OverdraftStrict rejects the whole billing transaction when available
	// funds do not cover the computed cost.
	OverdraftStrict OverdraftPolicy = "strict"
)

// BillingConfig holds operator-tunable billing policy.
type BillingConfig struct {
	OverdraftPolicy OverdraftPolicy `mapstructure:"overdraftPolicy"`
	MinTopupAmount  float64         `mapstructure:"minTopupAmount"`
	DefaultCurrency string          `mapstructure:"defaultCurrency"`
	MaxRecordRetry  int             `mapstructure:"maxRecordRetry"`
}

// MinTopup returns the minimum top-up as a fixed-point amount.
func (c BillingConfig) MinTopup() decimal.Decimal {
	return decimal.NewFromFloat(c.MinTopupAmount).Round(4)
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		OverdraftPolicy: OverdraftAllowSingleOverage,
		MinTopupAmount:  1000,
		DefaultCurrency: "USD",
		MaxRecordRetry:  3,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/paygo/config") // Volume-mounted config
	v.AddConfigPath("/etc/paygo")            // System config
	v.AddConfigPath(".")                     // Current directory (dev mode)

	v.SetEnvPrefix("PAYGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.overdraftPolicy", string(defaults.OverdraftPolicy))
	v.SetDefault("billing.minTopupAmount", defaults.MinTopupAmount)
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("billing.maxRecordRetry", defaults.MaxRecordRetry)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config. Used by tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	switch cfg.OverdraftPolicy {
	case OverdraftAllowSingleOverage, OverdraftStrict:
	default:
		return errors.New("billing.overdraftPolicy must be allow_single_overage or strict")
	}
	if cfg.MinTopupAmount < 0 {
		return errors.New("billing.minTopupAmount cannot be negative")
	}
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		return errors.New("billing.defaultCurrency cannot be empty")
	}
	if cfg.MaxRecordRetry <= 0 {
		return errors.New("billing.maxRecordRetry must be positive")
	}
	return nil
}
