package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paygo/internal/config"
)

const keyUsageRecordAccount = "usage:record:account:%s"

// UsageLimiter throttles usage recording per user. A nil limiter (rate
// limiting disabled) allows everything.
type UsageLimiter struct {
	enabled bool

	bucket *TokenBucket

	accountRate  float64
	accountBurst int
}

func NewUsageLimiter(cfg config.Config) (*UsageLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.AccountRate <= 0 || limitCfg.AccountBurst <= 0 {
		return nil, errors.New("account rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &UsageLimiter{
		enabled:      true,
		bucket:       NewTokenBucket(client),
		accountRate:  limitCfg.AccountRate,
		accountBurst: limitCfg.AccountBurst,
	}, nil
}

func (l *UsageLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowUser consumes one recording slot for the user. Fails open when
// the limiter is disabled.
func (l *UsageLimiter) AllowUser(ctx context.Context, userID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	key := fmt.Sprintf(keyUsageRecordAccount, strings.TrimSpace(userID))
	allowed, _, err := l.bucket.Allow(ctx, key, l.accountRate, l.accountBurst)
	return allowed, err
}
