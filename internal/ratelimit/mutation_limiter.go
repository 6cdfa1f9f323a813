package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/haulboard/gatehouse/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyOperatorMutation = "gatehouse:mutation:%s"

// MutationLimiter throttles operator mutations (rollout rule changes and
// impersonation lifecycle calls) per principal. It is disabled entirely
// when no redis address is configured, which is the single-node default.
type MutationLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewMutationLimiter(cfg config.Config) *MutationLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	if cfg.MutationRatePerSecond <= 0 || cfg.MutationBurst <= 0 {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
	})

	return &MutationLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.MutationRatePerSecond,
		burst:   cfg.MutationBurst,
	}
}

func (l *MutationLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow consumes one token for the principal. A redis failure fails open:
// losing throttling is preferable to locking operators out.
func (l *MutationLimiter) Allow(ctx context.Context, principalID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyOperatorMutation, strings.TrimSpace(principalID))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		return &Result{Allowed: true}, err
	}
	return res, nil
}
