package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// cronClaimTTL bounds how long tick claims linger.
const cronClaimTTL = 24 * time.Hour

func cronTickKey(name string, tick time.Time) string {
	return fmt.Sprintf("cron:%s:%d", name, tick.Unix())
}

// CronClaims grants each schedule tick to exactly one scheduler instance.
type CronClaims struct {
	rdb redis.UniversalClient
}

func NewCronClaims(rdb redis.UniversalClient) *CronClaims {
	return &CronClaims{rdb: rdb}
}

// ClaimTick returns true for the first caller to claim name at tick.
func (c *CronClaims) ClaimTick(ctx context.Context, name string, tick time.Time) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, cronTickKey(name, tick), time.Now().UTC().Format(time.RFC3339), cronClaimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim tick %s: %w", name, err)
	}
	return ok, nil
}
