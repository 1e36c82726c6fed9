// Package dedup implements a Redis SETNX-backed idempotence filter in
// front of the delta extractor, so a redelivered (claim_idle'd or
// replayed) record never runs through inference twice within the dedup
// window.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dedup:"

type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Filter {
	return &Filter{rdb: rdb, ttl: ttl}
}

// SeenBefore atomically claims (source, recordID) for this dedup window.
// It returns true if this exact record was already claimed (the caller
// should drop it), false if this call is the first claim.
func (f *Filter) SeenBefore(ctx context.Context, source, recordID string) (bool, error) {
	key := dedupKey(source, recordID)
	ok, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

func dedupKey(source, recordID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, source, recordID)
}
