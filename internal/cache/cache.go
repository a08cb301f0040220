package cache

import (
	"context"
	"time"
)

const PointsTableKey = "points:table"

func StandingsKey(yearConfigID string) string {
	return "standings:" + yearConfigID
}

// Cache stores JSON-encodable values. Get reports false on a miss.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
