package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store remembers which fulfillment events a worker has already picked up,
// so redeliveries can skip the expensive fulfillment step. SetNX makes the
// check-and-mark a single round trip.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) OrderKey(orderID int64) string {
	return fmt.Sprintf("fulfillment:order:%d", orderID)
}

// Seen marks the key and reports whether it was already marked.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
