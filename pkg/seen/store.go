// Package seen provides a Redis-backed dedup store for dispatched
// models. Restarting the process must not rebroadcast records that
// workers already received, so dispatched fullnames are remembered in
// Redis with a TTL.
package seen

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Prometheus metrics for dedup operations.
var (
	seenChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firehose_seen_checks_total",
		Help: "Total dedup checks by result (first, duplicate, error)",
	}, []string{"result"})
)

// DefaultTTL bounds how long a fullname is remembered. Listing ids are
// monotonic, so anything older than a day cannot reappear in a poll.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "firehose:seen:"

// Store remembers dispatched fullnames in Redis.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a dedup store. A non-positive ttl uses DefaultTTL.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis: redisClient,
		ttl:   ttl,
	}
}

// MarkSeen records a fullname and reports whether this was its first
// sighting. SETNX makes check-and-set atomic, so two processes cannot
// both claim the first sighting.
func (s *Store) MarkSeen(ctx context.Context, fullname string) (bool, error) {
	first, err := s.redis.SetNX(ctx, keyPrefix+fullname, 1, s.ttl).Result()
	if err != nil {
		seenChecksTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("redis setnx: %w", err)
	}

	if first {
		seenChecksTotal.WithLabelValues("first").Inc()
	} else {
		seenChecksTotal.WithLabelValues("duplicate").Inc()
	}

	return first, nil
}

// Forget removes a fullname, mainly for tests and manual replays.
func (s *Store) Forget(ctx context.Context, fullname string) error {
	if err := s.redis.Del(ctx, keyPrefix+fullname).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
