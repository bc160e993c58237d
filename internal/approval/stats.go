// internal/approval/stats.go
package approval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"property-approvals/internal/common/logger"
)

const statsCacheKey = "approvals:stats"

// StatsService serves aggregate snapshots through a Redis cache. Only the
// unfiltered snapshot is cached; a since-filtered query always hits the
// store because its cardinality is unbounded.
type StatsService struct {
	store  Store
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewStatsService(store Store, redisClient *redis.Client, ttl time.Duration, log logger.Logger) *StatsService {
	return &StatsService{
		store:  store,
		redis:  redisClient,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "stats"}),
	}
}

// Snapshot returns the aggregate counters, from cache when fresh. Cache
// failures degrade to a direct store read, never to an error.
func (s *StatsService) Snapshot(ctx context.Context, since *time.Time) (*Stats, error) {
	if since != nil || s.redis == nil {
		return s.store.CountByStatusAndKind(ctx, since)
	}

	if cached, err := s.redis.Get(ctx, statsCacheKey).Result(); err == nil {
		var stats Stats
		if err := json.Unmarshal([]byte(cached), &stats); err == nil {
			return &stats, nil
		}
		s.logger.Warn("discarding unreadable stats cache entry", map[string]interface{}{
			"key": statsCacheKey,
		})
	}

	stats, err := s.store.CountByStatusAndKind(ctx, nil)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(stats); err == nil {
		if err := s.redis.Set(ctx, statsCacheKey, payload, s.ttl).Err(); err != nil {
			s.logger.Warn("stats cache write failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return stats, nil
}

// Invalidate drops the cached snapshot. Called after writes so dashboards
// observe a resolution within one cache miss instead of one TTL.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, statsCacheKey).Err(); err != nil {
		s.logger.Warn("stats cache invalidation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
