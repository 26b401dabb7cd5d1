// Package summarycache caches public user summaries used to annotate request
// listings. Entries are advisory: a miss or a cache error falls back to the
// identity store.
package summarycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"chatline/internal/contacts/models"
	id "chatline/pkg/domain"
)

var getManyDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "chatline_summary_cache_get_duration_ms",
	Help:    "Latency of summary cache batch reads in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const keyPrefix = "contacts:summary:"

// RedisCache stores one JSON summary per key with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func summaryKey(userID id.UserID) string {
	return keyPrefix + userID.String()
}

// GetMany returns the cached summaries among ids. Missing keys are absent
// from the map.
func (c *RedisCache) GetMany(ctx context.Context, ids []id.UserID) (map[id.UserID]models.UserSummary, error) {
	start := time.Now()
	defer func() {
		getManyDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	out := make(map[id.UserID]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, userID := range ids {
		keys[i] = summaryKey(userID)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("mget summaries: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var summary models.UserSummary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			// A corrupt entry is treated as a miss and overwritten on the next SetMany.
			continue
		}
		out[ids[i]] = summary
	}
	return out, nil
}

// SetMany writes summaries in one pipeline.
func (c *RedisCache) SetMany(ctx context.Context, summaries []models.UserSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, s := range summaries {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		pipe.Set(ctx, summaryKey(s.ID), payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set summaries: %w", err)
	}
	return nil
}

// Invalidate drops cached summaries.
func (c *RedisCache) Invalidate(ctx context.Context, ids ...id.UserID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, userID := range ids {
		keys[i] = summaryKey(userID)
	}
	return c.client.Del(ctx, keys...).Err()
}
