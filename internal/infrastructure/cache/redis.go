package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidingest/internal/domain/model"
	"github.com/hszk-dev/vidingest/internal/domain/repository"
	"github.com/hszk-dev/vidingest/internal/infrastructure/metrics"
)

const (
	// progressKeyPrefix is the prefix for progress keys in Redis.
	progressKeyPrefix = "progress:"
)

// progressJSON is the JSON representation of a Progress snapshot.
// Using explicit struct avoids coupling to domain model's JSON tags.
type progressJSON struct {
	SessionID  string         `json:"session_id"`
	Status     string         `json:"status"`
	Phase      string         `json:"phase"`
	Percentage float64        `json:"percentage"`
	Data       map[string]any `json:"data,omitempty"`
	UpdatedAt  string         `json:"updated_at"`
}

// RedisProgressTracker implements repository.ProgressTracker using Redis.
// Every Set refreshes the key's TTL, so abandoned sessions expire on their own.
type RedisProgressTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProgressTracker creates a new Redis-backed progress tracker.
func NewRedisProgressTracker(client *redis.Client, ttl time.Duration) *RedisProgressTracker {
	return &RedisProgressTracker{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a progress snapshot from Redis.
// Returns nil, nil if the session is not tracked.
func (c *RedisProgressTracker) Get(ctx context.Context, sessionID string) (*model.Progress, error) {
	data, err := c.client.Get(ctx, c.buildKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeRedis).Inc()
			return nil, nil
		}
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	progress, err := c.deserialize(data)
	if err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return nil, fmt.Errorf("deserialize progress: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeRedis).Inc()
	return progress, nil
}

// Set stores a progress snapshot with the tracker's TTL.
func (c *RedisProgressTracker) Set(ctx context.Context, progress model.Progress) error {
	data, err := c.serialize(progress)
	if err != nil {
		return fmt.Errorf("serialize progress: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(progress.SessionID), data, c.ttl).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Delete removes a progress snapshot from Redis.
func (c *RedisProgressTracker) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.buildKey(sessionID)).Err(); err != nil {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError, metrics.CacheTypeRedis).Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess, metrics.CacheTypeRedis).Inc()
	return nil
}

// Ping verifies the Redis connection is alive.
func (c *RedisProgressTracker) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// buildKey constructs the Redis key for a session.
func (c *RedisProgressTracker) buildKey(sessionID string) string {
	return progressKeyPrefix + sessionID
}

// serialize converts a Progress to JSON bytes.
func (c *RedisProgressTracker) serialize(p model.Progress) ([]byte, error) {
	v := progressJSON{
		SessionID:  p.SessionID,
		Status:     string(p.Status),
		Phase:      p.Phase,
		Percentage: p.Percentage,
		Data:       p.Data,
		UpdatedAt:  p.UpdatedAt.Format(time.RFC3339Nano),
	}
	return json.Marshal(v)
}

// deserialize converts JSON bytes to a Progress.
func (c *RedisProgressTracker) deserialize(data []byte) (*model.Progress, error) {
	var v progressJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &model.Progress{
		SessionID:  v.SessionID,
		Status:     model.ProgressStatus(v.Status),
		Phase:      v.Phase,
		Percentage: v.Percentage,
		Data:       v.Data,
		UpdatedAt:  updatedAt,
	}, nil
}

// Compile-time verification that RedisProgressTracker implements repository.ProgressTracker.
var _ repository.ProgressTracker = (*RedisProgressTracker)(nil)
