// Package progress keeps import progress snapshots in Redis so any server
// instance can answer a progress request for any batch.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/clientdedup/internal/core"
)

const (
	keyPrefix  = "clientdedup:import:"
	DefaultTTL = 24 * time.Hour

	// reportTimeout bounds one write so a slow Redis does not stall a chunk.
	reportTimeout = 2 * time.Second
)

// RedisTracker stores the latest snapshot per batch id as a JSON string with
// a TTL that is refreshed on every report.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ core.ProgressTracker = (*RedisTracker)(nil)

// NewRedisTracker wraps client. A non-positive ttl takes DefaultTTL.
func NewRedisTracker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisTracker{client: client, ttl: ttl, logger: logger}
}

// Connect parses url, pings the server and returns a tracker over it.
func Connect(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*RedisTracker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisTracker(client, ttl, logger), nil
}

func key(batchID string) string { return keyPrefix + batchID }

// Report overwrites the snapshot for p.BatchID. Failures are logged only.
func (t *RedisTracker) Report(ctx context.Context, p core.ImportProgress) {
	b, err := json.Marshal(p)
	if err != nil {
		t.logger.Warn("encode import progress", "batch_id", p.BatchID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	if err := t.client.Set(ctx, key(p.BatchID), b, t.ttl).Err(); err != nil {
		t.logger.Warn("store import progress", "batch_id", p.BatchID, "error", err)
	}
}

// Get returns the latest snapshot for batchID, if any.
func (t *RedisTracker) Get(ctx context.Context, batchID string) (core.ImportProgress, bool, error) {
	b, err := t.client.Get(ctx, key(batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.ImportProgress{}, false, nil
	}
	if err != nil {
		return core.ImportProgress{}, false, err
	}

	var p core.ImportProgress
	if err := json.Unmarshal(b, &p); err != nil {
		return core.ImportProgress{}, false, fmt.Errorf("decode import progress: %w", err)
	}
	return p, true, nil
}

// Close releases the Redis connection pool.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
