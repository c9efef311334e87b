// Package cache creates the Redis client. Its only use is the API server's
// readiness check, which pings it; Lambda-concurrency counters are kept in
// memory by pkg/emulation, and no lifecycle events are published to Redis.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewClient creates a Redis client from the given URL and verifies connectivity.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// EnvironmentEventsChannel names a pub/sub channel for environment lifecycle
// events. No component in this module publishes to it or subscribes to it.
const EnvironmentEventsChannel = "mockfactory:environment-events"
