//go:build integration

package testutil

import (
	"context"
	"testing"

	rediscfg "github.com/ethpandaops/viewgraph/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisConnection is a live Redis container reached through the same
// connect path the engine uses.
type RedisConnection struct {
	Client  *redis.Client
	Options *redis.Options
	Config  *rediscfg.Config
}

// NewRedisContainer starts a Redis container for the lifetime of the test
func NewRedisContainer(t *testing.T) *RedisConnection {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to read container address: %v", err)
	}

	cfg := &rediscfg.Config{URL: url, Prefix: "integration"}

	client, opts, err := rediscfg.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to Redis container: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return &RedisConnection{
		Client:  client,
		Options: opts,
		Config:  cfg,
	}
}
