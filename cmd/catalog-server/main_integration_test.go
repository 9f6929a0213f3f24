//go:build integration

package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/spotify-catalog-client/pkg/ratelimit"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient, err := newRedisClient("redis://" + host + ":" + port.Port() + "/0")
	if err != nil {
		t.Fatalf("newRedisClient() error = %v", err)
	}

	cleanup := func() {
		redisClient.Close()
		redisC.Terminate(ctx)
	}

	return redisClient, cleanup
}

func TestServerWithRedisGate(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	mock, _ := setupServer(t)
	cfg := testConfig(mock)
	cfg.MinRequestInterval = 0.01

	srv, err := newServer(cfg, redisClient, mock.Client())
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	h := srv.router()

	t.Run("catalog", func(t *testing.T) {
		w := do(t, h, "GET", "/artists/"+artistID+"/catalog", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
		}
		if n, err := redisClient.Exists(context.Background(), ratelimit.RedisKeyLastRequest).Result(); err != nil || n != 1 {
			t.Errorf("gate key exists = %d (err %v), want 1", n, err)
		}
	})

	t.Run("ready", func(t *testing.T) {
		if w := do(t, h, "GET", "/ready", ""); w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		redisClient.Close()
		if w := do(t, h, "GET", "/ready", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}
