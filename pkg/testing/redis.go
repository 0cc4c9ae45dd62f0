// Package testing holds helpers for integration tests that talk to
// live backing services.
package testing

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// GetRedisClientAndCtx connects to the redis instance named by
// VALETUDO_REDIS_HOST/VALETUDO_REDIS_PASS (localhost without auth by
// default) and skips the calling test when it is not reachable.
func GetRedisClientAndCtx(t *testing.T) (context.Context, *redis.Client) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	redisHost := os.Getenv("VALETUDO_REDIS_HOST")
	if redisHost == "" {
		redisHost = "localhost"
	}
	t.Logf("using redis host: [%s]", redisHost)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(redisHost, "6379"),
		Password: os.Getenv("VALETUDO_REDIS_PASS"),
		DB:       0, // use default DB
	})

	pingRes, err := rdb.Ping(ctx).Result()
	if err != nil {
		if closeErr := rdb.Close(); closeErr != nil {
			t.Logf("closing redis client: %s", closeErr)
		}
		t.Skipf("redis not reachable at %s: %s", redisHost, err)
	}
	t.Logf("redis ping res: %s", pingRes)

	return ctx, rdb
}
