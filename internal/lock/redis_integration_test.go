package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func newIntegrationRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set LEDGER_TEST_REDIS_ADDR to run redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		_ = client.Close()
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := NewRedis(client, 5*time.Second, logger)
	r.prefix = fmt.Sprintf("ledger:lock:it-%d:", time.Now().UnixNano())
	r.retry = func() redislock.RetryStrategy { return redislock.NoRetry() }
	return r
}

func TestRedisLockExcludesOverlappingKeys(t *testing.T) {
	r := newIntegrationRedis(t)
	ctx := context.Background()

	release, err := r.Lock(ctx, TransactionKey("t1"), ProductKey("p1"))
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	if _, err := r.Lock(ctx, ProductKey("p1"), TransactionKey("t2")); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected overlapping product key to be busy, got %v", err)
	}

	// The failed attempt must not leave t2 behind.
	other, err := r.Lock(ctx, TransactionKey("t2"), ProductKey("p2"))
	if err != nil {
		t.Fatalf("disjoint lock: %v", err)
	}
	other()

	release()
	again, err := r.Lock(ctx, ProductKey("p1"))
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}

func TestRedisLockExpiresAfterTTL(t *testing.T) {
	r := newIntegrationRedis(t)
	r.ttl = 200 * time.Millisecond
	ctx := context.Background()

	if _, err := r.Lock(ctx, ProductKey("p1")); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	time.Sleep(400 * time.Millisecond)

	release, err := r.Lock(ctx, ProductKey("p1"))
	if err != nil {
		t.Fatalf("expected an expired lock to be obtainable, got %v", err)
	}
	release()
}
