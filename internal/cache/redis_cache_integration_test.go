package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

type summary struct {
	Balance string `json:"balance"`
	Count   int    `json:"count"`
}

func TestRedisSummaryCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set LEDGER_TEST_REDIS_ADDR to run redis integration test")
	}
	client := NewRedisClient(addr, "", 0)
	t.Cleanup(func() {
		_ = client.Close()
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	c := NewRedisSummaryCache(client)
	key := fmt.Sprintf("ledger:summary:it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_ = client.Del(ctx, key).Err()
	})

	var got summary
	found, err := c.Get(ctx, key, &got)
	if err != nil || found {
		t.Fatalf("expected a miss on an empty key, got found=%v err=%v", found, err)
	}

	if err := c.Set(ctx, key, summary{Balance: "864.50", Count: 3}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	found, err = c.Get(ctx, key, &got)
	if err != nil || !found {
		t.Fatalf("expected a hit, got found=%v err=%v", found, err)
	}
	if got.Balance != "864.50" || got.Count != 3 {
		t.Fatalf("unexpected cached value: %+v", got)
	}
	if ttl := client.TTL(ctx, key).Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl within a minute, got %s", ttl)
	}

	if err := c.Set(ctx, key, nil, time.Minute); err != nil {
		t.Fatalf("set nil: %v", err)
	}
	if found, _ := c.Get(ctx, key, &got); !found {
		t.Fatalf("expected a nil value to leave the entry alone")
	}

	if err := c.Invalidate(ctx, key, DashboardKey+":it-unused"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	found, err = c.Get(ctx, key, &got)
	if err != nil || found {
		t.Fatalf("expected a miss after invalidate, got found=%v err=%v", found, err)
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate nothing: %v", err)
	}
}
