package cache

import (
	"context"
	"time"
)

const (
	DashboardKey      = "ledger:summary:dashboard"
	CapitalSummaryKey = "ledger:summary:capital"
)

// SummaryCache holds read models that are expensive to rebuild. Values are
// JSON encoded by implementations that cross a process boundary.
type SummaryCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
