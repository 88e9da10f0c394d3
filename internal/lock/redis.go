package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	prefix string
	retry  func() redislock.RetryStrategy
	logger logrus.FieldLogger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Redis{
		client: redislock.New(client),
		ttl:    ttl,
		prefix: "ledger:lock:",
		retry: func() redislock.RetryStrategy {
			return redislock.LimitRetry(redislock.ExponentialBackoff(16*time.Millisecond, 512*time.Millisecond), 20)
		},
		logger: logger,
	}
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	held := make([]*redislock.Lock, 0, len(keys))
	release := func() {
		// Release with a fresh context so a cancelled request still frees its keys.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.logger.WithFields(logrus.Fields{
					"module": "lock",
					"key":    held[i].Key(),
				}).Warn("failed to release redis lock: " + err.Error())
			}
		}
	}

	for _, key := range normalizeKeys(keys) {
		l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{RetryStrategy: r.retry()})
		if errors.Is(err, redislock.ErrNotObtained) {
			release()
			return nil, fmt.Errorf("%w: %s", ErrBusy, key)
		}
		if err != nil {
			release()
			return nil, fmt.Errorf("obtain lock %s: %w", key, err)
		}
		held = append(held, l)
	}

	return release, nil
}
