package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"queryforum/backend/internal/logging"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RetryPolicy bounds the startup connection attempts.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy waits for dependencies started next to the server,
// as in docker compose.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxElapsedTime:  time.Minute,
	MaxRetries:      10,
}

func (p RetryPolicy) retry(ctx context.Context, logger *zap.Logger, what string, op func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMaxInterval(p.MaxInterval),
		backoff.WithMaxElapsedTime(p.MaxElapsedTime),
	), p.MaxRetries)

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.Warn("dependency not ready, retrying",
			zap.String("dependency", what),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

// Connect opens PostgreSQL with retries.
func Connect(ctx context.Context, dsn string, policy RetryPolicy, logger *zap.Logger) (*gorm.DB, error) {
	logger = logging.OrNop(logger)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	var db *gorm.DB
	err := policy.retry(ctx, logger, "postgres", func() error {
		var err error
		db, err = Open(dsn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// ConnectRedis creates a client and pings it with retries. An empty
// address disables Redis and returns a nil client.
func ConnectRedis(ctx context.Context, opts *redis.Options, policy RetryPolicy, logger *zap.Logger) (*redis.Client, error) {
	logger = logging.OrNop(logger)
	if opts == nil || opts.Addr == "" {
		logger.Info("redis disabled, running without vote cache and cross-instance feed")
		return nil, nil
	}
	rdb := redis.NewClient(opts)
	err := policy.retry(ctx, logger, "redis", func() error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}
