package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/application/port"
)

// RedisConfig holds distributed lock settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration // lease length; must exceed one mapping upsert
	Retry     time.Duration // delay between obtain attempts
}

// RedisLocker serializes mapping writes across server and worker processes
type RedisLocker struct {
	client *redis.Client
	locker *redislock.Client
	cfg    RedisConfig
	logger *zap.Logger
}

var _ port.ItemLocker = (*RedisLocker)(nil)

// NewRedisLocker connects to Redis and verifies the connection
func NewRedisLocker(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisLocker, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 50 * time.Millisecond
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Redis item locker ready", zap.String("addr", cfg.Addr))

	return &RedisLocker{
		client: client,
		locker: redislock.New(client),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Lock retries until the lease is obtained or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lease, err := l.locker.Obtain(ctx, l.cfg.KeyPrefix+key, l.cfg.TTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.cfg.Retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("lock %s not obtained: %w", key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return func() {
		// Release outlives the caller's ctx so a cancelled batch still frees its keys
		if err := lease.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Error("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// Close closes the Redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
