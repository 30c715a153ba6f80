package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"worklens/internal/core/domain"
	"worklens/pkg/tracing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient creates a new Redis client with connection pooling and
// brings the key schema up to date.
func NewRedisClient(address, password string, db, poolSize int, prefix string, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if err := Migrate(ctx, client, prefix, logger); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if logger != nil {
		logger.Infow("connected to Redis",
			"address", address,
			"db", db,
			"pool_size", poolSize,
		)
	}

	return client, nil
}

// CloseRedisClient closes the Redis client connection
func CloseRedisClient(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageFailure, op, err)
}

// traceOp starts a storage span. The returned func records the duration and
// any storage failure in *errp, then ends the span.
func traceOp(ctx context.Context, operation, collection string) (context.Context, func(errp *error)) {
	ctx, span := tracing.TraceRepositoryOperation(ctx, operation, collection)
	start := time.Now()
	return ctx, func(errp *error) {
		tracing.MeasureDuration(ctx, start, operation)
		if errp != nil && errors.Is(*errp, domain.ErrStorageFailure) {
			tracing.RecordError(ctx, *errp)
		}
		span.End()
	}
}
