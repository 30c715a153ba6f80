package redis

import (
	"context"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisIntervalRepository struct {
	client *redis.Client
	key    string
}

func NewRedisIntervalRepository(client *redis.Client, prefix string) ports.IntervalRepository {
	return &RedisIntervalRepository{
		client: client,
		key:    prefix + "capture_intervals",
	}
}

func (r *RedisIntervalRepository) Set(ctx context.Context, sourceID domain.SubjectID, seconds int) (err error) {
	ctx, done := traceOp(ctx, "set", "capture_intervals")
	defer done(&err)

	if err := r.client.HSet(ctx, r.key, string(sourceID), seconds).Err(); err != nil {
		return storageErr("set capture interval", err)
	}
	return nil
}

func (r *RedisIntervalRepository) Get(ctx context.Context, sourceID domain.SubjectID) (_ int, _ bool, err error) {
	ctx, done := traceOp(ctx, "get", "capture_intervals")
	defer done(&err)

	seconds, err := r.client.HGet(ctx, r.key, string(sourceID)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr("get capture interval", err)
	}
	return seconds, true, nil
}
