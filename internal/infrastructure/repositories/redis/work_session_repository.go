package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisWorkSessionRepository stores sessions as JSON, an active pointer per
// source and a sorted set of session ids scored by startedAt (unix ms).
type RedisWorkSessionRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisWorkSessionRepository(client *redis.Client, prefix string) ports.WorkSessionRepository {
	return &RedisWorkSessionRepository{
		client: client,
		prefix: prefix + "ws:",
	}
}

func (r *RedisWorkSessionRepository) sessionKey(id string) string {
	return r.prefix + id
}

func (r *RedisWorkSessionRepository) activeKey(sourceID domain.SubjectID) string {
	return r.prefix + "active:" + string(sourceID)
}

func (r *RedisWorkSessionRepository) byStartKey() string {
	return r.prefix + "by_start"
}

// createSession claims the active pointer and writes the session body in one
// step. A pointer left at a session body that does not exist is reclaimed.
// Returns 0 when another stored session already holds the pointer.
var createSession = redis.NewScript(`
if ARGV[4] == "1" then
	local current = redis.call("GET", KEYS[1])
	if current and redis.call("EXISTS", ARGV[5] .. current) == 1 then
		return 0
	end
	redis.call("SET", KEYS[1], ARGV[1])
end
redis.call("SET", KEYS[2], ARGV[2])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
return 1
`)

func (r *RedisWorkSessionRepository) Create(ctx context.Context, session *domain.WorkSession) (err error) {
	ctx, done := traceOp(ctx, "create", "work_sessions")
	defer done(&err)

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal work session: %w", err)
	}

	claim := "0"
	if session.IsActive {
		claim = "1"
	}
	created, err := createSession.Run(ctx, r.client,
		[]string{r.activeKey(session.SourceID), r.sessionKey(session.ID), r.byStartKey()},
		session.ID, data, session.StartedAt.UnixMilli(), claim, r.prefix,
	).Int()
	if err != nil {
		return storageErr("create work session", err)
	}
	if created == 0 {
		return fmt.Errorf("source %s already has an active session", session.SourceID)
	}
	return nil
}

func (r *RedisWorkSessionRepository) Update(ctx context.Context, session *domain.WorkSession) (err error) {
	ctx, done := traceOp(ctx, "update", "work_sessions")
	defer done(&err)

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal work session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(session.ID), data, 0)
		if session.IsActive {
			pipe.Set(ctx, r.activeKey(session.SourceID), session.ID, 0)
		} else {
			pipe.Del(ctx, r.activeKey(session.SourceID))
		}
		return nil
	})
	if err != nil {
		return storageErr("update work session", err)
	}
	return nil
}

func (r *RedisWorkSessionRepository) FindActive(ctx context.Context, sourceID domain.SubjectID) (_ *domain.WorkSession, err error) {
	ctx, done := traceOp(ctx, "find_active", "work_sessions")
	defer done(&err)

	id, err := r.client.Get(ctx, r.activeKey(sourceID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNoActiveSession
	}
	if err != nil {
		return nil, storageErr("get active session", err)
	}

	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNoActiveSession
	}
	if err != nil {
		return nil, storageErr("get work session", err)
	}

	var session domain.WorkSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal work session: %w", err)
	}
	return &session, nil
}

func (r *RedisWorkSessionRepository) List(ctx context.Context, filter domain.SessionFilter) (_ []*domain.WorkSession, err error) {
	ctx, done := traceOp(ctx, "list", "work_sessions")
	defer done(&err)

	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !filter.From.IsZero() {
		rangeBy.Min = strconv.FormatInt(filter.From.UnixMilli(), 10)
	}
	if !filter.To.IsZero() {
		rangeBy.Max = strconv.FormatInt(filter.To.UnixMilli(), 10)
	}

	ids, err := r.client.ZRangeByScore(ctx, r.byStartKey(), rangeBy).Result()
	if err != nil {
		return nil, storageErr("list work sessions", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storageErr("load work sessions", err)
	}

	out := make([]*domain.WorkSession, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var session domain.WorkSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal work session: %w", err)
		}
		// the score is millisecond precision; Matches applies the exact bounds
		if filter.Matches(&session) {
			out = append(out, &session)
		}
	}
	return out, nil
}
