package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisAuditRepository keeps the audit log as a redis list in append order.
type RedisAuditRepository struct {
	client *redis.Client
	key    string
}

func NewRedisAuditRepository(client *redis.Client, prefix string) ports.AuditRepository {
	return &RedisAuditRepository{
		client: client,
		key:    prefix + "audit",
	}
}

func (r *RedisAuditRepository) Append(ctx context.Context, entries []*domain.AuditEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	ctx, done := traceOp(ctx, "append", "audit")
	defer done(&err)

	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}
		values = append(values, data)
	}

	if err := r.client.RPush(ctx, r.key, values...).Err(); err != nil {
		return storageErr("append audit entries", err)
	}
	return nil
}

func (r *RedisAuditRepository) List(ctx context.Context, filter domain.AuditFilter) (_ []*domain.AuditEntry, err error) {
	ctx, done := traceOp(ctx, "list", "audit")
	defer done(&err)

	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, storageErr("list audit entries", err)
	}

	var out []*domain.AuditEntry
	for i := len(raw) - 1; i >= 0; i-- {
		var entry domain.AuditEntry
		if err := json.Unmarshal([]byte(raw[i]), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit entry: %w", err)
		}
		if !filter.Matches(&entry) {
			continue
		}
		out = append(out, &entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
