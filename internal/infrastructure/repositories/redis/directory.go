package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisDirectory stores accounts in one hash and keeps a set of source ids
// per manager. Both are written in the same MULTI block.
type RedisDirectory struct {
	client *redis.Client
	prefix string
}

func NewRedisDirectory(client *redis.Client, prefix string) ports.Directory {
	return &RedisDirectory{
		client: client,
		prefix: prefix,
	}
}

func accountsKey(prefix string) string {
	return prefix + "accounts"
}

func teamKey(prefix string, manager domain.SubjectID) string {
	return prefix + "team:" + string(manager)
}

func (d *RedisDirectory) Get(ctx context.Context, id domain.SubjectID) (*domain.Account, error) {
	data, err := d.client.HGet(ctx, accountsKey(d.prefix), string(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, storageErr("get account", err)
	}
	return decodeAccount(data)
}

func (d *RedisDirectory) Put(ctx context.Context, account *domain.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	prev, err := d.Get(ctx, account.SubjectID)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return err
	}

	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != nil && prev.Manager != "" {
			pipe.SRem(ctx, teamKey(d.prefix, prev.Manager), string(prev.SubjectID))
		}
		pipe.HSet(ctx, accountsKey(d.prefix), string(account.SubjectID), data)
		if account.Role == domain.RoleSource && account.Manager != "" {
			pipe.SAdd(ctx, teamKey(d.prefix, account.Manager), string(account.SubjectID))
		}
		return nil
	})
	if err != nil {
		return storageErr("put account", err)
	}
	return nil
}

func (d *RedisDirectory) Delete(ctx context.Context, id domain.SubjectID) error {
	prev, err := d.Get(ctx, id)
	if err != nil {
		return err
	}

	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev.Manager != "" {
			pipe.SRem(ctx, teamKey(d.prefix, prev.Manager), string(id))
		}
		pipe.HDel(ctx, accountsKey(d.prefix), string(id))
		return nil
	})
	if err != nil {
		return storageErr("delete account", err)
	}
	return nil
}

func (d *RedisDirectory) TeamOf(ctx context.Context, manager domain.SubjectID) ([]domain.SubjectID, error) {
	members, err := d.client.SMembers(ctx, teamKey(d.prefix, manager)).Result()
	if err != nil {
		return nil, storageErr("list team", err)
	}
	out := make([]domain.SubjectID, len(members))
	for i, m := range members {
		out[i] = domain.SubjectID(m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (d *RedisDirectory) List(ctx context.Context) ([]*domain.Account, error) {
	all, err := d.client.HGetAll(ctx, accountsKey(d.prefix)).Result()
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	out := make([]*domain.Account, 0, len(all))
	for _, raw := range all {
		account, err := decodeAccount([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

func decodeAccount(data []byte) (*domain.Account, error) {
	var account domain.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

// rebuildTeamIndex recomputes every team set from the account hash.
func rebuildTeamIndex(ctx context.Context, client *redis.Client, prefix string) error {
	all, err := client.HGetAll(ctx, accountsKey(prefix)).Result()
	if err != nil {
		return err
	}

	teams := make(map[domain.SubjectID][]interface{})
	for _, raw := range all {
		account, err := decodeAccount([]byte(raw))
		if err != nil {
			return err
		}
		if account.Role == domain.RoleSource && account.Manager != "" {
			teams[account.Manager] = append(teams[account.Manager], string(account.SubjectID))
		}
	}

	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for manager, members := range teams {
			pipe.Del(ctx, teamKey(prefix, manager))
			pipe.SAdd(ctx, teamKey(prefix, manager), members...)
		}
		return nil
	})
	return err
}
