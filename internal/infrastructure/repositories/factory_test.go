package repositories

import (
	"context"
	"testing"
	"time"

	"worklens/internal/core/domain"
	"worklens/internal/infrastructure/reliability"
	"worklens/internal/infrastructure/repositories/memory"
	redisrepo "worklens/internal/infrastructure/repositories/redis"
	"worklens/pkg/config"
	"worklens/pkg/distributed"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRepositoryFactory_MemoryByDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	f, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, f.UsesRedis())
	assert.IsType(t, &memory.MemoryWorkSessionRepository{}, f.CreateWorkSessionRepository())
	assert.IsType(t, &memory.KeyedLocker{}, f.CreateLocker())
	assert.NoError(t, f.HealthCheck(context.Background()))
}

func TestRepositoryFactory_FallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = "127.0.0.1:1"

	f, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.False(t, f.UsesRedis())
}

func TestRepositoryFactory_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	f := NewRepositoryFactoryWithClient(client, "wl:", config.LockingConfig{TTL: time.Second, WaitTimeout: time.Second}, zap.NewNop().Sugar())
	defer f.Close()

	assert.True(t, f.UsesRedis())
	assert.IsType(t, &redisrepo.RedisDirectory{}, f.CreateDirectory())
	assert.IsType(t, &distributed.LockManager{}, f.CreateLocker())
	assert.IsType(t, &reliability.AuditRepository{}, f.CreateAuditRepository())
	assert.NoError(t, f.HealthCheck(context.Background()))
}

func TestSeedDirectory(t *testing.T) {
	ctx := context.Background()
	dir := memory.NewMemoryDirectory()

	err := SeedDirectory(ctx, dir, []config.AccountSeed{
		{Email: "Boss@Example.com", Role: "manager"},
		{Email: "worker@example.com", Role: "employee", Manager: "boss@example.com"},
	})
	require.NoError(t, err)

	team, err := dir.TeamOf(ctx, "boss@example.com")
	require.NoError(t, err)
	assert.Equal(t, []domain.SubjectID{"worker@example.com"}, team)

	err = SeedDirectory(ctx, dir, []config.AccountSeed{{Email: "x@example.com", Role: "root"}})
	assert.Error(t, err)
}
