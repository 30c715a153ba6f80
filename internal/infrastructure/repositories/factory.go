package repositories

import (
	"context"

	"worklens/internal/core/ports"
	"worklens/internal/infrastructure/reliability"
	"worklens/internal/infrastructure/repositories/memory"
	redisrepo "worklens/internal/infrastructure/repositories/redis"
	"worklens/pkg/circuitbreaker"
	"worklens/pkg/config"
	"worklens/pkg/distributed"
	"worklens/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	prefix      string
	locking     config.LockingConfig
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory. A failed redis
// connection falls back to memory repositories.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		prefix:   cfg.Redis.Prefix,
		locking:  cfg.Locking,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			cfg.Redis.Prefix,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// NewRepositoryFactoryWithClient builds a redis-backed factory around an
// existing client.
func NewRepositoryFactoryWithClient(client *redis.Client, prefix string, locking config.LockingConfig, logger *zap.SugaredLogger) *RepositoryFactory {
	return &RepositoryFactory{
		useRedis:    client != nil,
		redisClient: client,
		prefix:      prefix,
		locking:     locking,
		logger:      logger,
	}
}

func (f *RepositoryFactory) redisReady() bool {
	return f.useRedis && f.redisClient != nil
}

// UsesRedis reports whether repositories are redis-backed
func (f *RepositoryFactory) UsesRedis() bool {
	return f.redisReady()
}

// RedisClient returns the shared client, nil in memory mode
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) CreateWorkSessionRepository() ports.WorkSessionRepository {
	if f.redisReady() {
		return redisrepo.NewRedisWorkSessionRepository(f.redisClient, f.prefix)
	}
	return memory.NewMemoryWorkSessionRepository()
}

func (f *RepositoryFactory) CreateIntervalRepository() ports.IntervalRepository {
	if f.redisReady() {
		return redisrepo.NewRedisIntervalRepository(f.redisClient, f.prefix)
	}
	return memory.NewMemoryIntervalRepository()
}

// CreateAuditRepository wraps the redis store with retry and a circuit
// breaker; the audit batcher is the only writer.
func (f *RepositoryFactory) CreateAuditRepository() ports.AuditRepository {
	if f.redisReady() {
		return reliability.NewAuditRepository(
			redisrepo.NewRedisAuditRepository(f.redisClient, f.prefix),
			retry.DefaultConfig(),
			circuitbreaker.DefaultConfig(),
			f.logger,
		)
	}
	return memory.NewMemoryAuditRepository()
}

func (f *RepositoryFactory) CreateDirectory() ports.Directory {
	if f.redisReady() {
		return redisrepo.NewRedisDirectory(f.redisClient, f.prefix)
	}
	return memory.NewMemoryDirectory()
}

// CreateLocker returns a redis SET NX lock manager when redis is available,
// so instances sharing the store also share per-source serialization.
func (f *RepositoryFactory) CreateLocker() ports.Locker {
	if f.redisReady() {
		return distributed.NewLockManager(f.redisClient, f.prefix+"lock:", f.locking.TTL, f.locking.WaitTimeout)
	}
	return memory.NewKeyedLocker()
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisReady() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
