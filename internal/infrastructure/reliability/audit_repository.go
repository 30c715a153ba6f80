package reliability

import (
	"context"
	"errors"
	"fmt"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
	"worklens/pkg/circuitbreaker"
	"worklens/pkg/retry"

	"go.uber.org/zap"
)

// AuditRepository retries audit appends through a circuit breaker. Batches
// are flushed off the request path, so a short backoff costs nobody a
// response, and an open breaker keeps a dead store from stalling the batcher.
type AuditRepository struct {
	repo    ports.AuditRepository
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewAuditRepository(
	repo ports.AuditRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *AuditRepository {
	w := &AuditRepository{
		repo:    repo,
		retry:   retryConfig,
		breaker: circuitbreaker.New(cbConfig),
		logger:  logger,
	}

	w.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("audit store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return w
}

func (w *AuditRepository) Append(ctx context.Context, entries []*domain.AuditEntry) error {
	err := retry.Do(ctx, w.retry, func() error {
		err := w.breaker.Execute(func() error {
			return w.repo.Append(ctx, entries)
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil && !errors.Is(err, domain.ErrStorageFailure) {
		return fmt.Errorf("%w: %w", domain.ErrStorageFailure, err)
	}
	return err
}

// List is a read on the admin path and is passed through unchanged.
func (w *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	return w.repo.List(ctx, filter)
}

func (w *AuditRepository) BreakerStats() circuitbreaker.Stats {
	return w.breaker.Stats()
}
