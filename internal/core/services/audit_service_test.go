package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"worklens/internal/core/domain"
	"worklens/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingAuditRepo struct{}

func (failingAuditRepo) Append(context.Context, []*domain.AuditEntry) error {
	return errors.New("disk full")
}

func (failingAuditRepo) List(context.Context, domain.AuditFilter) ([]*domain.AuditEntry, error) {
	return nil, nil
}

func TestAuditService_FlushAndList(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewAuditService(memory.NewMemoryAuditRepository(), 100, time.Hour, metrics, zap.NewNop().Sugar())
	defer svc.Close()
	ctx := context.Background()

	svc.Append(ctx, domain.AuditLiveViewStarted, domain.AuditDetails{Actor: managerV, Target: sourceS})
	svc.Append(ctx, domain.AuditIntervalAssigned, domain.AuditDetails{Actor: managerV, Target: sourceS,
		Params: map[string]any{"minutes": 5}})
	svc.Flush(ctx)

	entries, err := svc.List(ctx, identityA, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditIntervalAssigned, entries[0].Type)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
	assert.Equal(t, 2, metrics.Snapshot().AuditWritten)

	filtered, err := svc.List(ctx, identityA, domain.AuditFilter{Type: domain.AuditLiveViewStarted})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)

	_, err = svc.List(ctx, identityV, domain.AuditFilter{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAuditService_CloseDrains(t *testing.T) {
	repo := memory.NewMemoryAuditRepository()
	svc := NewAuditService(repo, 100, time.Hour, NewMetricsService(), zap.NewNop().Sugar())
	ctx := context.Background()

	svc.Append(ctx, domain.AuditSourceRemoved, domain.AuditDetails{Actor: adminA, Target: sourceS})
	svc.Close()

	entries, err := repo.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// appends after close are dropped silently
	svc.Append(ctx, domain.AuditSourceRemoved, domain.AuditDetails{Actor: adminA, Target: sourceT})
}

func TestAuditService_StorageFailureIsNotSurfaced(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewAuditService(failingAuditRepo{}, 100, time.Hour, metrics, zap.NewNop().Sugar())
	defer svc.Close()
	ctx := context.Background()

	svc.Append(ctx, domain.AuditLiveViewStarted, domain.AuditDetails{Actor: managerV, Target: sourceS})
	svc.Flush(ctx)

	assert.Equal(t, 1, metrics.Snapshot().AuditFailures)
}

func TestAuditService_BatchSizeTriggersWrite(t *testing.T) {
	repo := memory.NewMemoryAuditRepository()
	svc := NewAuditService(repo, 2, time.Hour, NewMetricsService(), zap.NewNop().Sugar())
	defer svc.Close()
	ctx := context.Background()

	svc.Append(ctx, domain.AuditLiveViewStarted, domain.AuditDetails{Actor: managerV, Target: sourceS})
	svc.Append(ctx, domain.AuditLiveViewStarted, domain.AuditDetails{Actor: managerV, Target: sourceS})

	assert.Eventually(t, func() bool {
		entries, _ := repo.List(ctx, domain.AuditFilter{})
		return len(entries) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestAuditService_LimitClamped(t *testing.T) {
	repo := memory.NewMemoryAuditRepository()
	entries := make([]*domain.AuditEntry, 600)
	for i := range entries {
		entries[i] = &domain.AuditEntry{ID: string(rune('a' + i%26)), Type: domain.AuditLiveViewStarted}
	}
	require.NoError(t, repo.Append(context.Background(), entries))

	svc := NewAuditService(repo, 10, time.Hour, NewMetricsService(), zap.NewNop().Sugar())
	defer svc.Close()

	got, err := svc.List(context.Background(), identityA, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 100)

	got, err = svc.List(context.Background(), identityA, domain.AuditFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, got, 500)
}
