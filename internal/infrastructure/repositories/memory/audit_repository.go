package memory

import (
	"context"
	"sync"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
)

type MemoryAuditRepository struct {
	entries []*domain.AuditEntry
	mu      sync.RWMutex
}

func NewMemoryAuditRepository() ports.AuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Append(ctx context.Context, entries []*domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		copied := *e
		r.entries = append(r.entries, &copied)
	}
	return nil
}

func (r *MemoryAuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.AuditEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if !filter.Matches(r.entries[i]) {
			continue
		}
		copied := *r.entries[i]
		out = append(out, &copied)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
