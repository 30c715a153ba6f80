package memory

import (
	"context"
	"sync"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
)

type MemoryIntervalRepository struct {
	intervals map[domain.SubjectID]int
	mu        sync.RWMutex
}

func NewMemoryIntervalRepository() ports.IntervalRepository {
	return &MemoryIntervalRepository{
		intervals: make(map[domain.SubjectID]int),
	}
}

func (r *MemoryIntervalRepository) Set(ctx context.Context, sourceID domain.SubjectID, seconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intervals[sourceID] = seconds
	return nil
}

func (r *MemoryIntervalRepository) Get(ctx context.Context, sourceID domain.SubjectID) (int, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seconds, ok := r.intervals[sourceID]
	return seconds, ok, nil
}
