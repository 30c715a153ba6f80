package memory

import (
	"context"
	"fmt"
	"sync"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
)

type MemoryWorkSessionRepository struct {
	sessions map[string]*domain.WorkSession
	active   map[domain.SubjectID]string // source -> active session id
	mu       sync.RWMutex
}

func NewMemoryWorkSessionRepository() ports.WorkSessionRepository {
	return &MemoryWorkSessionRepository{
		sessions: make(map[string]*domain.WorkSession),
		active:   make(map[domain.SubjectID]string),
	}
}

func (r *MemoryWorkSessionRepository) Create(ctx context.Context, session *domain.WorkSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("work session already exists: %s", session.ID)
	}
	if session.IsActive {
		if _, exists := r.active[session.SourceID]; exists {
			return fmt.Errorf("source %s already has an active session", session.SourceID)
		}
		r.active[session.SourceID] = session.ID
	}

	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *MemoryWorkSessionRepository) Update(ctx context.Context, session *domain.WorkSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; !exists {
		return fmt.Errorf("work session not found: %s", session.ID)
	}

	if session.IsActive {
		r.active[session.SourceID] = session.ID
	} else if r.active[session.SourceID] == session.ID {
		delete(r.active, session.SourceID)
	}

	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *MemoryWorkSessionRepository) FindActive(ctx context.Context, sourceID domain.SubjectID) (*domain.WorkSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.active[sourceID]
	if !exists {
		return nil, domain.ErrNoActiveSession
	}
	return r.sessions[id].Clone(), nil
}

func (r *MemoryWorkSessionRepository) List(ctx context.Context, filter domain.SessionFilter) ([]*domain.WorkSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.WorkSession
	for _, session := range r.sessions {
		if filter.Matches(session) {
			out = append(out, session.Clone())
		}
	}
	return out, nil
}
