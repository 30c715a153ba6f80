package ports

import (
	"context"

	"worklens/internal/core/domain"
)

// WorkSessionRepository stores work sessions. FindActive returns
// domain.ErrNoActiveSession when the source has no open session.
type WorkSessionRepository interface {
	Create(ctx context.Context, session *domain.WorkSession) error
	Update(ctx context.Context, session *domain.WorkSession) error
	FindActive(ctx context.Context, sourceID domain.SubjectID) (*domain.WorkSession, error)
	List(ctx context.Context, filter domain.SessionFilter) ([]*domain.WorkSession, error)
}

type IntervalRepository interface {
	Set(ctx context.Context, sourceID domain.SubjectID, seconds int) error
	Get(ctx context.Context, sourceID domain.SubjectID) (seconds int, ok bool, err error)
}

// AuditRepository is append-only. List returns newest first.
type AuditRepository interface {
	Append(ctx context.Context, entries []*domain.AuditEntry) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error)
}

// Directory is the account store. Get returns domain.ErrAccountNotFound for
// unknown subjects.
type Directory interface {
	Get(ctx context.Context, id domain.SubjectID) (*domain.Account, error)
	Put(ctx context.Context, account *domain.Account) error
	Delete(ctx context.Context, id domain.SubjectID) error
	TeamOf(ctx context.Context, manager domain.SubjectID) ([]domain.SubjectID, error)
	List(ctx context.Context) ([]*domain.Account, error)
}

// Locker runs fn while holding an exclusive lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}
