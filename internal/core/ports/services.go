package ports

import (
	"context"

	"worklens/internal/core/domain"
)

// Channel is one live control channel connection. Send must not block:
// it enqueues msg and reports false when the message was dropped.
type Channel interface {
	ID() string
	Identity() domain.Identity
	Send(msg []byte) bool
}

type IdentityResolver interface {
	ValidateToken(token string) (domain.Identity, error)
}

type TeamOracle interface {
	Scope(ctx context.Context, viewer domain.Identity) (domain.Scope, error)
	Authorized(ctx context.Context, viewer domain.Identity, sourceID domain.SubjectID) (bool, error)
	// TeamViewers returns the team-scoped viewers allowed to watch sourceID.
	// Global viewers are always allowed and are not listed.
	TeamViewers(ctx context.Context, sourceID domain.SubjectID) ([]domain.SubjectID, error)
}

// StreamTerminator turns a source's stream off from outside the control channel.
type StreamTerminator interface {
	ForceTerminate(sourceID domain.SubjectID, by domain.SubjectID, reason domain.TerminateReason)
}

// Notifier pushes an event to a source's private channel.
// It returns domain.ErrNotDelivered when the source is not connected.
type Notifier interface {
	Notify(sourceID domain.SubjectID, event string, payload any) error
}

// AuditEmitter appends audit records without blocking or failing the caller.
type AuditEmitter interface {
	Append(ctx context.Context, auditType domain.AuditType, details domain.AuditDetails)
}

// EventPublisher fans domain events out to other instances.
type EventPublisher interface {
	PublishSourceRemoved(ctx context.Context, sourceID, by domain.SubjectID) error
	PublishIntervalAssigned(ctx context.Context, sourceID domain.SubjectID, seconds int) error
}

type MetricsRecorder interface {
	ConnectionOpened(role domain.Role)
	ConnectionClosed(role domain.Role)
	SetSourcesOnline(n int)
	SetActiveStreams(n int)
	ControlMessage(event string, accepted bool)
	FrameRelayed(fanout int)
	FrameDropped(reason string)
	SendDropped()
	WorkSessionEvent(event string)
	AuditWritten(count int, err error)
}
