package services

import (
	"context"
	"time"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
	"worklens/pkg/batch"
	"worklens/pkg/utils"

	"go.uber.org/zap"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

// AuditService queues audit entries and writes them in batches. Append never
// blocks on storage and never reports failure to the caller.
type AuditService struct {
	repo    ports.AuditRepository
	batcher *batch.Batcher[*domain.AuditEntry]
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewAuditService(repo ports.AuditRepository, batchSize int, flushInterval time.Duration, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *AuditService {
	s := &AuditService{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	s.batcher = batch.NewBatcher[*domain.AuditEntry](batchSize, flushInterval, s,
		batch.WithErrorHandler(func(err error, entries []*domain.AuditEntry) {
			s.logger.Errorw("audit batch dropped", "entries", len(entries), "error", err)
		}),
	)
	return s
}

// Append implements ports.AuditEmitter.
func (s *AuditService) Append(ctx context.Context, auditType domain.AuditType, details domain.AuditDetails) {
	entry := &domain.AuditEntry{
		ID:        utils.GenerateAuditID(),
		Type:      auditType,
		Details:   details,
		Timestamp: s.now().UTC(),
	}
	if err := s.batcher.Add(entry); err != nil {
		s.metrics.AuditWritten(1, err)
		s.logger.Warnw("audit entry dropped", "type", string(auditType), "error", err)
	}
}

// ProcessBatch writes a batch to the repository.
func (s *AuditService) ProcessBatch(ctx context.Context, entries []*domain.AuditEntry) error {
	err := s.repo.Append(ctx, entries)
	s.metrics.AuditWritten(len(entries), err)
	return err
}

// List returns audit entries for a global viewer, newest first.
func (s *AuditService) List(ctx context.Context, viewer domain.Identity, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	if !CanReadAudit(viewer) {
		return nil, domain.ErrForbidden
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultAuditLimit
	case filter.Limit > maxAuditLimit:
		filter.Limit = maxAuditLimit
	}
	return s.repo.List(ctx, filter)
}

// Flush writes everything queued so far. A failure is logged and swallowed.
func (s *AuditService) Flush(ctx context.Context) {
	if err := s.batcher.Flush(ctx); err != nil {
		s.logger.Errorw("audit flush failed", "error", err)
	}
}

// Close drains the queue and stops the background writer.
func (s *AuditService) Close() {
	s.batcher.Close()
}
