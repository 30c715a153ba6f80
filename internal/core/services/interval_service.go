package services

import (
	"context"
	"errors"
	"fmt"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
	"worklens/pkg/validation"

	"go.uber.org/zap"
)

type IntervalService struct {
	repo      ports.IntervalRepository
	oracle    ports.TeamOracle
	notifier  ports.Notifier
	audit     ports.AuditEmitter
	publisher ports.EventPublisher
	allowed   []int
	logger    *zap.SugaredLogger
}

func NewIntervalService(
	repo ports.IntervalRepository,
	oracle ports.TeamOracle,
	notifier ports.Notifier,
	audit ports.AuditEmitter,
	allowedMinutes []int,
	logger *zap.SugaredLogger,
) *IntervalService {
	return &IntervalService{
		repo:     repo,
		oracle:   oracle,
		notifier: notifier,
		audit:    audit,
		allowed:  append([]int(nil), allowedMinutes...),
		logger:   logger,
	}
}

// SetPublisher makes pushes that miss locally go out on the event bus, so
// the instance holding the source's connection can deliver them.
func (s *IntervalService) SetPublisher(publisher ports.EventPublisher) {
	s.publisher = publisher
}

// AllowedMinutes returns the accepted capture cadences.
func (s *IntervalService) AllowedMinutes() []int {
	return append([]int(nil), s.allowed...)
}

// Assign stores a capture cadence for sourceID and pushes it to the source.
// A failed push is logged only; the source picks the value up on its next poll.
func (s *IntervalService) Assign(ctx context.Context, actor domain.Identity, sourceID domain.SubjectID, minutes int) (int, error) {
	if !actor.Role.IsViewer() {
		return 0, domain.ErrForbidden
	}
	if err := validation.ValidateIntervalMinutes(minutes, s.allowed); err != nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrInvalidInterval, err.Error())
	}

	ok, err := CanAssignInterval(ctx, s.oracle, actor, sourceID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrForbidden
	}

	seconds := minutes * 60
	if err := s.repo.Set(ctx, sourceID, seconds); err != nil {
		return 0, err
	}

	err = s.notifier.Notify(sourceID, domain.EventIntervalAssigned, domain.IntervalAssigned{
		SourceID:        sourceID,
		IntervalSeconds: seconds,
	})
	if errors.Is(err, domain.ErrNotDelivered) && s.publisher != nil {
		err = s.publisher.PublishIntervalAssigned(ctx, sourceID, seconds)
	}
	if err != nil {
		level := s.logger.Warnw
		if errors.Is(err, domain.ErrNotDelivered) {
			level = s.logger.Infow
		}
		level("interval push not delivered", "source_id", sourceID, "error", err)
	}

	s.audit.Append(ctx, domain.AuditIntervalAssigned, domain.AuditDetails{
		Actor:  actor.SubjectID,
		Target: sourceID,
		Params: map[string]any{"minutes": minutes, "seconds": seconds},
	})

	s.logger.Infow("capture interval assigned", "source_id", sourceID, "actor", actor.SubjectID, "seconds", seconds)
	return seconds, nil
}

// Get returns the stored cadence for sourceID.
func (s *IntervalService) Get(ctx context.Context, actor domain.Identity, sourceID domain.SubjectID) (domain.IntervalAssignment, error) {
	ok, err := CanReadInterval(ctx, s.oracle, actor, sourceID)
	if err != nil {
		return domain.IntervalAssignment{}, err
	}
	if !ok {
		return domain.IntervalAssignment{}, domain.ErrForbidden
	}

	seconds, found, err := s.repo.Get(ctx, sourceID)
	if err != nil {
		return domain.IntervalAssignment{}, err
	}
	if !found {
		return domain.IntervalAssignment{Assigned: false}, nil
	}
	return domain.IntervalAssignment{Assigned: true, IntervalSeconds: &seconds}, nil
}
