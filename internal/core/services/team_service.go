package services

import (
	"context"
	"errors"
	"fmt"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"

	"go.uber.org/zap"
)

// TeamService answers team membership questions straight from the directory
// so a change is visible to the next check.
type TeamService struct {
	directory  ports.Directory
	terminator ports.StreamTerminator
	publisher  ports.EventPublisher
	audit      ports.AuditEmitter
	logger     *zap.SugaredLogger
}

func NewTeamService(directory ports.Directory, logger *zap.SugaredLogger) *TeamService {
	return &TeamService{
		directory: directory,
		logger:    logger,
	}
}

// SetRemovalHooks wires the collaborators used by RemoveSource. The relay
// depends on the oracle, so these are attached after both exist.
func (s *TeamService) SetRemovalHooks(terminator ports.StreamTerminator, publisher ports.EventPublisher, audit ports.AuditEmitter) {
	s.terminator = terminator
	s.publisher = publisher
	s.audit = audit
}

func (s *TeamService) Scope(ctx context.Context, viewer domain.Identity) (domain.Scope, error) {
	switch viewer.Role {
	case domain.RoleGlobalViewer:
		return domain.Scope{All: true}, nil
	case domain.RoleTeamViewer:
		team, err := s.directory.TeamOf(ctx, viewer.SubjectID)
		if err != nil {
			return domain.Scope{}, err
		}
		sources := make(map[domain.SubjectID]struct{}, len(team))
		for _, id := range team {
			sources[id] = struct{}{}
		}
		return domain.Scope{Sources: sources}, nil
	default:
		return domain.Scope{}, nil
	}
}

func (s *TeamService) Authorized(ctx context.Context, viewer domain.Identity, sourceID domain.SubjectID) (bool, error) {
	switch viewer.Role {
	case domain.RoleGlobalViewer:
		return true, nil
	case domain.RoleTeamViewer:
		account, err := s.directory.Get(ctx, sourceID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return account.Role == domain.RoleSource && account.Manager == viewer.SubjectID, nil
	default:
		return false, nil
	}
}

func (s *TeamService) TeamViewers(ctx context.Context, sourceID domain.SubjectID) ([]domain.SubjectID, error) {
	account, err := s.directory.Get(ctx, sourceID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if account.Role != domain.RoleSource || account.Manager == "" {
		return nil, nil
	}
	return []domain.SubjectID{account.Manager}, nil
}

// RemoveSource deletes a source account and tears down its stream here and,
// through the event bus, on every other instance.
func (s *TeamService) RemoveSource(ctx context.Context, actor domain.Identity, sourceID domain.SubjectID) error {
	ok, err := CanRemoveSource(ctx, s, actor, sourceID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden
	}

	account, err := s.directory.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	if account.Role != domain.RoleSource {
		return fmt.Errorf("%w: %s is not a source account", domain.ErrInvalidInput, sourceID)
	}

	if err := s.directory.Delete(ctx, sourceID); err != nil {
		return err
	}

	if s.terminator != nil {
		s.terminator.ForceTerminate(sourceID, actor.SubjectID, domain.ReasonSourceRemoved)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSourceRemoved(ctx, sourceID, actor.SubjectID); err != nil {
			s.logger.Warnw("failed to publish source removal", "source_id", sourceID, "error", err)
		}
	}
	if s.audit != nil {
		s.audit.Append(ctx, domain.AuditSourceRemoved, domain.AuditDetails{
			Actor:  actor.SubjectID,
			Target: sourceID,
		})
	}

	s.logger.Infow("source removed", "source_id", sourceID, "actor", actor.SubjectID)
	return nil
}
