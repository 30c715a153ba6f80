package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
	"worklens/pkg/utils"

	"go.uber.org/zap"
)

type WorkSessionService struct {
	repo       ports.WorkSessionRepository
	locker     ports.Locker
	oracle     ports.TeamOracle
	terminator ports.StreamTerminator
	metrics    ports.MetricsRecorder
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewWorkSessionService(
	repo ports.WorkSessionRepository,
	locker ports.Locker,
	oracle ports.TeamOracle,
	terminator ports.StreamTerminator,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *WorkSessionService {
	return &WorkSessionService{
		repo:       repo,
		locker:     locker,
		oracle:     oracle,
		terminator: terminator,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (s *WorkSessionService) SetClock(now func() time.Time) {
	s.now = now
}

func lockKey(sourceID domain.SubjectID) string {
	return "work:" + string(sourceID)
}

// Start returns the source's active session, creating one if none exists.
// created is false when an existing session was returned.
func (s *WorkSessionService) Start(ctx context.Context, identity domain.Identity) (session *domain.WorkSession, created bool, err error) {
	if !CanTrackWork(identity) {
		return nil, false, domain.ErrForbidden
	}
	sourceID := identity.SubjectID

	err = s.locker.WithLock(ctx, lockKey(sourceID), func() error {
		active, err := s.repo.FindActive(ctx, sourceID)
		if err == nil {
			session = active
			return nil
		}
		if !errors.Is(err, domain.ErrNoActiveSession) {
			return err
		}

		now := s.now().UTC()
		session = &domain.WorkSession{
			ID:        utils.GenerateSessionID(),
			SourceID:  sourceID,
			StartedAt: now,
			IsActive:  true,
			Date:      utils.Day(now),
		}
		if err := s.repo.Create(ctx, session); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.metrics.WorkSessionEvent("start")
		s.logger.Infow("work session started", "source_id", sourceID, "session_id", session.ID)
	}
	return session, created, nil
}

// Heartbeat adds a client-reported idle delta, clamped at zero, to the
// active session.
func (s *WorkSessionService) Heartbeat(ctx context.Context, identity domain.Identity, idleDeltaSeconds float64) (*domain.WorkSession, error) {
	if !CanTrackWork(identity) {
		return nil, domain.ErrForbidden
	}
	sourceID := identity.SubjectID

	delta := idleDelta(idleDeltaSeconds)

	var session *domain.WorkSession
	err := s.locker.WithLock(ctx, lockKey(sourceID), func() error {
		active, err := s.repo.FindActive(ctx, sourceID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if active.IdleSeconds > math.MaxInt64-delta {
			active.IdleSeconds = math.MaxInt64
		} else {
			active.IdleSeconds += delta
		}
		active.LastHeartbeatAt = &now
		if err := s.repo.Update(ctx, active); err != nil {
			return err
		}
		session = active
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.WorkSessionEvent("heartbeat")
	s.logger.Debugw("work heartbeat", "source_id", sourceID, "idle_delta", delta, "idle_seconds", session.IdleSeconds)
	return session, nil
}

// maxIdleDeltaSeconds bounds one heartbeat so the conversion stays in range.
const maxIdleDeltaSeconds = float64(math.MaxInt32)

// idleDelta truncates d to whole seconds within [0, maxIdleDeltaSeconds].
func idleDelta(d float64) int64 {
	if math.IsNaN(d) || d <= 0 {
		return 0
	}
	return int64(math.Min(math.Trunc(d), maxIdleDeltaSeconds))
}

// Stop closes the active session and forces the source's stream off.
func (s *WorkSessionService) Stop(ctx context.Context, identity domain.Identity) (*domain.WorkSession, error) {
	if !CanTrackWork(identity) {
		return nil, domain.ErrForbidden
	}
	sourceID := identity.SubjectID

	var session *domain.WorkSession
	err := s.locker.WithLock(ctx, lockKey(sourceID), func() error {
		active, err := s.repo.FindActive(ctx, sourceID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		active.EndedAt = &now
		active.IsActive = false
		if err := s.repo.Update(ctx, active); err != nil {
			return err
		}
		session = active
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.terminator.ForceTerminate(sourceID, sourceID, domain.ReasonWorkStop)

	s.metrics.WorkSessionEvent("stop")
	s.logger.Infow("work session stopped", "source_id", sourceID, "session_id", session.ID,
		"active_seconds", session.ActiveSeconds(*session.EndedAt), "idle_seconds", session.IdleSeconds)
	return session, nil
}

// TodayFilter selects sessions started on the current UTC day.
func (s *WorkSessionService) TodayFilter(sourceID domain.SubjectID) domain.SessionFilter {
	from := utils.StartOfDay(s.now())
	return domain.SessionFilter{
		From:     from,
		To:       from.Add(24*time.Hour - time.Nanosecond),
		SourceID: sourceID,
	}
}

// Summary aggregates sessions per source for viewer's scope.
func (s *WorkSessionService) Summary(ctx context.Context, viewer domain.Identity, filter domain.SessionFilter) ([]domain.SourceSummary, error) {
	grouped, order, err := s.scopedSessions(ctx, viewer, filter)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out := make([]domain.SourceSummary, 0, len(order))
	for _, sourceID := range order {
		out = append(out, Summarize(sourceID, grouped[sourceID], now))
	}
	return out, nil
}

// Sessions lists sessions per source for viewer's scope.
func (s *WorkSessionService) Sessions(ctx context.Context, viewer domain.Identity, filter domain.SessionFilter) ([]domain.SourceSessions, error) {
	grouped, order, err := s.scopedSessions(ctx, viewer, filter)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out := make([]domain.SourceSessions, 0, len(order))
	for _, sourceID := range order {
		views := make([]domain.SessionView, 0, len(grouped[sourceID]))
		for _, session := range grouped[sourceID] {
			active := session.ActiveSeconds(now)
			views = append(views, domain.SessionView{
				ID:               session.ID,
				StartedAt:        session.StartedAt,
				EndedAt:          session.EndedAt,
				IsActive:         session.IsActive,
				ActiveSeconds:    active,
				IdleSeconds:      session.IdleSeconds,
				NetActiveSeconds: max(0, active-session.IdleSeconds),
			})
		}
		out = append(out, domain.SourceSessions{SourceID: sourceID, Sessions: views})
	}
	return out, nil
}

// scopedSessions loads sessions matching filter, keeps those inside viewer's
// scope and groups them by source, ordered by startedAt. Team members
// without sessions still get an (empty) entry.
func (s *WorkSessionService) scopedSessions(ctx context.Context, viewer domain.Identity, filter domain.SessionFilter) (map[domain.SubjectID][]*domain.WorkSession, []domain.SubjectID, error) {
	if !CanReadWorkReports(viewer) {
		return nil, nil, domain.ErrForbidden
	}

	scope, err := s.oracle.Scope(ctx, viewer)
	if err != nil {
		return nil, nil, err
	}
	if filter.SourceID != "" && !scope.Contains(filter.SourceID) {
		return nil, nil, domain.ErrForbidden
	}

	sessions, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	grouped := make(map[domain.SubjectID][]*domain.WorkSession)
	if filter.SourceID != "" {
		grouped[filter.SourceID] = nil
	} else if !scope.All {
		for id := range scope.Sources {
			grouped[id] = nil
		}
	}
	for _, session := range sessions {
		if !scope.Contains(session.SourceID) || !filter.Matches(session) {
			continue
		}
		grouped[session.SourceID] = append(grouped[session.SourceID], session)
	}

	order := make([]domain.SubjectID, 0, len(grouped))
	for id, list := range grouped {
		sort.Slice(list, func(i, j int) bool { return list[i].StartedAt.Before(list[j].StartedAt) })
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return grouped, order, nil
}

// Summarize folds sessions, already ordered by startedAt, into one summary.
// Net active time is floored at zero on the aggregate.
func Summarize(sourceID domain.SubjectID, sessions []*domain.WorkSession, now time.Time) domain.SourceSummary {
	summary := domain.SourceSummary{
		SourceID:    sourceID,
		LoginTimes:  make([]time.Time, 0, len(sessions)),
		LogoutTimes: make([]time.Time, 0, len(sessions)),
	}
	for _, session := range sessions {
		summary.TotalActiveSeconds += session.ActiveSeconds(now)
		summary.TotalIdleSeconds += session.IdleSeconds
		summary.LoginTimes = append(summary.LoginTimes, session.StartedAt)
		if session.EndedAt != nil {
			summary.LogoutTimes = append(summary.LogoutTimes, *session.EndedAt)
		}
	}
	sort.Slice(summary.LogoutTimes, func(i, j int) bool { return summary.LogoutTimes[i].Before(summary.LogoutTimes[j]) })
	summary.NetActiveSeconds = max(0, summary.TotalActiveSeconds-summary.TotalIdleSeconds)
	return summary
}
