package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"

	"go.uber.org/zap"
)

// ErrRelayClosed is returned by Register after Close.
var ErrRelayClosed = errors.New("relay closed")

type channelSet map[string]ports.Channel

// RelayService owns presence, private channels, viewer rooms and stream flags.
// All of them are guarded by mu. Oracle lookups happen before mu is taken and
// every send is a non-blocking enqueue, so mu is never held across I/O.
type RelayService struct {
	oracle  ports.TeamOracle
	audit   ports.AuditEmitter
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger

	mu        sync.RWMutex
	closed    bool
	viewers   channelSet                      // viewer connections
	private   map[domain.SubjectID]channelSet // source connections by subject
	presence  map[domain.SubjectID]int        // live source connection count
	rooms     map[domain.SubjectID]channelSet // viewer rooms by source
	streaming map[domain.SubjectID]bool
}

func NewRelayService(oracle ports.TeamOracle, audit ports.AuditEmitter, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *RelayService {
	return &RelayService{
		oracle:    oracle,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		viewers:   make(channelSet),
		private:   make(map[domain.SubjectID]channelSet),
		presence:  make(map[domain.SubjectID]int),
		rooms:     make(map[domain.SubjectID]channelSet),
		streaming: make(map[domain.SubjectID]bool),
	}
}

// Register adds a connection. Sources are marked online; viewers receive
// their presence:list snapshot inside the same critical section, so no
// presence change can be missed or precede it.
func (s *RelayService) Register(ctx context.Context, ch ports.Channel) error {
	id := ch.Identity()

	switch {
	case id.Role == domain.RoleSource:
		return s.markOnline(ctx, ch)
	case id.Role.IsViewer():
		return s.registerViewer(ctx, ch)
	default:
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return ErrRelayClosed
		}
		return nil
	}
}

// Unregister removes a connection and everything it joined.
func (s *RelayService) Unregister(ctx context.Context, ch ports.Channel) {
	id := ch.Identity()

	switch {
	case id.Role == domain.RoleSource:
		s.markOffline(ctx, ch)
	case id.Role.IsViewer():
		s.mu.Lock()
		delete(s.viewers, ch.ID())
		for sourceID, room := range s.rooms {
			delete(room, ch.ID())
			if len(room) == 0 {
				delete(s.rooms, sourceID)
			}
		}
		s.mu.Unlock()
	}
}

func (s *RelayService) registerViewer(ctx context.Context, ch ports.Channel) error {
	scope, err := s.oracle.Scope(ctx, ch.Identity())
	if err != nil {
		s.logger.Warnw("scope lookup failed, sending empty snapshot",
			"viewer_id", ch.Identity().SubjectID, "error", err)
		scope = domain.Scope{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrRelayClosed
	}

	s.viewers[ch.ID()] = ch
	s.sendLocked(ch, domain.EventPresenceList, domain.PresenceList{Users: s.snapshotLocked(scope)})
	return nil
}

func (s *RelayService) markOnline(ctx context.Context, ch ports.Channel) error {
	sourceID := ch.Identity().SubjectID
	audience := s.teamViewers(ctx, sourceID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrRelayClosed
	}

	set, ok := s.private[sourceID]
	if !ok {
		set = make(channelSet)
		s.private[sourceID] = set
	}
	set[ch.ID()] = ch

	s.presence[sourceID]++
	if s.presence[sourceID] == 1 {
		s.broadcastPresenceLocked(domain.EventPresenceOnline, sourceID, audience)
		s.metrics.SetSourcesOnline(len(s.presence))
		s.logger.Infow("source online", "source_id", sourceID)
	}
	return nil
}

// markOffline drops one source connection. On the last one the source
// leaves presence, its flag is cleared and the room told "offline", all in
// one critical section.
func (s *RelayService) markOffline(ctx context.Context, ch ports.Channel) {
	sourceID := ch.Identity().SubjectID
	audience := s.teamViewers(ctx, sourceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.private[sourceID]
	if !ok {
		return
	}
	if _, ok := set[ch.ID()]; !ok {
		return
	}
	delete(set, ch.ID())
	if len(set) == 0 {
		delete(s.private, sourceID)
	}

	s.presence[sourceID]--
	if s.presence[sourceID] > 0 {
		return
	}
	delete(s.presence, sourceID)

	s.setStreamingLocked(sourceID, false)
	s.broadcastRoomLocked(sourceID, domain.EventLiveViewTerminate, domain.LiveViewNotice{
		By:       sourceID,
		SourceID: sourceID,
		Reason:   domain.ReasonOffline,
	})
	s.broadcastPresenceLocked(domain.EventPresenceOffline, sourceID, audience)
	s.metrics.SetSourcesOnline(len(s.presence))
	s.logger.Infow("source offline", "source_id", sourceID)
}

// Start joins viewer to sourceID's room and turns the stream on.
// Unauthorized attempts are ignored without any observable effect.
func (s *RelayService) Start(ctx context.Context, viewer ports.Channel, sourceID domain.SubjectID) bool {
	id := viewer.Identity()
	if !s.allowed(ctx, CanStartLiveView, id, sourceID, domain.EventLiveViewStart) {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	room, ok := s.rooms[sourceID]
	if !ok {
		room = make(channelSet)
		s.rooms[sourceID] = room
	}
	room[viewer.ID()] = viewer
	s.setStreamingLocked(sourceID, true)
	s.sendPrivateLocked(sourceID, domain.EventLiveViewInitiate, domain.LiveViewNotice{
		By:       id.SubjectID,
		SourceID: sourceID,
	})
	s.mu.Unlock()

	s.metrics.ControlMessage(domain.EventLiveViewStart, true)
	s.audit.Append(ctx, domain.AuditLiveViewStarted, domain.AuditDetails{
		Actor:  id.SubjectID,
		Target: sourceID,
	})
	s.logger.Infow("live view started", "source_id", sourceID, "viewer_id", id.SubjectID)
	return true
}

// Stop removes the calling viewer from the room and turns the stream off.
// Co-viewers stay in the room and are told the stream stopped.
func (s *RelayService) Stop(ctx context.Context, viewer ports.Channel, sourceID domain.SubjectID) bool {
	id := viewer.Identity()
	if !s.allowed(ctx, CanStopLiveView, id, sourceID, domain.EventLiveViewStop) {
		return false
	}

	notice := domain.LiveViewNotice{
		By:       id.SubjectID,
		SourceID: sourceID,
		Reason:   domain.ReasonManagerStop,
	}

	s.mu.Lock()
	if room, ok := s.rooms[sourceID]; ok {
		delete(room, viewer.ID())
		if len(room) == 0 {
			delete(s.rooms, sourceID)
		}
	}
	s.setStreamingLocked(sourceID, false)
	s.sendPrivateLocked(sourceID, domain.EventLiveViewTerminate, notice)
	s.broadcastRoomLocked(sourceID, domain.EventLiveViewTerminate, notice)
	s.mu.Unlock()

	s.metrics.ControlMessage(domain.EventLiveViewStop, true)
	s.logger.Infow("live view stopped", "source_id", sourceID, "viewer_id", id.SubjectID)
	return true
}

// SourceTerminate lets a source end its own stream.
func (s *RelayService) SourceTerminate(identity domain.Identity, sourceID domain.SubjectID) bool {
	if !CanTerminateOwnStream(identity, sourceID) {
		s.metrics.ControlMessage(domain.EventLiveViewTerminate, false)
		return false
	}

	s.terminate(sourceID, identity.SubjectID, domain.ReasonEmployeeTerminate)
	s.metrics.ControlMessage(domain.EventLiveViewTerminate, true)
	return true
}

// ForceTerminate turns sourceID's stream off and tells its room why.
func (s *RelayService) ForceTerminate(sourceID, by domain.SubjectID, reason domain.TerminateReason) {
	s.terminate(sourceID, by, reason)
}

func (s *RelayService) terminate(sourceID, by domain.SubjectID, reason domain.TerminateReason) {
	s.mu.Lock()
	s.setStreamingLocked(sourceID, false)
	s.broadcastRoomLocked(sourceID, domain.EventLiveViewTerminate, domain.LiveViewNotice{
		By:       by,
		SourceID: sourceID,
		Reason:   reason,
	})
	s.mu.Unlock()

	s.logger.Infow("live view terminated", "source_id", sourceID, "by", by, "reason", string(reason))
}

// RelayFrame fans frame out to sourceID's room while the stream is on.
// The room is read under the lock, so a concurrent Start lands strictly
// before or after this frame for the joining viewer.
func (s *RelayService) RelayFrame(identity domain.Identity, frame domain.Frame) bool {
	if !CanPublishFrame(identity, frame.SourceID) {
		s.metrics.FrameDropped("unauthorized")
		return false
	}

	msg, err := domain.EncodeEvent(domain.EventLiveViewFrame, frame)
	if err != nil {
		s.logger.Warnw("failed to encode frame", "source_id", frame.SourceID, "error", err)
		s.metrics.FrameDropped("encode")
		return false
	}

	s.mu.RLock()
	if !s.streaming[frame.SourceID] {
		s.mu.RUnlock()
		s.metrics.FrameDropped("not_streaming")
		return false
	}
	room := s.rooms[frame.SourceID]
	fanout := 0
	for _, ch := range room {
		if ch.Send(msg) {
			fanout++
		} else {
			s.metrics.SendDropped()
		}
	}
	s.mu.RUnlock()

	s.metrics.FrameRelayed(fanout)
	return true
}

// Notify delivers an event to every live connection of sourceID.
func (s *RelayService) Notify(sourceID domain.SubjectID, event string, payload any) error {
	msg, err := domain.EncodeEvent(event, payload)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := false
	for _, ch := range s.private[sourceID] {
		if ch.Send(msg) {
			delivered = true
		} else {
			s.metrics.SendDropped()
		}
	}
	if !delivered {
		return domain.ErrNotDelivered
	}
	return nil
}

// Snapshot returns the online sources visible to viewer, sorted.
func (s *RelayService) Snapshot(ctx context.Context, viewer domain.Identity) ([]domain.SubjectID, error) {
	if !CanReadPresence(viewer) {
		return nil, domain.ErrForbidden
	}
	scope, err := s.oracle.Scope(ctx, viewer)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(scope), nil
}

// IsStreaming reports the stream flag of sourceID.
func (s *RelayService) IsStreaming(sourceID domain.SubjectID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming[sourceID]
}

// IsOnline reports whether sourceID has a live connection.
func (s *RelayService) IsOnline(sourceID domain.SubjectID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence[sourceID] > 0
}

// RoomSize returns the number of viewers in sourceID's room.
func (s *RelayService) RoomSize(sourceID domain.SubjectID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[sourceID])
}

// Accepting reports whether Register still admits connections.
func (s *RelayService) Accepting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Close drops every registry. Connections are closed by their owner.
func (s *RelayService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.viewers = make(channelSet)
	s.private = make(map[domain.SubjectID]channelSet)
	s.presence = make(map[domain.SubjectID]int)
	s.rooms = make(map[domain.SubjectID]channelSet)
	s.streaming = make(map[domain.SubjectID]bool)
	s.metrics.SetSourcesOnline(0)
	s.metrics.SetActiveStreams(0)
}

type authorizeFunc func(context.Context, ports.TeamOracle, domain.Identity, domain.SubjectID) (bool, error)

func (s *RelayService) allowed(ctx context.Context, check authorizeFunc, id domain.Identity, sourceID domain.SubjectID, event string) bool {
	ok, err := check(ctx, s.oracle, id, sourceID)
	if err != nil {
		s.logger.Warnw("authorization lookup failed", "event", event, "source_id", sourceID, "viewer_id", id.SubjectID, "error", err)
		ok = false
	}
	if !ok {
		s.metrics.ControlMessage(event, false)
		s.logger.Debugw("control message ignored", "event", event, "source_id", sourceID, "viewer_id", id.SubjectID)
	}
	return ok
}

func (s *RelayService) teamViewers(ctx context.Context, sourceID domain.SubjectID) map[domain.SubjectID]struct{} {
	ids, err := s.oracle.TeamViewers(ctx, sourceID)
	if err != nil {
		s.logger.Warnw("team lookup failed, presence goes to global viewers only", "source_id", sourceID, "error", err)
	}
	out := make(map[domain.SubjectID]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func (s *RelayService) snapshotLocked(scope domain.Scope) []domain.SubjectID {
	users := make([]domain.SubjectID, 0, len(s.presence))
	for id := range s.presence {
		if scope.Contains(id) {
			users = append(users, id)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

func (s *RelayService) setStreamingLocked(sourceID domain.SubjectID, on bool) {
	if s.streaming[sourceID] == on {
		return
	}
	if on {
		s.streaming[sourceID] = true
	} else {
		delete(s.streaming, sourceID)
	}
	s.metrics.SetActiveStreams(len(s.streaming))
}

func (s *RelayService) sendLocked(ch ports.Channel, event string, payload any) {
	msg, err := domain.EncodeEvent(event, payload)
	if err != nil {
		s.logger.Warnw("failed to encode event", "event", event, "error", err)
		return
	}
	if !ch.Send(msg) {
		s.metrics.SendDropped()
	}
}

func (s *RelayService) sendPrivateLocked(sourceID domain.SubjectID, event string, payload any) {
	set := s.private[sourceID]
	if len(set) == 0 {
		return
	}
	msg, err := domain.EncodeEvent(event, payload)
	if err != nil {
		s.logger.Warnw("failed to encode event", "event", event, "error", err)
		return
	}
	for _, ch := range set {
		if !ch.Send(msg) {
			s.metrics.SendDropped()
		}
	}
}

func (s *RelayService) broadcastRoomLocked(sourceID domain.SubjectID, event string, payload any) {
	room := s.rooms[sourceID]
	if len(room) == 0 {
		return
	}
	msg, err := domain.EncodeEvent(event, payload)
	if err != nil {
		s.logger.Warnw("failed to encode event", "event", event, "error", err)
		return
	}
	for _, ch := range room {
		if !ch.Send(msg) {
			s.metrics.SendDropped()
		}
	}
}

func (s *RelayService) broadcastPresenceLocked(event string, sourceID domain.SubjectID, teamViewers map[domain.SubjectID]struct{}) {
	msg, err := domain.EncodeEvent(event, domain.PresenceChange{UserID: sourceID})
	if err != nil {
		s.logger.Warnw("failed to encode event", "event", event, "error", err)
		return
	}
	for _, ch := range s.viewers {
		id := ch.Identity()
		if id.Role != domain.RoleGlobalViewer {
			if _, ok := teamViewers[id.SubjectID]; !ok {
				continue
			}
		}
		if !ch.Send(msg) {
			s.metrics.SendDropped()
		}
	}
}
