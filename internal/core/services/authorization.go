package services

import (
	"context"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
)

// One function per privileged operation. Team-scoped checks always go to the
// oracle; nothing here caches membership.

func viewerAuthorized(ctx context.Context, oracle ports.TeamOracle, viewer domain.Identity, sourceID domain.SubjectID) (bool, error) {
	switch viewer.Role {
	case domain.RoleGlobalViewer:
		return true, nil
	case domain.RoleTeamViewer:
		return oracle.Authorized(ctx, viewer, sourceID)
	default:
		return false, nil
	}
}

// CanStartLiveView reports whether viewer may join sourceID's room.
func CanStartLiveView(ctx context.Context, oracle ports.TeamOracle, viewer domain.Identity, sourceID domain.SubjectID) (bool, error) {
	return viewerAuthorized(ctx, oracle, viewer, sourceID)
}

// CanStopLiveView uses the same rule as start.
func CanStopLiveView(ctx context.Context, oracle ports.TeamOracle, viewer domain.Identity, sourceID domain.SubjectID) (bool, error) {
	return viewerAuthorized(ctx, oracle, viewer, sourceID)
}

// CanTerminateOwnStream: only the source itself, for its own id.
func CanTerminateOwnStream(identity domain.Identity, sourceID domain.SubjectID) bool {
	return identity.Role == domain.RoleSource && identity.SubjectID == sourceID
}

// CanPublishFrame: only the source itself, for its own id.
func CanPublishFrame(identity domain.Identity, sourceID domain.SubjectID) bool {
	return identity.Role == domain.RoleSource && identity.SubjectID == sourceID
}

// CanTrackWork gates the work session endpoints, which act on the caller's own id.
func CanTrackWork(identity domain.Identity) bool {
	return identity.Role == domain.RoleSource && identity.SubjectID != ""
}

// CanAssignInterval: team viewers inside their team, global viewers anywhere.
func CanAssignInterval(ctx context.Context, oracle ports.TeamOracle, actor domain.Identity, sourceID domain.SubjectID) (bool, error) {
	return viewerAuthorized(ctx, oracle, actor, sourceID)
}

// CanReadInterval: a source reads its own value, a viewer its own id or any
// source it may watch.
func CanReadInterval(ctx context.Context, oracle ports.TeamOracle, actor domain.Identity, sourceID domain.SubjectID) (bool, error) {
	if actor.Role == domain.RoleSource {
		return actor.SubjectID == sourceID, nil
	}
	if actor.Role.IsViewer() && actor.SubjectID == sourceID {
		return true, nil
	}
	return viewerAuthorized(ctx, oracle, actor, sourceID)
}

// CanReadWorkReports gates the summary and session listings. Results are
// further narrowed by the viewer's Scope.
func CanReadWorkReports(identity domain.Identity) bool {
	return identity.Role.IsViewer()
}

// CanReadPresence gates the presence snapshot.
func CanReadPresence(identity domain.Identity) bool {
	return identity.Role.IsViewer()
}

// CanRemoveSource: team viewers for their own team, global viewers for any source.
func CanRemoveSource(ctx context.Context, oracle ports.TeamOracle, actor domain.Identity, sourceID domain.SubjectID) (bool, error) {
	return viewerAuthorized(ctx, oracle, actor, sourceID)
}

// CanReadAudit: global viewers only.
func CanReadAudit(identity domain.Identity) bool {
	return identity.Role == domain.RoleGlobalViewer
}
