package domain

import "time"

// AuditType names a privileged action.
type AuditType string

const (
	AuditLiveViewStarted  AuditType = "live_view_started"
	AuditIntervalAssigned AuditType = "interval_assigned"
	AuditSourceRemoved    AuditType = "source_removed"
)

// AuditDetails describes who did what to whom.
type AuditDetails struct {
	Actor  SubjectID      `json:"actor"`
	Target SubjectID      `json:"target"`
	Params map[string]any `json:"params,omitempty"`
}

// AuditEntry is an append-only audit record.
type AuditEntry struct {
	ID        string       `json:"id"`
	Type      AuditType    `json:"type"`
	Details   AuditDetails `json:"details"`
	Timestamp time.Time    `json:"timestamp"`
}

// AuditFilter narrows an audit listing. Zero fields match everything.
type AuditFilter struct {
	Actor  SubjectID
	Target SubjectID
	Type   AuditType
	Limit  int
}

// Matches reports whether e passes the filter, ignoring Limit.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	if f.Actor != "" && e.Details.Actor != f.Actor {
		return false
	}
	if f.Target != "" && e.Details.Target != f.Target {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return true
}
