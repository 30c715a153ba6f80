package domain

import "time"

// WorkSession is one start..stop span of a source's working time.
type WorkSession struct {
	ID              string     `json:"id"`
	SourceID        SubjectID  `json:"sourceId"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt"`
	IsActive        bool       `json:"isActive"`
	IdleSeconds     int64      `json:"idleSeconds"`
	LastHeartbeatAt *time.Time `json:"lastHeartbeatAt"`
	Date            string     `json:"date"`
}

// ActiveSeconds is the elapsed time of the session, floored at zero.
// Open sessions are measured against now.
func (s *WorkSession) ActiveSeconds(now time.Time) int64 {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	secs := int64(end.Sub(s.StartedAt) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// Clone returns a deep copy safe to hand out of a repository.
func (s *WorkSession) Clone() *WorkSession {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.LastHeartbeatAt != nil {
		t := *s.LastHeartbeatAt
		c.LastHeartbeatAt = &t
	}
	return &c
}

// SessionFilter selects sessions whose StartedAt lies in [From, To].
type SessionFilter struct {
	From     time.Time
	To       time.Time
	SourceID SubjectID // empty means any source
}

// Matches reports whether s falls inside the filter.
func (f SessionFilter) Matches(s *WorkSession) bool {
	if f.SourceID != "" && s.SourceID != f.SourceID {
		return false
	}
	if !f.From.IsZero() && s.StartedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && s.StartedAt.After(f.To) {
		return false
	}
	return true
}

// SourceSummary aggregates a source's sessions over a range.
type SourceSummary struct {
	SourceID           SubjectID   `json:"sourceId"`
	LoginTimes         []time.Time `json:"loginTimes"`
	LogoutTimes        []time.Time `json:"logoutTimes"`
	TotalActiveSeconds int64       `json:"totalActiveSeconds"`
	TotalIdleSeconds   int64       `json:"totalIdleSeconds"`
	NetActiveSeconds   int64       `json:"netActiveSeconds"`
}

// SessionView is a single session with its derived totals.
type SessionView struct {
	ID               string     `json:"id"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt"`
	IsActive         bool       `json:"isActive"`
	ActiveSeconds    int64      `json:"activeSeconds"`
	IdleSeconds      int64      `json:"idleSeconds"`
	NetActiveSeconds int64      `json:"netActiveSeconds"`
}

// SourceSessions lists a source's sessions over a range.
type SourceSessions struct {
	SourceID SubjectID     `json:"sourceId"`
	Sessions []SessionView `json:"sessions"`
}
