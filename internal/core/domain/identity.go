package domain

import (
	"fmt"
	"strings"
)

// SubjectID identifies an account. Sources and viewers share the namespace.
type SubjectID string

// Role is the closed set of account roles. The zero value is unauthenticated.
type Role int

const (
	RoleNone Role = iota
	RoleSource
	RoleTeamViewer
	RoleGlobalViewer
)

const (
	roleNameSource       = "employee"
	roleNameTeamViewer   = "manager"
	roleNameGlobalViewer = "super_admin"
)

// ParseRole maps a wire role name to a Role. Unknown names map to RoleNone.
func ParseRole(name string) Role {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case roleNameSource:
		return RoleSource
	case roleNameTeamViewer:
		return RoleTeamViewer
	case roleNameGlobalViewer:
		return RoleGlobalViewer
	default:
		return RoleNone
	}
}

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleSource:
		return roleNameSource
	case RoleTeamViewer:
		return roleNameTeamViewer
	case RoleGlobalViewer:
		return roleNameGlobalViewer
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed := ParseRole(string(text))
	if parsed == RoleNone && len(text) > 0 {
		return fmt.Errorf("unknown role %q", string(text))
	}
	*r = parsed
	return nil
}

// IsViewer reports whether the role may watch sources.
func (r Role) IsViewer() bool {
	return r == RoleTeamViewer || r == RoleGlobalViewer
}

// Identity is the authenticated principal behind a connection or request.
type Identity struct {
	SubjectID SubjectID
	NumericID int64
	Role      Role
}

// Anonymous is the identity of a connection without a valid credential.
var Anonymous = Identity{}

// Authenticated reports whether the identity carries a known role.
func (i Identity) Authenticated() bool {
	return i.Role != RoleNone && i.SubjectID != ""
}

// Account is a directory record.
type Account struct {
	SubjectID    SubjectID `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	Manager      SubjectID `json:"manager,omitempty"`
	NumericID    int64     `json:"id,omitempty"`
	PasswordHash string    `json:"passwordHash,omitempty"`
}

// Identity returns the identity an authenticated session for this account carries.
func (a *Account) Identity() Identity {
	return Identity{SubjectID: a.SubjectID, NumericID: a.NumericID, Role: a.Role}
}

// Scope is the set of sources a viewer may observe.
type Scope struct {
	All     bool
	Sources map[SubjectID]struct{}
}

// Contains reports whether sourceID is inside the scope.
func (s Scope) Contains(sourceID SubjectID) bool {
	if s.All {
		return true
	}
	_, ok := s.Sources[sourceID]
	return ok
}

// Empty reports whether the scope grants nothing.
func (s Scope) Empty() bool {
	return !s.All && len(s.Sources) == 0
}
