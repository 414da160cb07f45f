// Package session carries the signed-in user's identity through the core
// and stores refresh tokens and proposal drafts in Redis.
package session

import (
	"strings"
	"time"

	"proposaldesk/api/internal/rbac"
)

// Session is the explicit context handed to reconcilers, the lifecycle and
// the portal. Nothing in the core reads user identity from anywhere else.
type Session struct {
	Token        string    `json:"-"`
	RefreshToken string    `json:"-"`
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name"`
	Role         rbac.Role `json:"role"`
	JTI          string    `json:"jti,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`

	clock func() time.Time
}

// New builds a session for a user with the given role.
func New(userID, userName string, role rbac.Role) Session {
	return Session{UserID: userID, UserName: userName, Role: role}
}

// WithClock returns a copy of s that reports now() as the current time.
func (s Session) WithClock(now func() time.Time) Session {
	s.clock = now
	return s
}

// Now is the session's notion of the current time.
func (s Session) Now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

// Identity is the name used to match proposals assigned to this user. The
// user id wins over the display name.
func (s Session) Identity() string {
	if id := strings.TrimSpace(s.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(s.UserName)
}

func (s Session) IsAgent() bool      { return s.Role == rbac.RoleAgent }
func (s Session) IsSupervisor() bool { return s.Role == rbac.RoleSupervisor }
