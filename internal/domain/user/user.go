package user

import "time"

// AuthRole is the authorization level used by the registration engine to
// gate role quotas and moderation permissions. It is distinct from an
// Event Role (a named signup slot on an event).
type AuthRole string

const (
	RoleSuperAdmin    AuthRole = "Super Admin"
	RoleAdministrator AuthRole = "Administrator"
	RoleLeader        AuthRole = "Leader"
	RoleGuestExpert   AuthRole = "Guest Expert"
	RoleParticipant   AuthRole = "Participant"
)

func (r AuthRole) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdministrator, RoleLeader, RoleGuestExpert, RoleParticipant:
		return true
	default:
		return false
	}
}

// unlimited marks a role quota with no cap (Super Admin, Administrator).
const unlimited = 1 << 30

// RoleQuota is the per-authorization-level ceiling on the number of
// distinct roles a single user may concurrently hold within one event.
var RoleQuota = map[AuthRole]int{
	RoleSuperAdmin:    unlimited,
	RoleAdministrator: unlimited,
	RoleLeader:        5,
	RoleGuestExpert:   4,
	RoleParticipant:   3,
}

func (r AuthRole) Quota() int {
	if q, ok := RoleQuota[r]; ok {
		return q
	}
	return 0
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Name         string    `json:"name"`
	Role         AuthRole  `json:"role"`
	IsActive     bool      `json:"isActive"`
	IsVerified   bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// EligibleForSelfSignup reports whether the user may register themself for
// an event role. Unverified or inactive users cannot self-signup.
func (u User) EligibleForSelfSignup() bool {
	return u.IsActive && u.IsVerified
}

// EligibleAssignmentTarget reports whether the user may be the target of an
// organizer-initiated assignment.
func (u User) EligibleAssignmentTarget() bool {
	return u.IsActive && u.IsVerified
}

// Snapshot captures the fields stored on a Registration at signup time so
// later user edits never retroactively alter past registrations.
type Snapshot struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func NewSnapshot(u User) Snapshot {
	return Snapshot{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   string(u.Role),
	}
}
