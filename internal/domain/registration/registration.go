package registration

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/geocoder89/eventhub/internal/domain/user"
)

var (
	ErrAlreadyRegistered = errors.New("registration already exists")
	ErrEventFull         = errors.New("role is full")
	ErrNotFound          = errors.New("registration not found")
	ErrRoleMismatch      = errors.New("roleId does not match an existing role on the event")
	ErrQuotaExceeded     = errors.New("user has reached their role quota for this event")
)

// RegisteredBy records whether a registration was created by the user
// themself or by an organizer acting on their behalf.
type RegisteredBy string

const (
	RegisteredBySelf      RegisteredBy = "self"
	RegisteredByOrganizer RegisteredBy = "organizer"
)

// EventSnapshot captures the event/role facts relevant to a registration at
// the moment it was written, so later event edits never retroactively
// rewrite history a user was shown at signup time (I11).
type EventSnapshot struct {
	Title           string `json:"title"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	RoleName        string `json:"roleName"`
	RoleDescription string `json:"roleDescription,omitempty"`
	Location        string `json:"location,omitempty"`
	Format          string `json:"format"`
	ZoomLink        string `json:"zoomLink,omitempty"`
	MeetingID       string `json:"meetingId,omitempty"`
	Passcode        string `json:"passcode,omitempty"`
	Purpose         string `json:"purpose,omitempty"`
}

// AuditEntry is one append-only record of an action taken against a
// registration (signup, cancel, move, assign, remove).
type AuditEntry struct {
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment,omitempty"`
}

type Registration struct {
	ID      string `json:"id"`
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
	RoleID  string `json:"roleId"`

	RegistrationDate time.Time `json:"registrationDate"`

	Notes               string `json:"notes,omitempty"`
	SpecialRequirements string `json:"specialRequirements,omitempty"`

	RegisteredBy RegisteredBy `json:"registeredBy"`

	UserSnapshot  user.Snapshot `json:"userSnapshot"`
	EventSnapshot EventSnapshot `json:"eventSnapshot"`

	AuditTrail []AuditEntry `json:"auditTrail"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AppendAudit appends one entry to the trail and bumps UpdatedAt. The trail
// itself is append-only (I11) - callers never rewrite prior entries.
func (r *Registration) AppendAudit(action, actor, comment string) {
	r.AuditTrail = append(r.AuditTrail, AuditEntry{
		Action:    action,
		Actor:     actor,
		Timestamp: time.Now(),
		Comment:   comment,
	})
	r.UpdatedAt = time.Now()
}

type CreateRegistrationRequest struct {
	EventID             string       `json:"-"`
	UserID              string       `json:"-"`
	RoleID              string       `json:"roleId" binding:"required"`
	Notes               string       `json:"notes"`
	SpecialRequirements string       `json:"specialRequirements"`
	RegisteredBy        RegisteredBy `json:"-"`
}

// NewFromCreateRequest builds a Registration from the incoming DTO plus the
// user/event snapshots taken at write time. The snapshots are immutable
// after this point except roleName/roleDescription on a role-move (I11).
func NewFromCreateRequest(req CreateRegistrationRequest, userSnap user.Snapshot, eventSnap EventSnapshot) Registration {
	now := time.Now()
	r := Registration{
		ID:                  uuid.NewString(),
		EventID:             req.EventID,
		UserID:              req.UserID,
		RoleID:              req.RoleID,
		RegistrationDate:    now,
		Notes:               req.Notes,
		SpecialRequirements: req.SpecialRequirements,
		RegisteredBy:        req.RegisteredBy,
		UserSnapshot:        userSnap,
		EventSnapshot:       eventSnap,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	actor := req.UserID
	action := "signup"
	if req.RegisteredBy == RegisteredByOrganizer {
		action = "assign"
	}
	r.AppendAudit(action, actor, "")
	return r
}
