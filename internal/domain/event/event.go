package event

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("event not found")
	ErrRoleNotFound  = errors.New("role not found on event")
	ErrRoleHasActive = errors.New("role has active registrations")
	ErrCapacityBelowActive = errors.New("maxParticipants cannot be reduced below active registration count")
)

// Format is the delivery mode of an event. It drives which location /
// virtual-meeting fields are required.
type Format string

const (
	FormatInPerson Format = "In-person"
	FormatOnline   Format = "Online"
	FormatHybrid   Format = "Hybrid Participation"
)

func (f Format) IsValid() bool {
	switch f {
	case FormatInPerson, FormatOnline, FormatHybrid:
		return true
	default:
		return false
	}
}

// RequiresLocation reports whether this format needs a physical location.
func (f Format) RequiresLocation() bool {
	return f != FormatOnline
}

// RequiresVirtualMeeting reports whether this format needs zoomLink/meetingId/passcode.
func (f Format) RequiresVirtualMeeting() bool {
	return f == FormatOnline || f == FormatHybrid
}

// Status is the lifecycle state of an event.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// DeriveStatus implements C4: pure now-vs-[start,end) classification. It
// never returns cancelled - callers must preserve a pre-existing cancelled
// status themselves, since cancellation is terminal with respect to
// auto-transitions (I4).
func DeriveStatus(startInstant, endInstant, now time.Time) Status {
	if endInstant.Before(startInstant) {
		endInstant = startInstant
	}
	switch {
	case now.Before(startInstant):
		return StatusUpcoming
	case now.Before(endInstant):
		return StatusOngoing
	default:
		return StatusCompleted
	}
}

// VirtualMeeting holds the fields required when a Role's format (via its
// parent Event) is Online or Hybrid Participation.
type VirtualMeeting struct {
	ZoomLink string `json:"zoomLink,omitempty"`
	MeetingID string `json:"meetingId,omitempty"`
	Passcode  string `json:"passcode,omitempty"`
}

func (v VirtualMeeting) IsZero() bool {
	return v.ZoomLink == "" && v.MeetingID == "" && v.Passcode == ""
}

// Role is a named signup slot on an Event. roleId is stable across event
// updates unless explicitly replaced (I6).
type Role struct {
	ID              string `json:"roleId"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	MaxParticipants int    `json:"maxParticipants"`
	OpenToPublic    bool   `json:"openToPublic"`
	Agenda          string `json:"agenda,omitempty"`
	StartTime       string `json:"startTime,omitempty"` // HH:MM, overrides event time when set
	EndTime         string `json:"endTime,omitempty"`

	// SignedUp is a derived, read-only count of active registrations for
	// this role. It is populated by the store on read, never persisted
	// independently of the registration set itself.
	SignedUp int `json:"signedUp"`
}

// OrganizerRef is a co-organizer reference with a display-name cache so
// listings don't need a join to render organizer names.
type OrganizerRef struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Event is the aggregate root owning an ordered Role sequence.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`

	Date     string `json:"date"` // YYYY-MM-DD, wall-clock
	EndDate  string `json:"endDate"`
	Time     string `json:"time"` // HH:MM
	EndTime  string `json:"endTime"`
	TimeZone string `json:"timeZone"` // IANA zone name, empty means UTC

	Format   Format `json:"format"`
	Location string `json:"location,omitempty"`
	VirtualMeeting

	Status              Status     `json:"status"`
	Publish             bool       `json:"publish"`
	AutoUnpublishedReason string   `json:"autoUnpublishedReason,omitempty"`
	AutoUnpublishedAt   *time.Time `json:"autoUnpublishedAt,omitempty"`

	Roles []Role `json:"roles"`

	// TotalSlots = sum(role.maxParticipants); SignedUp = count of active
	// registrations for this event. Both derived, recomputed by the store's
	// persist hook (C8) before every save.
	TotalSlots int `json:"totalSlots"`
	SignedUp   int `json:"signedUp"`

	CreatedBy        string         `json:"createdBy"`
	OrganizerDetails []OrganizerRef `json:"organizerDetails,omitempty"`
	ProgramLabels    []string       `json:"programLabels,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RoleByID returns a pointer into e.Roles for in-place mutation, or nil.
func (e *Event) RoleByID(roleID string) *Role {
	for i := range e.Roles {
		if e.Roles[i].ID == roleID {
			return &e.Roles[i]
		}
	}
	return nil
}

// RecomputeTotalSlots sets e.TotalSlots = sum(role.maxParticipants) (I2).
func (e *Event) RecomputeTotalSlots() {
	total := 0
	for _, r := range e.Roles {
		total += r.MaxParticipants
	}
	e.TotalSlots = total
}

type CreateEventRequest struct {
	Title       string `json:"title" binding:"required,min=2"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Date        string `json:"date" binding:"required"`
	EndDate     string `json:"endDate"`
	Time        string `json:"time" binding:"required"`
	EndTime     string `json:"endTime"`
	TimeZone    string `json:"timeZone"`
	Format      Format `json:"format" binding:"required"`
	Location    string `json:"location"`
	ZoomLink    string `json:"zoomLink"`
	MeetingID   string `json:"meetingId"`
	Passcode    string `json:"passcode"`
	Roles       []CreateRoleRequest `json:"roles" binding:"required,min=1,dive"`
	ProgramLabels []string `json:"programLabels"`
}

type CreateRoleRequest struct {
	Name            string `json:"name" binding:"required"`
	Description     string `json:"description"`
	MaxParticipants int    `json:"maxParticipants" binding:"required,gt=0"`
	OpenToPublic    bool   `json:"openToPublic"`
	Agenda          string `json:"agenda"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
}

// UpdateEventRequest is a partial update: nil pointers leave the field
// untouched. Roles, when present, drive the 11-step UpdateOrchestrator
// (C10) rather than a blind overwrite.
type UpdateEventRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Type        *string `json:"type,omitempty"`
	Date        *string `json:"date,omitempty"`
	EndDate     *string `json:"endDate,omitempty"`
	Time        *string `json:"time,omitempty"`
	EndTime     *string `json:"endTime,omitempty"`
	TimeZone    *string `json:"timeZone,omitempty"`
	Format      *Format `json:"format,omitempty"`
	Location    *string `json:"location,omitempty"`
	ZoomLink    *string `json:"zoomLink,omitempty"`
	MeetingID   *string `json:"meetingId,omitempty"`
	Passcode    *string `json:"passcode,omitempty"`
	Publish     *bool   `json:"publish,omitempty"`
	ProgramLabels []string `json:"programLabels,omitempty"`
	OrganizerDetails []OrganizerRef `json:"organizerDetails,omitempty"`

	Roles []RoleTemplate `json:"roles,omitempty"`
	// ForceRoleChanges allows role deletion/shrink below active
	// registration count by deleting every registration of the event (I7, I8).
	ForceRoleChanges bool `json:"forceDeleteRegistrations"`
}

// RoleTemplate is the desired end-state of a role within an update. A
// template with a matching existing Role.ID is treated as an edit; one
// without an ID (or with an ID not present on the event) is a new role.
type RoleTemplate struct {
	ID              string `json:"roleId,omitempty"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	MaxParticipants int    `json:"maxParticipants"`
	OpenToPublic    bool   `json:"openToPublic"`
	Agenda          string `json:"agenda"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
}

// SortField enumerates the stable sort keys accepted by ListEventsFilter.
type SortField string

const (
	SortByDate      SortField = "date"
	SortByTitle     SortField = "title"
	SortByOrganizer SortField = "organizer"
	SortByType      SortField = "type"
	SortByCreatedAt SortField = "createdAt"
	SortBySignedUp  SortField = "signedUp"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListEventsFilter is the full query surface for listing/searching events.
// Every field is optional; zero values mean "no filter on this dimension".
type ListEventsFilter struct {
	Status     Status
	Statuses   []Status
	Type       string
	ProgramID  string
	Category   string
	Search     string
	MinParticipants int
	MaxParticipants int
	DateFrom   string // YYYY-MM-DD, inclusive
	DateTo     string // YYYY-MM-DD, inclusive

	SortBy    SortField
	SortOrder SortOrder

	Limit  int
	Offset int
	Cursor string
}
