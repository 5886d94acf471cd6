package event

import (
	"time"

	"github.com/google/uuid"
)

// NewFromCreateRequest builds a fresh Event in upcoming/unpublished state.
// Publish is decided by the caller after running the format-required-field
// check (I5) since that check also needs the role set validated.
func NewFromCreateRequest(req CreateEventRequest) Event {
	now := time.Now()

	roles := make([]Role, 0, len(req.Roles))
	for _, rr := range req.Roles {
		roles = append(roles, Role{
			ID:              uuid.NewString(),
			Name:            rr.Name,
			Description:     rr.Description,
			MaxParticipants: rr.MaxParticipants,
			OpenToPublic:    rr.OpenToPublic,
			Agenda:          rr.Agenda,
			StartTime:       rr.StartTime,
			EndTime:         rr.EndTime,
		})
	}

	e := Event{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Date:        req.Date,
		EndDate:     req.EndDate,
		Time:        req.Time,
		EndTime:     req.EndTime,
		TimeZone:    req.TimeZone,
		Format:      req.Format,
		Location:    req.Location,
		VirtualMeeting: VirtualMeeting{
			ZoomLink:  req.ZoomLink,
			MeetingID: req.MeetingID,
			Passcode:  req.Passcode,
		},
		Status:        StatusUpcoming,
		Publish:       false,
		Roles:         roles,
		ProgramLabels: req.ProgramLabels,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	e.RecomputeTotalSlots()
	return e
}

// RequiredFieldsPresent implements the format-dependent half of I5: whether
// every field this event's format requires is populated.
func (e Event) RequiredFieldsPresent() bool {
	if e.Format.RequiresLocation() && e.Location == "" {
		return false
	}
	if e.Format.RequiresVirtualMeeting() && e.VirtualMeeting.IsZero() {
		return false
	}
	return len(e.Roles) > 0
}

// ApplyFormatDefaults fixes location to the literal "Online" and clears
// virtual-meeting fields when the format no longer needs them, per the
// Event attribute contract in the data model.
func (e *Event) ApplyFormatDefaults() {
	if e.Format == FormatOnline {
		e.Location = "Online"
	}
	if !e.Format.RequiresVirtualMeeting() {
		e.VirtualMeeting = VirtualMeeting{}
	}
}
