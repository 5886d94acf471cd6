package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geocoder89/eventhub/internal/actorctx"
	"github.com/geocoder89/eventhub/internal/clock"
	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/domain/user"
	"github.com/geocoder89/eventhub/internal/engineerr"
)

// ProgramAccessChecker resolves whether a user may link a non-free program
// to an event (isFree, listed mentor, or completed purchase - §4.10 step
// 6/7). The spec's data model has no Program entity of its own; this
// interface keeps the orchestrator honest about the dependency without
// inventing one. The default PermissiveProgramAccess grants every request,
// documented as an explicit Open Question decision.
type ProgramAccessChecker interface {
	HasAccess(ctx context.Context, programID, userID string) (bool, error)
}

type PermissiveProgramAccess struct{}

func (PermissiveProgramAccess) HasAccess(ctx context.Context, programID, userID string) (bool, error) {
	return true, nil
}

// UpdateInput is the patch plus control flags passed to UpdateOrchestrator.
type UpdateInput struct {
	Patch                 event.UpdateEventRequest
	SuppressNotifications bool
}

// UpdateResult reports whether the update triggered an auto-unpublish, so
// the handler can surface it per the §6 response shape.
type UpdateResult struct {
	Event           event.Event
	AutoUnpublished bool
}

// Update implements C10 UpdateOrchestrator's 11 ordered steps.
func (e *Engine) Update(ctx context.Context, eventID string, in UpdateInput, actor actorctx.Actor, programAccess ProgramAccessChecker) (UpdateResult, error) {
	if programAccess == nil {
		programAccess = PermissiveProgramAccess{}
	}

	// Step 1: Authorize.
	ev, err := e.Events.GetByID(ctx, eventID)
	if err != nil {
		return UpdateResult{}, engineerr.New(engineerr.KindNotFound, "event not found")
	}
	if !actor.HasAdminPrivileges() && !canModerate(ev, actor) {
		return UpdateResult{}, engineerr.New(engineerr.KindForbidden, "not authorized to edit this event")
	}

	patch := in.Patch
	before := ev

	// Step 2: Normalize fields.
	applyScalarPatch(&ev, patch)
	if ev.EndDate == "" {
		ev.EndDate = ev.Date
	}
	ev.ApplyFormatDefaults()

	tz := ev.TimeZone
	if tz == "" {
		tz = e.DefaultTimezone
	}
	startInstant, err := clock.ToInstant(ev.Date, ev.Time, tz)
	if err != nil {
		return UpdateResult{}, engineerr.Wrap(engineerr.KindValidation, "invalid start date/time", err)
	}
	endDate := ev.EndDate
	endTime := ev.EndTime
	if endTime == "" {
		endTime = ev.Time
	}
	endInstant, err := clock.ToInstant(endDate, endTime, tz)
	if err != nil {
		return UpdateResult{}, engineerr.Wrap(engineerr.KindValidation, "invalid end date/time", err)
	}
	if endInstant.Before(startInstant) {
		return UpdateResult{}, engineerr.New(engineerr.KindValidation, "endInstant must be >= startInstant")
	}

	// Step 3: Conflict check, only if a time field changed.
	timeFieldsChanged := before.Date != ev.Date || before.Time != ev.Time || before.EndDate != ev.EndDate || before.EndTime != ev.EndTime || before.TimeZone != ev.TimeZone
	if timeFieldsChanged {
		conflicts, err := e.ConflictDetector(ctx, ev.Date, ev.Time, ev.EndDate, endTime, tz, ev.ID)
		if err != nil {
			return UpdateResult{}, err
		}
		if len(conflicts) > 0 {
			return UpdateResult{}, engineerr.New(engineerr.KindConflict, fmt.Sprintf("time overlaps with %d other event(s)", len(conflicts)))
		}
	}

	// Step 4: Roles diff.
	if patch.Roles != nil {
		if err := e.diffRoles(ctx, &ev, patch.Roles, patch.ForceRoleChanges); err != nil {
			return UpdateResult{}, err
		}
	}

	// Step 5: Organizer details (tracked for step 10's notification list).
	oldOrganizers := before.OrganizerDetails
	if patch.OrganizerDetails != nil {
		ev.OrganizerDetails = patch.OrganizerDetails
	}
	newOrganizers := diffNewOrganizers(oldOrganizers, ev.OrganizerDetails)

	// Step 6 + 7: Program linkage and co-organizer program access.
	if patch.ProgramLabels != nil {
		ev.ProgramLabels = patch.ProgramLabels
	}
	if actor.Role == user.RoleLeader {
		for _, programID := range ev.ProgramLabels {
			ok, err := programAccess.HasAccess(ctx, programID, actor.UserID)
			if err != nil {
				return UpdateResult{}, err
			}
			if !ok {
				return UpdateResult{}, engineerr.New(engineerr.KindForbidden, fmt.Sprintf("no access to program %s", programID))
			}
		}
	}
	for _, org := range ev.OrganizerDetails {
		for _, programID := range ev.ProgramLabels {
			ok, err := programAccess.HasAccess(ctx, programID, org.UserID)
			if err != nil {
				return UpdateResult{}, err
			}
			if !ok {
				return UpdateResult{}, engineerr.New(engineerr.KindForbidden, fmt.Sprintf("co-organizer %s lacks access to program %s", org.UserID, programID))
			}
		}
	}

	// Step 8: Auto-unpublish check.
	autoUnpublished := false
	if patch.Publish != nil {
		ev.Publish = *patch.Publish
	}
	if ev.Publish {
		if !ev.RequiredFieldsPresent() {
			ev.Publish = false
			now := time.Now()
			ev.AutoUnpublishedAt = &now
			ev.AutoUnpublishedReason = "MISSING_REQUIRED_FIELDS"
			autoUnpublished = true
		} else {
			ev.AutoUnpublishedReason = ""
			ev.AutoUnpublishedAt = nil
		}
	}

	// Step 9: Persist.
	if err := e.recomputeDerived(ctx, &ev); err != nil {
		return UpdateResult{}, err
	}
	saved, err := e.Events.Save(ctx, ev)
	if err != nil {
		return UpdateResult{}, err
	}
	// No inverse program->event link sync is performed here; the event's
	// ProgramLabels are persisted with the event by the Save above.

	// Step 10: Notify (unless suppressed).
	if !in.SuppressNotifications {
		e.notifyUpdate(ctx, before, saved, newOrganizers, autoUnpublished, actor.UserID)
	}

	// Step 11: Cache.
	e.EventCache.InvalidateByTags("event:"+eventID, "analytics")

	return UpdateResult{Event: saved, AutoUnpublished: autoUnpublished}, nil
}

func applyScalarPatch(ev *event.Event, patch event.UpdateEventRequest) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&ev.Title, patch.Title)
	set(&ev.Description, patch.Description)
	set(&ev.Type, patch.Type)
	set(&ev.Date, patch.Date)
	set(&ev.EndDate, patch.EndDate)
	set(&ev.Time, patch.Time)
	set(&ev.EndTime, patch.EndTime)
	set(&ev.TimeZone, patch.TimeZone)
	set(&ev.Location, patch.Location)
	set(&ev.ZoomLink, patch.ZoomLink)
	set(&ev.MeetingID, patch.MeetingID)
	set(&ev.Passcode, patch.Passcode)
	if patch.Format != nil {
		ev.Format = *patch.Format
	}
}

// diffRoles implements step 4: force-delete-all, or per-role guard +
// id-preserving merge.
func (e *Engine) diffRoles(ctx context.Context, ev *event.Event, templates []event.RoleTemplate, force bool) error {
	if force {
		if err := e.Registrations.DeleteAllForEvent(ctx, ev.ID); err != nil {
			return err
		}
		ev.Roles = materializeRoles(templates)
		return nil
	}

	byID := make(map[string]event.RoleTemplate)
	for _, t := range templates {
		if t.ID != "" {
			byID[t.ID] = t
		}
	}

	for _, existing := range ev.Roles {
		if _, kept := byID[existing.ID]; !kept {
			count, err := e.Registrations.CountForRole(ctx, ev.ID, existing.ID)
			if err != nil {
				return err
			}
			if count > 0 {
				return engineerr.New(engineerr.KindRoleHasRegistrants, fmt.Sprintf("role %q has active registrations", existing.Name))
			}
		}
	}

	newRoles := make([]event.Role, 0, len(templates))
	existingByID := make(map[string]event.Role)
	for _, r := range ev.Roles {
		existingByID[r.ID] = r
	}

	for _, t := range templates {
		if t.ID != "" {
			if old, ok := existingByID[t.ID]; ok {
				count, err := e.Registrations.CountForRole(ctx, ev.ID, t.ID)
				if err != nil {
					return err
				}
				if t.MaxParticipants < count {
					return engineerr.New(engineerr.KindCapacityBelowUsage, fmt.Sprintf("role %q: maxParticipants below active count", old.Name))
				}
				newRoles = append(newRoles, mergeRole(old, t))
				continue
			}
		}
		newRoles = append(newRoles, newRoleFromTemplate(t))
	}

	ev.Roles = newRoles
	return nil
}

func materializeRoles(templates []event.RoleTemplate) []event.Role {
	out := make([]event.Role, 0, len(templates))
	for _, t := range templates {
		out = append(out, newRoleFromTemplate(t))
	}
	return out
}

func newRoleFromTemplate(t event.RoleTemplate) event.Role {
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	return event.Role{
		ID:              id,
		Name:            t.Name,
		Description:     t.Description,
		MaxParticipants: t.MaxParticipants,
		OpenToPublic:    t.OpenToPublic,
		Agenda:          t.Agenda,
		StartTime:       t.StartTime,
		EndTime:         t.EndTime,
	}
}

// mergeRole preserves roleId (I6). Agenda, startTime and endTime keep their
// old values when the template leaves them empty; name, description,
// maxParticipants and openToPublic are always taken from the template, so an
// openToPublic omitted from the patch reads as false.
func mergeRole(old event.Role, t event.RoleTemplate) event.Role {
	r := old
	r.Name = t.Name
	r.Description = t.Description
	r.MaxParticipants = t.MaxParticipants
	if t.Agenda != "" {
		r.Agenda = t.Agenda
	}
	if t.StartTime != "" {
		r.StartTime = t.StartTime
	}
	if t.EndTime != "" {
		r.EndTime = t.EndTime
	}
	r.OpenToPublic = t.OpenToPublic
	return r
}

func diffNewOrganizers(before, after []event.OrganizerRef) []event.OrganizerRef {
	beforeIDs := make(map[string]struct{}, len(before))
	for _, o := range before {
		beforeIDs[o.UserID] = struct{}{}
	}
	added := make([]event.OrganizerRef, 0)
	for _, o := range after {
		if _, ok := beforeIDs[o.UserID]; !ok {
			added = append(added, o)
		}
	}
	return added
}

func (e *Engine) notifyUpdate(ctx context.Context, before, after event.Event, newOrganizers []event.OrganizerRef, autoUnpublished bool, actor string) {
	if len(newOrganizers) > 0 {
		recipients := make([]TrioRecipient, 0, len(newOrganizers))
		for _, o := range newOrganizers {
			recipients = append(recipients, TrioRecipient{UserID: o.UserID, Name: o.DisplayName})
		}
		e.SideEffects.Dispatch(Trio{
			EventID:      after.ID,
			Kind:         "co_organizer_added",
			Recipients:   recipients,
			EmailSubject: fmt.Sprintf("You're now co-organizing %s", after.Title),
			SystemTitle:  "Added as co-organizer",
			Actor:        actor,
		})
	}

	regs, err := e.Registrations.ListByEvent(ctx, after.ID)
	if err == nil && len(regs) > 0 {
		recipients := make([]TrioRecipient, 0, len(regs))
		for _, r := range regs {
			recipients = append(recipients, TrioRecipient{UserID: r.UserSnapshot.UserID, Email: r.UserSnapshot.Email, Name: r.UserSnapshot.Name})
		}
		kind := "event_updated"
		if autoUnpublished {
			kind = "event_auto_unpublished"
		}
		e.SideEffects.Dispatch(Trio{
			EventID:      after.ID,
			Kind:         kind,
			Recipients:   recipients,
			EmailSubject: fmt.Sprintf("%s was updated", after.Title),
			SystemTitle:  "Event updated",
			Actor:        actor,
		})
	}

	e.Bus.Publish(ctx, after.ID, "event_updated", actor, "", &after)
}
