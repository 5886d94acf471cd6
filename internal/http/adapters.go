package http

import (
	"context"

	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/engine"
	"github.com/geocoder89/eventhub/internal/realtime"
	"github.com/geocoder89/eventhub/internal/sideeffects"
)

// broadcasterAdapter satisfies engine.Broadcaster over the concrete
// realtime.Hub, which the engine package doesn't import directly (see
// internal/engine/deps.go) to keep the Hub/Dispatcher wiring a router
// concern rather than an engine one.
type broadcasterAdapter struct {
	hub *realtime.Hub
}

func (a broadcasterAdapter) Publish(ctx context.Context, eventID string, kind string, userID, roleID string, view *event.Event) {
	a.hub.Publish(ctx, realtime.Message{
		EventID: eventID,
		Kind:    realtime.ChangeKind(kind),
		UserID:  userID,
		RoleID:  roleID,
		Event:   view,
	})
}

// dispatcherAdapter satisfies engine.Dispatcher over the concrete
// sideeffects.Dispatcher, translating engine.Trio (the engine's import-free
// mirror type) into sideeffects.Trio.
type dispatcherAdapter struct {
	d *sideeffects.Dispatcher
}

func (a dispatcherAdapter) Dispatch(trio engine.Trio) {
	recipients := make([]sideeffects.Recipient, 0, len(trio.Recipients))
	for _, r := range trio.Recipients {
		recipients = append(recipients, sideeffects.Recipient{
			UserID: r.UserID,
			Email:  r.Email,
			Name:   r.Name,
		})
	}
	a.d.Dispatch(sideeffects.Trio{
		EventID:      trio.EventID,
		Kind:         trio.Kind,
		Recipients:   recipients,
		EmailSubject: trio.EmailSubject,
		EmailBody:    trio.EmailBody,
		SystemTitle:  trio.SystemTitle,
		SystemBody:   trio.SystemBody,
		Actor:        trio.Actor,
		AuditDetail:  trio.AuditDetail,
		SkipAudit:    trio.SkipAudit,
	})
}
