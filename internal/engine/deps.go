package engine

import (
	"context"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/domain/registration"
	"github.com/geocoder89/eventhub/internal/domain/user"
)

// EventStore is C8's engine-facing surface.
type EventStore interface {
	GetByID(ctx context.Context, id string) (event.Event, error)
	// Save persists the full aggregate. Callers must call
	// event.Event.RecomputeTotalSlots and set SignedUp from
	// RegistrationStore.CountForEvent before calling Save - that's the
	// "persist hook" the spec assigns to the store, implemented here as an
	// engine-side helper (recomputeDerived) so Save itself stays a plain
	// SQL UPDATE with no hidden cross-store dependency.
	Save(ctx context.Context, e event.Event) (event.Event, error)
	CandidatesInRange(ctx context.Context, startDate, endDate, excludeEventID string) ([]event.Event, error)
}

// RegistrationStore is C7's engine-facing surface.
type RegistrationStore interface {
	FindOne(ctx context.Context, eventID, userID, roleID string) (registration.Registration, error)
	FindByUserEvent(ctx context.Context, eventID, userID string) ([]registration.Registration, error)
	CountForRole(ctx context.Context, eventID, roleID string) (int, error)
	CountForEvent(ctx context.Context, eventID string) (int, error)
	Create(ctx context.Context, reg registration.Registration) error
	UpdateRole(ctx context.Context, registrationID, newRoleID, newRoleName, newRoleDescription string, audit registration.AuditEntry) error
	DeleteOne(ctx context.Context, eventID, userID, roleID string) error
	DeleteAllForEvent(ctx context.Context, eventID string) error
	DeleteAllForRole(ctx context.Context, eventID, roleID string) error
	ListByEvent(ctx context.Context, eventID string) ([]registration.Registration, error)
}

// UserStore resolves actor/target identities for eligibility checks.
type UserStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// Locker is C2 KeyedLock's engine-facing surface.
type Locker interface {
	WithLock(ctx context.Context, key string, critical func(ctx context.Context) error) error
}

// Cache is the subset of C3 the engine drives directly (capacity counts,
// invalidation after writes).
type Cache interface {
	InvalidateByTags(tags ...string)
}

// Broadcaster is C11 RealtimeBus's publish surface.
type Broadcaster interface {
	Publish(ctx context.Context, eventID string, kind string, userID, roleID string, view *event.Event)
}

// Dispatcher is C12 SideEffectDispatcher's publish surface.
type Dispatcher interface {
	Dispatch(trio Trio)
}

// Trio mirrors sideeffects.Trio so this package doesn't need to import it
// directly for the interface boundary; dispatcherAdapter in internal/http
// adapts sideeffects.Dispatcher to this interface.
type Trio struct {
	EventID      string
	Kind         string
	Recipients   []TrioRecipient
	EmailSubject string
	EmailBody    string
	SystemTitle  string
	SystemBody   string
	Actor        string
	AuditDetail  string
	SkipAudit    bool
}

type TrioRecipient struct {
	UserID string
	Email  string
	Name   string
}

// LockTimeout is not applied by the engine operations: a KeyedLock wait ends
// when the ctx passed to the operation is done (the HTTP handlers give each
// engine call a 5s deadline).
const LockTimeout = 10 * time.Second
