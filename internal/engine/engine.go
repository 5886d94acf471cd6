// Package engine implements C9 RegistrationEngine and C10
// UpdateOrchestrator: the core business logic that mutates Event and
// Registration state under the KeyedLock/cache/store contracts described
// in the design.
package engine

import (
	"log/slog"

	"github.com/geocoder89/eventhub/internal/cache"
)

// Engine wires every component the registration operations depend on.
type Engine struct {
	Events        EventStore
	Registrations RegistrationStore
	Users         UserStore
	Locker        Locker
	EventCache    *cache.Cache
	Bus           Broadcaster
	SideEffects   Dispatcher
	Log           *slog.Logger

	DefaultTimezone string
}

func New(events EventStore, regs RegistrationStore, users UserStore, locker Locker, eventCache *cache.Cache, bus Broadcaster, dispatcher Dispatcher, log *slog.Logger, defaultTZ string) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}
	return &Engine{
		Events:          events,
		Registrations:   regs,
		Users:           users,
		Locker:          locker,
		EventCache:      eventCache,
		Bus:             bus,
		SideEffects:     dispatcher,
		Log:             log,
		DefaultTimezone: defaultTZ,
	}
}

func lockKey(eventID, roleID string) string {
	return "signup:" + eventID + ":" + roleID
}
