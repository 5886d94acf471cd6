package engine

import (
	"context"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/event"
)

// capacityCacheTTL bounds how long a cached role-count is trusted (C6:
// TTL <= 60s).
const capacityCacheTTL = 30 * time.Second

// cachedRoleCount implements the cached half of C6 CapacityCounter.count,
// used only for the pre-lock short-circuit (§4.9.1 step 6). The
// authoritative recheck inside KeyedLock always calls
// Registrations.CountForRole directly, bypassing this cache.
func (e *Engine) cachedRoleCount(ctx context.Context, eventID, roleID string) (int, error) {
	key := "capacity:" + eventID + ":" + roleID
	v, err := e.EventCache.GetOrSet(key, capacityCacheTTL, []string{"event:" + eventID}, func() (any, error) {
		return e.Registrations.CountForRole(ctx, eventID, roleID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// recomputeDerived implements the EventStore persist hook described in
// C8: before every save, totalSlots is recomputed from the role set and
// signedUp is recomputed from the authoritative registration count.
func (e *Engine) recomputeDerived(ctx context.Context, ev *event.Event) error {
	ev.RecomputeTotalSlots()
	n, err := e.Registrations.CountForEvent(ctx, ev.ID)
	if err != nil {
		return err
	}
	ev.SignedUp = n
	return nil
}
