// Package sweep implements the two periodic reconciliation passes from
// §4.11: status sweep (recompute Event.status from the clock) and counter
// sweep (reconcile Event.signedUp against the authoritative registration
// count). Both are safety nets for drift the post-commit hooks should have
// already prevented, not the primary source of truth.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/eventhub/internal/clock"
	"github.com/geocoder89/eventhub/internal/domain/event"
)

const pageSize = 200

// EventStore is the slice of the event store the sweeps need: full
// pagination plus a plain save, no registration dependency.
type EventStore interface {
	List(ctx context.Context, f event.ListEventsFilter) ([]event.Event, int, error)
	Save(ctx context.Context, e event.Event) (event.Event, error)
}

// RegistrationCounter resolves the authoritative per-event registration
// count the counter sweep reconciles against.
type RegistrationCounter interface {
	CountForEvent(ctx context.Context, eventID string) (int, error)
}

// Cache is the tag-invalidation surface both sweeps drive after a write.
type Cache interface {
	InvalidateByTags(tags ...string)
}

type Sweeper struct {
	Events        EventStore
	Registrations RegistrationCounter
	Cache         Cache
	Log           *slog.Logger
}

func New(events EventStore, regs RegistrationCounter, cache Cache, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{Events: events, Registrations: regs, Cache: cache, Log: log}
}

// nonCancelled pages through every event whose status isn't cancelled,
// invoking visit for each. A non-nil error from visit is logged and the
// sweep goes on with the next event - one bad event never blocks the rest.
func (s *Sweeper) nonCancelled(ctx context.Context, visit func(ctx context.Context, ev event.Event) error) error {
	statuses := []event.Status{event.StatusUpcoming, event.StatusOngoing, event.StatusCompleted}
	offset := 0
	for {
		page, total, err := s.Events.List(ctx, event.ListEventsFilter{
			Statuses: statuses,
			SortBy:   event.SortByCreatedAt,
			SortOrder: event.SortAsc,
			Limit:    pageSize,
			Offset:   offset,
		})
		if err != nil {
			return err
		}
		for _, ev := range page {
			if err := visit(ctx, ev); err != nil {
				s.Log.Warn("sweep: visit failed", "eventId", ev.ID, "error", err)
			}
		}
		offset += len(page)
		if len(page) < pageSize || offset >= total {
			return nil
		}
	}
}

// RunStatusSweep implements §4.11's status sweep: for every non-cancelled
// event, recompute status via C4; persist and invalidate only on change.
func (s *Sweeper) RunStatusSweep(ctx context.Context) error {
	changed := 0
	err := s.nonCancelled(ctx, func(ctx context.Context, ev event.Event) error {
		tz := ev.TimeZone
		if tz == "" {
			tz = "UTC"
		}
		startInstant, err := clock.ToInstant(ev.Date, ev.Time, tz)
		if err != nil {
			return err
		}
		endDate, endTime := ev.EndDate, ev.EndTime
		if endDate == "" {
			endDate = ev.Date
		}
		if endTime == "" {
			endTime = ev.Time
		}
		endInstant, err := clock.ToInstant(endDate, endTime, tz)
		if err != nil {
			return err
		}

		next := event.DeriveStatus(startInstant, endInstant, time.Now())
		if next == ev.Status {
			return nil
		}
		ev.Status = next
		ev.UpdatedAt = time.Now()
		if _, err := s.Events.Save(ctx, ev); err != nil {
			return err
		}
		s.Cache.InvalidateByTags("event:" + ev.ID)
		changed++
		return nil
	})
	if err != nil {
		return err
	}
	s.Log.Info("status sweep complete", "changed", changed)
	return nil
}

// RunCounterSweep implements §4.11's counter sweep: correct Event.signedUp
// whenever it drifts from the authoritative registration count.
func (s *Sweeper) RunCounterSweep(ctx context.Context) error {
	corrected := 0
	err := s.nonCancelled(ctx, func(ctx context.Context, ev event.Event) error {
		n, err := s.Registrations.CountForEvent(ctx, ev.ID)
		if err != nil {
			return err
		}
		if n == ev.SignedUp {
			return nil
		}
		ev.SignedUp = n
		ev.UpdatedAt = time.Now()
		if _, err := s.Events.Save(ctx, ev); err != nil {
			return err
		}
		s.Cache.InvalidateByTags("event:"+ev.ID, "analytics")
		corrected++
		return nil
	})
	if err != nil {
		return err
	}
	s.Log.Info("counter sweep complete", "corrected", corrected)
	return nil
}
