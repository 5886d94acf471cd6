package engine

import (
	"context"
	"time"

	"github.com/geocoder89/eventhub/internal/clock"
	"github.com/geocoder89/eventhub/internal/domain/event"
)

// ConflictDetector implements C5: given a candidate window, returns the
// list of non-cancelled events whose [start, end) overlaps it. Overlap
// rule: newStart < evEnd && newEnd > evStart (touching boundaries allowed
// - an event ending exactly when another starts is not a conflict). When
// no explicit end is given (point-in-time query), end is nudged to
// start+1 minute.
func (e *Engine) ConflictDetector(ctx context.Context, startDate, startTime, endDate, endTime, tz, excludeEventID string) ([]event.Event, error) {
	if tz == "" {
		tz = e.DefaultTimezone
	}
	if endDate == "" {
		endDate = startDate
	}

	newStart, err := clock.ToInstant(startDate, startTime, tz)
	if err != nil {
		return nil, err
	}

	var newEnd time.Time
	if endTime == "" {
		newEnd = newStart.Add(time.Minute)
	} else {
		newEnd, err = clock.ToInstant(endDate, endTime, tz)
		if err != nil {
			return nil, err
		}
	}

	candidates, err := e.Events.CandidatesInRange(ctx, startDate, endDate, excludeEventID)
	if err != nil {
		return nil, err
	}

	conflicts := make([]event.Event, 0)
	for _, cand := range candidates {
		candTZ := cand.TimeZone
		if candTZ == "" {
			candTZ = e.DefaultTimezone
		}
		candEndDate := cand.EndDate
		if candEndDate == "" {
			candEndDate = cand.Date
		}
		candEndTime := cand.EndTime
		if candEndTime == "" {
			candEndTime = cand.Time
		}

		evStart, err := clock.ToInstant(cand.Date, cand.Time, candTZ)
		if err != nil {
			continue
		}
		evEnd, err := clock.ToInstant(candEndDate, candEndTime, candTZ)
		if err != nil {
			continue
		}
		if candEndTime == cand.Time && candEndDate == cand.Date {
			evEnd = evStart.Add(time.Minute)
		}

		if newStart.Before(evEnd) && newEnd.After(evStart) {
			conflicts = append(conflicts, cand)
		}
	}

	return conflicts, nil
}
