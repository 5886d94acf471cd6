package utils

import (
	"fmt"
	"strings"

	"github.com/geocoder89/eventhub/internal/domain/event"
)

// BuildEventsListCacheKey derives a deterministic cache key from every
// dimension of a listing query, so two requests with the same filter and
// page share a cache entry regardless of query-param ordering.
func BuildEventsListCacheKey(f event.ListEventsFilter) string {
	statuses := make([]string, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		statuses = append(statuses, string(s))
	}

	return fmt.Sprintf(
		"events:list:v1:status=%s:statuses=%s:type=%s:programId=%s:category=%s:search=%s:minP=%d:maxP=%d:from=%s:to=%s:sortBy=%s:sortOrder=%s:limit=%d:offset=%d:cursor=%s",
		f.Status, strings.Join(statuses, ","), f.Type, f.ProgramID, f.Category,
		strings.ToLower(strings.TrimSpace(f.Search)), f.MinParticipants, f.MaxParticipants,
		f.DateFrom, f.DateTo, f.SortBy, f.SortOrder, f.Limit, f.Offset, f.Cursor,
	)
}
