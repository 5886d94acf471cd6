package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/eventhub/internal/domain/event"
)

// EventsRepo is the Postgres-backed implementation of C8 EventStore.
// Roles, organizerDetails and programLabels are stored as JSONB so the
// whole aggregate (Event owns its Role set) round-trips in one row.
type EventsRepo struct {
	pool *pgxpool.Pool
}

func NewEventsRepo(pool *pgxpool.Pool) *EventsRepo {
	return &EventsRepo{pool: pool}
}

const eventCols = `id, title, description, type, date, end_date, "time", end_time, time_zone,
	format, location, zoom_link, meeting_id, passcode, status, publish,
	auto_unpublished_reason, auto_unpublished_at, roles, total_slots, signed_up,
	created_by, organizer_details, program_labels, created_at, updated_at`

func scanEvent(row pgx.Row) (event.Event, error) {
	var e event.Event
	var roles, organizers, labels []byte
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Type, &e.Date, &e.EndDate, &e.Time, &e.EndTime, &e.TimeZone,
		&e.Format, &e.Location, &e.ZoomLink, &e.MeetingID, &e.Passcode, &e.Status, &e.Publish,
		&e.AutoUnpublishedReason, &e.AutoUnpublishedAt, &roles, &e.TotalSlots, &e.SignedUp,
		&e.CreatedBy, &organizers, &labels, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return event.Event{}, err
	}
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &e.Roles); err != nil {
			return event.Event{}, err
		}
	}
	if len(organizers) > 0 {
		if err := json.Unmarshal(organizers, &e.OrganizerDetails); err != nil {
			return event.Event{}, err
		}
	}
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &e.ProgramLabels); err != nil {
			return event.Event{}, err
		}
	}
	return e, nil
}

func (r *EventsRepo) Create(ctx context.Context, e event.Event) (event.Event, error) {
	roles, err := json.Marshal(e.Roles)
	if err != nil {
		return event.Event{}, err
	}
	organizers, err := json.Marshal(e.OrganizerDetails)
	if err != nil {
		return event.Event{}, err
	}
	labels, err := json.Marshal(e.ProgramLabels)
	if err != nil {
		return event.Event{}, err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO events (`+eventCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
	`, e.ID, e.Title, e.Description, e.Type, e.Date, e.EndDate, e.Time, e.EndTime, e.TimeZone,
		e.Format, e.Location, e.ZoomLink, e.MeetingID, e.Passcode, e.Status, e.Publish,
		e.AutoUnpublishedReason, e.AutoUnpublishedAt, roles, e.TotalSlots, e.SignedUp,
		e.CreatedBy, organizers, labels, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}

// List implements the full ListEventsFilter surface (§6): status/statuses,
// type, programId, category, search, participant bounds, date range, and
// the fixed sort tie-breakers required by the spec (date -> (date,time);
// createdAt and signedUp sort on their own column; title, organizer, type
// and anything else fall back to (title,date,time)).
func (r *EventsRepo) List(ctx context.Context, f event.ListEventsFilter) ([]event.Event, int, error) {
	baseQuery := `SELECT ` + eventCols + `, COUNT(*) OVER() AS total FROM events`

	var conds []string
	var args []interface{}
	pos := 1
	arg := func(v interface{}) string {
		args = append(args, v)
		p := fmt.Sprintf("$%d", pos)
		pos++
		return p
	}

	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "status = ANY("+arg(statusStrings(f.Statuses))+")")
	}
	if f.Type != "" {
		conds = append(conds, "type = "+arg(f.Type))
	}
	if f.ProgramID != "" {
		conds = append(conds, "program_labels @> "+arg(mustMarshal([]string{f.ProgramID})))
	}
	if f.Category != "" {
		conds = append(conds, "type = "+arg(f.Category))
	}
	if f.Search != "" {
		conds = append(conds, "(title ILIKE "+arg("%"+f.Search+"%")+" OR description ILIKE "+arg("%"+f.Search+"%")+")")
	}
	if f.MinParticipants > 0 {
		conds = append(conds, "total_slots >= "+arg(f.MinParticipants))
	}
	if f.MaxParticipants > 0 {
		conds = append(conds, "total_slots <= "+arg(f.MaxParticipants))
	}
	if f.DateFrom != "" {
		conds = append(conds, "date >= "+arg(f.DateFrom))
	}
	if f.DateTo != "" {
		conds = append(conds, "date <= "+arg(f.DateTo))
	}

	query := baseQuery
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY " + orderByClause(f.SortBy, f.SortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT %s OFFSET %s", arg(limit), arg(f.Offset))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]event.Event, 0, limit)
	total := 0
	for rows.Next() {
		var e event.Event
		var roles, organizers, labels []byte
		var t int
		err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Type, &e.Date, &e.EndDate, &e.Time, &e.EndTime, &e.TimeZone,
			&e.Format, &e.Location, &e.ZoomLink, &e.MeetingID, &e.Passcode, &e.Status, &e.Publish,
			&e.AutoUnpublishedReason, &e.AutoUnpublishedAt, &roles, &e.TotalSlots, &e.SignedUp,
			&e.CreatedBy, &organizers, &labels, &e.CreatedAt, &e.UpdatedAt, &t)
		if err != nil {
			return nil, 0, err
		}
		_ = json.Unmarshal(roles, &e.Roles)
		_ = json.Unmarshal(organizers, &e.OrganizerDetails)
		_ = json.Unmarshal(labels, &e.ProgramLabels)
		total = t
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func statusStrings(statuses []event.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func orderByClause(sortBy event.SortField, order event.SortOrder) string {
	dir := "ASC"
	if order == event.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case event.SortByTitle, event.SortByOrganizer, event.SortByType:
		// Spec's organizer/type tie-breakers fold back to (title, date, time)
		// since neither organizer display name nor event type is indexed for
		// ordering on its own.
		return fmt.Sprintf("LOWER(title) %s, date %s, \"time\" %s, id ASC", dir, dir, dir)
	case event.SortByCreatedAt:
		return fmt.Sprintf("created_at %s, id ASC", dir)
	case event.SortBySignedUp:
		return fmt.Sprintf("signed_up %s, id ASC", dir)
	case event.SortByDate:
		return fmt.Sprintf("date %s, \"time\" %s, id ASC", dir, dir)
	default:
		return fmt.Sprintf("LOWER(title) %s, date %s, \"time\" %s, id ASC", dir, dir, dir)
	}
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (event.Event, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventCols+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}
	return e, nil
}

// Save persists the full aggregate (event + roles[] + derived counters).
// The EventStore persist hook (C8) - recomputing totalSlots/signedUp before
// every save - lives in the engine/service layer that calls Save, since
// that's where the CapacityCounter dependency is already wired.
func (r *EventsRepo) Save(ctx context.Context, e event.Event) (event.Event, error) {
	roles, err := json.Marshal(e.Roles)
	if err != nil {
		return event.Event{}, err
	}
	organizers, err := json.Marshal(e.OrganizerDetails)
	if err != nil {
		return event.Event{}, err
	}
	labels, err := json.Marshal(e.ProgramLabels)
	if err != nil {
		return event.Event{}, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE events SET
			title = $2, description = $3, type = $4, date = $5, end_date = $6,
			"time" = $7, end_time = $8, time_zone = $9, format = $10, location = $11,
			zoom_link = $12, meeting_id = $13, passcode = $14, status = $15, publish = $16,
			auto_unpublished_reason = $17, auto_unpublished_at = $18, roles = $19,
			total_slots = $20, signed_up = $21, organizer_details = $22, program_labels = $23,
			updated_at = now()
		WHERE id = $1
		RETURNING `+eventCols,
		e.ID, e.Title, e.Description, e.Type, e.Date, e.EndDate, e.Time, e.EndTime, e.TimeZone,
		e.Format, e.Location, e.ZoomLink, e.MeetingID, e.Passcode, e.Status, e.Publish,
		e.AutoUnpublishedReason, e.AutoUnpublishedAt, roles, e.TotalSlots, e.SignedUp,
		organizers, labels)

	saved, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}
	return saved, nil
}

// MarkPublished flips Publish to true for the given event, used by
// cmd/worker's claimed "event.publish" jobs. It reports false (no-op,
// idempotent) if the event is already published or not found, so a
// redelivered job never double-fires the publish side effect.
func (r *EventsRepo) MarkPublished(ctx context.Context, eventID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE events SET publish = true, updated_at = now()
		WHERE id = $1 AND publish = false
	`, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EventsRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return event.ErrNotFound
	}
	return nil
}

// CandidatesInRange implements the narrowing half of C5 ConflictDetector:
// find non-cancelled events whose date range could overlap
// [startDate, endDate], so the caller only runs the per-event instant
// comparison against a small candidate set rather than the whole table.
func (r *EventsRepo) CandidatesInRange(ctx context.Context, startDate, endDate, excludeEventID string) ([]event.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventCols+` FROM events
		WHERE status != 'cancelled'
		  AND date <= $2 AND end_date >= $1
		  AND id != $3
	`, startDate, endDate, excludeEventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]event.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
