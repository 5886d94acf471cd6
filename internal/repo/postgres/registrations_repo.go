package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/domain/registration"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/utils"
)

// RegistrationRepo is the Postgres-backed implementation of C7
// RegistrationStore: unique on (event_id,user_id,role_id), indexed lookups
// by user_id/event_id/(event_id,role_id)/(user_id,event_id), hard delete,
// and an atomic single-record update for role-move.
type RegistrationRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRegistrationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RegistrationRepo {
	return &RegistrationRepo{pool: pool, prom: prom}
}

func (repo *RegistrationRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (repo *RegistrationRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return repo.pool.BeginTx(ctx, pgx.TxOptions{})
}

const registrationCols = `id, event_id, user_id, role_id, registration_date, notes,
	special_requirements, registered_by, user_snapshot, event_snapshot,
	audit_trail, created_at, updated_at`

func scanRegistration(row pgx.Row) (registration.Registration, error) {
	var r registration.Registration
	var userSnap, eventSnap, audit []byte
	err := row.Scan(&r.ID, &r.EventID, &r.UserID, &r.RoleID, &r.RegistrationDate, &r.Notes,
		&r.SpecialRequirements, &r.RegisteredBy, &userSnap, &eventSnap, &audit, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return registration.Registration{}, err
	}
	if err := json.Unmarshal(userSnap, &r.UserSnapshot); err != nil {
		return registration.Registration{}, err
	}
	if err := json.Unmarshal(eventSnap, &r.EventSnapshot); err != nil {
		return registration.Registration{}, err
	}
	if len(audit) > 0 {
		if err := json.Unmarshal(audit, &r.AuditTrail); err != nil {
			return registration.Registration{}, err
		}
	}
	return r, nil
}

// CreateTx implements the critical-section insert used by
// RegistrationEngine.signup/assignUserToRole: capacity is rechecked by the
// caller (under KeyedLock) immediately before this call, and the unique
// index on (event_id,user_id,role_id) is the second line of defense
// against a race the lock missed.
func (repo *RegistrationRepo) CreateTx(ctx context.Context, tx pgx.Tx, reg registration.Registration) (err error) {
	userSnap, err := json.Marshal(reg.UserSnapshot)
	if err != nil {
		return err
	}
	eventSnap, err := json.Marshal(reg.EventSnapshot)
	if err != nil {
		return err
	}
	audit, err := json.Marshal(reg.AuditTrail)
	if err != nil {
		return err
	}

	err = repo.observe("registrations.create_tx.insert", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO registrations (`+registrationCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, reg.ID, reg.EventID, reg.UserID, reg.RoleID, reg.RegistrationDate, reg.Notes,
			reg.SpecialRequirements, reg.RegisteredBy, userSnap, eventSnap, audit, reg.CreatedAt, reg.UpdatedAt)
		return e
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return registration.ErrAlreadyRegistered
		}
		return err
	}
	return nil
}

// Create wraps CreateTx in its own transaction for callers outside the
// engine's own tx scope (e.g. administrative backfills).
func (repo *RegistrationRepo) Create(ctx context.Context, reg registration.Registration) (err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err = repo.CreateTx(ctx, tx, reg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CountForRole implements C6 CapacityCounter.count(eventId, roleId): the
// number of currently active registrations for one role. Active means
// simply "exists" - registrations are hard-deleted on cancel/remove, so
// there is no separate soft-delete state to filter.
func (repo *RegistrationRepo) CountForRole(ctx context.Context, eventID, roleID string) (int, error) {
	var n int
	err := repo.observe("registrations.count_for_role", func() error {
		return repo.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND role_id = $2`,
			eventID, roleID).Scan(&n)
	})
	return n, err
}

// CountForEvent implements CapacityCounter.countForEvent used by the
// EventStore save hook and the counter sweep.
func (repo *RegistrationRepo) CountForEvent(ctx context.Context, eventID string) (int, error) {
	var n int
	err := repo.observe("registrations.count_for_event", func() error {
		return repo.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID).Scan(&n)
	})
	return n, err
}

// FindOne looks up the registration for (eventId, userId, roleId), used by
// signup's duplicate check and cancel/remove's findAndDelete precondition.
func (repo *RegistrationRepo) FindOne(ctx context.Context, eventID, userID, roleID string) (registration.Registration, error) {
	var r registration.Registration
	var rowErr error
	err := repo.observe("registrations.find_one", func() error {
		row := repo.pool.QueryRow(ctx,
			`SELECT `+registrationCols+` FROM registrations WHERE event_id=$1 AND user_id=$2 AND role_id=$3`,
			eventID, userID, roleID)
		r, rowErr = scanRegistration(row)
		return rowErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registration.Registration{}, registration.ErrNotFound
		}
		return registration.Registration{}, err
	}
	return r, nil
}

// FindByUserEvent returns every role a user holds within one event, used to
// enforce the per-event RoleQuota precondition in signup.
func (repo *RegistrationRepo) FindByUserEvent(ctx context.Context, eventID, userID string) ([]registration.Registration, error) {
	var rows pgx.Rows
	err := repo.observe("registrations.find_by_user_event", func() error {
		var qerr error
		rows, qerr = repo.pool.Query(ctx,
			`SELECT `+registrationCols+` FROM registrations WHERE event_id=$1 AND user_id=$2`,
			eventID, userID)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]registration.Registration, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRole atomically moves a single registration to a new role,
// refreshing the eventSnapshot's role fields and appending an audit entry,
// used by moveUserBetweenRoles (C9 §4.9.4).
func (repo *RegistrationRepo) UpdateRole(ctx context.Context, registrationID, newRoleID, newRoleName, newRoleDescription string, audit registration.AuditEntry) error {
	return repo.observe("registrations.update_role", func() error {
		tag, err := repo.pool.Exec(ctx, `
			UPDATE registrations
			SET role_id = $1,
			    event_snapshot = jsonb_set(jsonb_set(event_snapshot, '{roleName}', to_jsonb($2::text)), '{roleDescription}', to_jsonb($3::text)),
			    audit_trail = audit_trail || $4::jsonb,
			    updated_at = now()
			WHERE id = $5
		`, newRoleID, newRoleName, newRoleDescription, mustMarshal([]registration.AuditEntry{audit}), registrationID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return registration.ErrNotFound
		}
		return nil
	})
}

// DeleteOne implements the atomic findAndDelete used by cancel/remove.
func (repo *RegistrationRepo) DeleteOne(ctx context.Context, eventID, userID, roleID string) (err error) {
	var tag pgconn.CommandTag
	err = repo.observe("registrations.delete_one", func() error {
		var e error
		tag, e = repo.pool.Exec(ctx,
			`DELETE FROM registrations WHERE event_id=$1 AND user_id=$2 AND role_id=$3`,
			eventID, userID, roleID)
		return e
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return registration.ErrNotFound
	}
	return nil
}

// DeleteAllForEvent bulk-deletes every registration for an event, used by
// UpdateOrchestrator's forceDeleteRegistrations path.
func (repo *RegistrationRepo) DeleteAllForEvent(ctx context.Context, eventID string) error {
	return repo.observe("registrations.delete_all_for_event", func() error {
		_, err := repo.pool.Exec(ctx, `DELETE FROM registrations WHERE event_id = $1`, eventID)
		return err
	})
}

// DeleteAllForRole bulk-deletes every registration for a single role,
// used when a role is force-deleted during an update (I7/I8 override).
func (repo *RegistrationRepo) DeleteAllForRole(ctx context.Context, eventID, roleID string) error {
	return repo.observe("registrations.delete_all_for_role", func() error {
		_, err := repo.pool.Exec(ctx, `DELETE FROM registrations WHERE event_id=$1 AND role_id=$2`, eventID, roleID)
		return err
	})
}

func (repo *RegistrationRepo) ListByEvent(ctx context.Context, eventID string) ([]registration.Registration, error) {
	var rows pgx.Rows
	err := repo.observe("registrations.list_by_event", func() error {
		var qerr error
		rows, qerr = repo.pool.Query(ctx,
			`SELECT `+registrationCols+` FROM registrations WHERE event_id=$1 ORDER BY created_at ASC, id ASC`,
			eventID)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]registration.Registration, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		if repo.prom != nil {
			repo.prom.DbErrorsTotal.WithLabelValues("registrations.list_by_event", "rows_err").Inc()
		}
		return nil, err
	}

	if len(out) == 0 {
		var dummy string
		err := repo.observe("registrations.list_by_event.check_event_exists", func() error {
			return repo.pool.QueryRow(ctx, `SELECT id FROM events WHERE id = $1`, eventID).Scan(&dummy)
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, event.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (repo *RegistrationRepo) ListByEventCursor(
	ctx context.Context,
	eventID string,
	limit int,
	afterCreatedAt time.Time,
	afterID string,
) (items []registration.Registration, nextCursor *string, hasMore bool, err error) {
	q := `
		SELECT ` + registrationCols + `
		FROM registrations
		WHERE event_id = $1 AND (created_at, id) > ($2, $3)
		ORDER BY created_at ASC, id ASC
		LIMIT $4
	`
	limitPlusOne := limit + 1

	var rows pgx.Rows
	err = repo.observe("registrations.list_by_event_cursor", func() error {
		var qerr error
		rows, qerr = repo.pool.Query(ctx, q, eventID, afterCreatedAt, afterID, limitPlusOne)
		return qerr
	})
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	out := make([]registration.Registration, 0, limit)
	for rows.Next() {
		r, scanErr := scanRegistration(rows)
		if scanErr != nil {
			return nil, nil, false, scanErr
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, nil, false, rows.Err()
	}

	if len(out) > limit {
		hasMore = true
		out = out[:limit]
		last := out[len(out)-1]
		cur, encErr := utils.EncodeRegistrationCursor(last.CreatedAt, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}

	return out, nextCursor, hasMore, nil
}

func (repo *RegistrationRepo) GetByID(ctx context.Context, eventID, registrationID string) (registration.Registration, error) {
	var r registration.Registration
	var rowErr error
	err := repo.observe("registrations.get_by_id", func() error {
		row := repo.pool.QueryRow(ctx,
			`SELECT `+registrationCols+` FROM registrations WHERE id=$1 AND event_id=$2`,
			registrationID, eventID)
		r, rowErr = scanRegistration(row)
		return rowErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registration.Registration{}, registration.ErrNotFound
		}
		return registration.Registration{}, err
	}
	return r, nil
}

func (repo *RegistrationRepo) Delete(ctx context.Context, eventID, registrationID string) (err error) {
	var tag pgconn.CommandTag
	err = repo.observe("registrations.delete", func() error {
		var e error
		tag, e = repo.pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1 AND event_id = $2`, registrationID, eventID)
		return e
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return registration.ErrNotFound
	}
	return nil
}
