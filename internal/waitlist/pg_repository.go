package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const entryColumns = `id, patient_id, priority, preferred_dates, preferred_times, notes, status, added_at, updated_at, expires_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var notes *string
	var expiresAt *time.Time

	err := row.Scan(
		&e.ID,
		&e.PatientID,
		&e.Priority,
		&e.PreferredDates,
		&e.PreferredTimes,
		&notes,
		&e.Status,
		&e.AddedAt,
		&e.UpdatedAt,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	e.Notes = notes
	e.ExpiresAt = expiresAt
	return &e, nil
}

func (r *PgRepository) CreateEntry(ctx context.Context, e *Entry) (*Entry, error) {
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries
			(id, patient_id, priority, preferred_dates, preferred_times, notes, status, added_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'waiting', now(), now(), $7)
		RETURNING `+entryColumns+`
	`, id, e.PatientID, e.Priority, e.PreferredDates, e.PreferredTimes, e.Notes, e.ExpiresAt)

	return scanEntry(row)
}

func (r *PgRepository) GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) ListEntries(ctx context.Context, status *Status, limit, offset int) ([]Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM waitlist_entries
	`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1 ORDER BY added_at ASC LIMIT $2 OFFSET $3`
		args = append(args, *status, limit, offset)
	} else {
		query += ` ORDER BY added_at ASC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *PgRepository) ListWaiting(ctx context.Context) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE status = 'waiting'
		ORDER BY added_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *PgRepository) UpdateEntryStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+entryColumns+`
	`, id, to, from)

	return scanEntry(row)
}

func (r *PgRepository) FindExpiredEntries(ctx context.Context, now time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE status IN ('waiting', 'contacted')
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO waitlist_events (event_type, entry_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.EntryID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
