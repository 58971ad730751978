package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/speakuphq/gdhub/internal/events"
)

// NotifyChannel is the Postgres NOTIFY channel that wakes the relay when a
// new event row lands.
const NotifyChannel = "gd_outbox_events"

// PgRepository implements outbox storage over Postgres. Every insert also
// fires a NOTIFY carrying the event id so the relay reacts without waiting
// for its fallback poll.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new Postgres-backed outbox repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// InsertEvent stores a user-addressed event and notifies the relay.
func (r *PgRepository) InsertEvent(ctx context.Context, userID string, eventType events.Type, payload []byte) error {
	id := uuid.New()
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO gd_outbox_events (id, user_id, event_type, payload)
		 VALUES ($1, $2, $3, $4)`,
		id, userID, eventType, payload,
	); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if _, err := r.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, id.String()); err != nil {
		// The fallback poll will still pick the row up.
		return nil
	}
	return nil
}

// FetchUnsent returns up to limit unsent events, oldest first.
func (r *PgRepository) FetchUnsent(ctx context.Context, limit int32) ([]Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, event_type, payload, created_at
		 FROM gd_outbox_events
		 WHERE sent_at IS NULL
		 ORDER BY created_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var evs []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		evs = append(evs, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return evs, nil
}

// FetchByID returns one unsent event by id.
func (r *PgRepository) FetchByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	var ev Event
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, event_type, payload, created_at
		 FROM gd_outbox_events
		 WHERE id = $1 AND sent_at IS NULL`,
		id,
	).Scan(&ev.ID, &ev.UserID, &ev.EventType, &ev.Payload, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("outbox event not found or already sent")
		}
		return nil, fmt.Errorf("fetch outbox event by id: %w", err)
	}
	return &ev, nil
}

// MarkSent stamps an event as delivered to the bus.
func (r *PgRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE gd_outbox_events SET sent_at = now() WHERE id = $1`,
		id,
	); err != nil {
		return fmt.Errorf("mark outbox event sent: %w", err)
	}
	return nil
}
