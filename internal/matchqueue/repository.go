package matchqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/speakuphq/gdhub/internal/models"
)

// PgRepository implements the queue store over Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new Postgres-backed queue repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// InsertEntry persists a waiting user. Conflicts are ignored so a replayed
// insert cannot duplicate an entry.
func (r *PgRepository) InsertEntry(ctx context.Context, entry models.QueueEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO gd_queue_entries (user_id, display_name, joined_at, group_size_target)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		entry.UserID, entry.DisplayName, entry.JoinedAt, entry.GroupSizeTarget,
	)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

// DeleteEntry removes a waiting user, if present.
func (r *PgRepository) DeleteEntry(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM gd_queue_entries WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return nil
}

// ListEntries returns all waiting users, oldest first.
func (r *PgRepository) ListEntries(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, display_name, joined_at, group_size_target
		 FROM gd_queue_entries ORDER BY joined_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.JoinedAt, &e.GroupSizeTarget); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", err)
	}
	return entries, nil
}
