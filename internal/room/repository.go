package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/speakuphq/gdhub/internal/models"
	"github.com/speakuphq/gdhub/internal/sqlutil"
)

// PgRepository implements room data access over Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new Postgres-backed room repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// CreateRoom inserts the room and its participants and consumes the matched
// queue entries in one transaction. Either the whole group moves into the
// room or nobody leaves the queue.
func (r *PgRepository) CreateRoom(ctx context.Context, rm models.Room, consumeUserIDs []string) (*models.Room, error) {
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM gd_queue_entries WHERE user_id = ANY($1)`,
			consumeUserIDs,
		); err != nil {
			return fmt.Errorf("consume queue entries: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO gd_rooms (id, topic, team_size, status, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			rm.ID, rm.Topic, rm.TeamSize, rm.Status, rm.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert room: %w", err)
		}

		for i, p := range rm.Participants {
			if _, err := tx.Exec(ctx,
				`INSERT INTO gd_room_participants (room_id, user_id, display_name, joined_at, position)
				 VALUES ($1, $2, $3, $4, $5)`,
				rm.ID, p.UserID, p.DisplayName, p.JoinedAt, i,
			); err != nil {
				return fmt.Errorf("insert participant %s: %w", p.UserID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetRoom(ctx, rm.ID)
}

// GetRoom loads a room with its participants in lobby order.
func (r *PgRepository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var rm models.Room
	err := r.pool.QueryRow(ctx,
		`SELECT id, topic, team_size, status, created_at FROM gd_rooms WHERE id = $1`,
		roomID,
	).Scan(&rm.ID, &rm.Topic, &rm.TeamSize, &rm.Status, &rm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: room %s", models.ErrNotFound, roomID)
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT user_id, display_name, joined_at
		 FROM gd_room_participants WHERE room_id = $1 ORDER BY position`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		rm.Participants = append(rm.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}

	return &rm, nil
}

// ActiveRoomForUser returns the user's most recent lobby or active room, or
// nil when the user has none.
func (r *PgRepository) ActiveRoomForUser(ctx context.Context, userID string) (*models.Room, error) {
	var roomID string
	err := r.pool.QueryRow(ctx,
		`SELECT r.id
		 FROM gd_rooms r
		 JOIN gd_room_participants p ON p.room_id = r.id
		 WHERE p.user_id = $1 AND r.status IN ($2, $3)
		 ORDER BY r.created_at DESC
		 LIMIT 1`,
		userID, models.RoomStatusLobby, models.RoomStatusActive,
	).Scan(&roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active room: %w", err)
	}

	return r.GetRoom(ctx, roomID)
}

// SetParticipantJoined records the lobby arrival timestamp. The write only
// lands when joined_at is still null, which makes the first caller win and
// every repeat a no-op. The bool reports whether this call wrote.
func (r *PgRepository) SetParticipantJoined(ctx context.Context, roomID, userID string, at time.Time) (*models.Room, bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE gd_room_participants SET joined_at = $3
		 WHERE room_id = $1 AND user_id = $2 AND joined_at IS NULL`,
		roomID, userID, at,
	)
	if err != nil {
		return nil, false, fmt.Errorf("set participant joined: %w", err)
	}

	rm, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	return rm, tag.RowsAffected() > 0, nil
}

// RemoveParticipant deletes the participant row and returns the updated room.
func (r *PgRepository) RemoveParticipant(ctx context.Context, roomID, userID string) (*models.Room, error) {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM gd_room_participants WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	); err != nil {
		return nil, fmt.Errorf("remove participant: %w", err)
	}

	return r.GetRoom(ctx, roomID)
}

// TransitionStatus moves a room from one status to the next. The update is
// conditional on the current status, so concurrent triggers cannot regress a
// room or double-apply a transition.
func (r *PgRepository) TransitionStatus(ctx context.Context, roomID string, from, to models.RoomStatus) (*models.Room, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE gd_rooms SET status = $3 WHERE id = $1 AND status = $2`,
		roomID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("transition room status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		rm, err := r.GetRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: room %s is %s, not %s", models.ErrRoomClosed, roomID, rm.Status, from)
	}

	return r.GetRoom(ctx, roomID)
}
