package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/teris-io/shortid"

	"github.com/speakuphq/gdhub/internal/events"
	"github.com/speakuphq/gdhub/internal/models"
	"github.com/speakuphq/gdhub/internal/monitoring"
)

// Repository defines what the room app layer needs from the room repository.
type Repository interface {
	CreateRoom(ctx context.Context, room models.Room, consumeUserIDs []string) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	ActiveRoomForUser(ctx context.Context, userID string) (*models.Room, error)
	SetParticipantJoined(ctx context.Context, roomID, userID string, at time.Time) (*models.Room, bool, error)
	RemoveParticipant(ctx context.Context, roomID, userID string) (*models.Room, error)
	TransitionStatus(ctx context.Context, roomID string, from, to models.RoomStatus) (*models.Room, error)
}

// OutboxApp defines what the room app needs from the outbox.
type OutboxApp interface {
	InsertRoomCreated(ctx context.Context, userID string, payload []byte) error
	InsertParticipantJoined(ctx context.Context, userID string, payload []byte) error
	InsertParticipantLeft(ctx context.Context, userID string, payload []byte) error
	InsertCallStarted(ctx context.Context, userID string, payload []byte) error
}

// Leaderboard defines what the room app needs from the gamification layer.
type Leaderboard interface {
	AwardSessionXP(ctx context.Context, userID string) error
}

// App owns the lifecycle of a matched group from room creation through the
// lobby into a live call. All room mutations go through here.
type App struct {
	repo   Repository
	outbox OutboxApp
	board  Leaderboard
	clock  clockwork.Clock
}

// NewApp creates a new room App.
func NewApp(repo Repository, outbox OutboxApp, board Leaderboard, clock clockwork.Clock) *App {
	return &App{
		repo:   repo,
		outbox: outbox,
		board:  board,
		clock:  clock,
	}
}

// CreateFromQueue persists a freshly formed group as a lobby room and emits a
// room_created event to every member. The triggering member is recorded as
// already joined; everyone else joins when their client reaches the lobby.
// Queue entries for all members are consumed in the same transaction, so a
// failure leaves every member queued.
func (a *App) CreateFromQueue(ctx context.Context, req CreateFromQueueRequest) (*models.Room, error) {
	if len(req.Members) == 0 || len(req.Members) != req.TeamSize {
		return nil, fmt.Errorf("%w: group of %d for team size %d", models.ErrInvalidArgument, len(req.Members), req.TeamSize)
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate room id: %w", err)
	}

	now := a.clock.Now().UTC()
	participants := make([]models.Participant, len(req.Members))
	consumeIDs := make([]string, len(req.Members))
	for i, m := range req.Members {
		participants[i] = models.Participant{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
		}
		if m.UserID == req.TriggeredBy {
			joined := now
			participants[i].JoinedAt = &joined
		}
		consumeIDs[i] = m.UserID
	}

	created, err := a.repo.CreateRoom(ctx, models.Room{
		ID:           id,
		Topic:        req.Topic,
		TeamSize:     req.TeamSize,
		Participants: participants,
		Status:       models.RoomStatusLobby,
		CreatedAt:    now,
	}, consumeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	monitoring.RoomFormed()
	for _, m := range req.Members {
		monitoring.ObserveTimeToMatch(now.Sub(m.JoinedAt))
	}

	a.fanOut(ctx, created, events.TypeRoomCreated, events.RoomCreatedPayload{
		RoomID:       created.ID,
		Topic:        created.Topic,
		TeamSize:     created.TeamSize,
		Participants: created.Participants,
		CreatedAt:    created.CreatedAt,
	}, a.outbox.InsertRoomCreated)

	log.Info().
		Str("room_id", created.ID).
		Str("topic", created.Topic).
		Int("team_size", created.TeamSize).
		Msg("room created from queue")

	return created, nil
}

// GetRoom returns a room by id.
func (a *App) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: room id is required", models.ErrInvalidArgument)
	}
	return a.repo.GetRoom(ctx, roomID)
}

// ActiveRoomFor returns the user's current lobby or active room, or nil.
func (a *App) ActiveRoomFor(ctx context.Context, userID string) (*models.Room, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrInvalidArgument)
	}
	return a.repo.ActiveRoomForUser(ctx, userID)
}

// MarkJoined records that a participant's client has arrived in the lobby.
// The first call wins the timestamp; repeats are no-ops, not errors.
func (a *App) MarkJoined(ctx context.Context, roomID, userID string) (*models.Room, error) {
	if roomID == "" || userID == "" {
		return nil, fmt.Errorf("%w: room id and user id are required", models.ErrInvalidArgument)
	}

	rm, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if _, ok := rm.Participant(userID); !ok {
		return nil, fmt.Errorf("%w: user %s is not a participant of room %s", models.ErrNotFound, userID, roomID)
	}
	if rm.Status.Closed() {
		return nil, fmt.Errorf("%w: room %s is %s", models.ErrRoomClosed, roomID, rm.Status)
	}

	now := a.clock.Now().UTC()
	updated, wrote, err := a.repo.SetParticipantJoined(ctx, roomID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark joined: %w", err)
	}

	if wrote {
		p, _ := updated.Participant(userID)
		a.fanOut(ctx, updated, events.TypeParticipantJoined, events.ParticipantJoinedPayload{
			RoomID:      updated.ID,
			UserID:      userID,
			DisplayName: p.DisplayName,
			JoinedAt:    now,
			JoinedCount: updated.JoinedCount(),
			TeamSize:    updated.TeamSize,
		}, a.outbox.InsertParticipantJoined)

		log.Info().
			Str("room_id", roomID).
			Str("user_id", userID).
			Int("joined", updated.JoinedCount()).
			Int("team_size", updated.TeamSize).
			Msg("participant joined lobby")
	}

	return updated, nil
}

// LeaveRoom removes a participant from the room. Dropping below quorum keeps
// the room in lobby; an emptied room is marked completed as abandonment
// cleanup. Unknown participants are a no-op.
func (a *App) LeaveRoom(ctx context.Context, roomID, userID string) error {
	if roomID == "" || userID == "" {
		return fmt.Errorf("%w: room id and user id are required", models.ErrInvalidArgument)
	}

	rm, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if _, ok := rm.Participant(userID); !ok || rm.Status.Closed() {
		return nil
	}

	updated, err := a.repo.RemoveParticipant(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}

	if len(updated.Participants) == 0 {
		if _, err := a.repo.TransitionStatus(ctx, roomID, updated.Status, models.RoomStatusCompleted); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to mark abandoned room completed")
		} else {
			log.Info().Str("room_id", roomID).Msg("room abandoned")
		}
		return nil
	}

	a.fanOut(ctx, updated, events.TypeParticipantLeft, events.ParticipantLeftPayload{
		RoomID:      updated.ID,
		UserID:      userID,
		LeftAt:      a.clock.Now().UTC(),
		JoinedCount: updated.JoinedCount(),
		TeamSize:    updated.TeamSize,
	}, a.outbox.InsertParticipantLeft)

	return nil
}

// StartCall transitions a lobby room to active. It is the trigger only;
// readiness is decided by the clients (see lobbysync). Returns ErrRoomClosed
// if the room has already moved on.
func (a *App) StartCall(ctx context.Context, roomID string) (*models.Room, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: room id is required", models.ErrInvalidArgument)
	}

	updated, err := a.repo.TransitionStatus(ctx, roomID, models.RoomStatusLobby, models.RoomStatusActive)
	if err != nil {
		return nil, err
	}

	a.fanOut(ctx, updated, events.TypeCallStarted, events.CallStartedPayload{
		RoomID:    updated.ID,
		Topic:     updated.Topic,
		StartedAt: a.clock.Now().UTC(),
	}, a.outbox.InsertCallStarted)

	log.Info().Str("room_id", roomID).Msg("call started")
	return updated, nil
}

// CompleteRoom transitions an active room to completed once the call session
// ends, and awards session XP to every participant that actually joined.
func (a *App) CompleteRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: room id is required", models.ErrInvalidArgument)
	}

	updated, err := a.repo.TransitionStatus(ctx, roomID, models.RoomStatusActive, models.RoomStatusCompleted)
	if err != nil {
		return nil, err
	}

	for _, p := range updated.Participants {
		if p.JoinedAt == nil {
			continue
		}
		if err := a.board.AwardSessionXP(ctx, p.UserID); err != nil {
			log.Error().Err(err).Str("user_id", p.UserID).Msg("failed to award session xp")
		}
	}

	log.Info().Str("room_id", roomID).Msg("room completed")
	return updated, nil
}

// fanOut enqueues one user-addressed outbox event per participant. Failures
// are logged, not returned: clients that miss a push still converge through
// status polling.
func (a *App) fanOut(ctx context.Context, rm *models.Room, typ events.Type, payload interface{}, insert func(context.Context, string, []byte) error) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(typ)).Msg("failed to marshal event payload")
		return
	}
	for _, p := range rm.Participants {
		if err := insert(ctx, p.UserID, data); err != nil {
			log.Error().
				Err(err).
				Str("type", string(typ)).
				Str("user_id", p.UserID).
				Msg("failed to enqueue push event")
		}
	}
}
