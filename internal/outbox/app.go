package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/speakuphq/gdhub/internal/events"
)

// Repository defines what the outbox app needs from its store.
type Repository interface {
	InsertEvent(ctx context.Context, userID string, eventType events.Type, payload []byte) error
	FetchUnsent(ctx context.Context, limit int32) ([]Event, error)
	FetchByID(ctx context.Context, id uuid.UUID) (*Event, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}

// App exposes typed insert operations for every push event the matchmaking
// core emits.
type App struct {
	repo Repository
}

// NewApp creates a new outbox App.
func NewApp(repo Repository) *App {
	return &App{repo: repo}
}

func (a *App) InsertRoomCreated(ctx context.Context, userID string, payload []byte) error {
	if err := a.repo.InsertEvent(ctx, userID, events.TypeRoomCreated, payload); err != nil {
		return fmt.Errorf("failed to insert room_created outbox event: %w", err)
	}
	return nil
}

func (a *App) InsertParticipantJoined(ctx context.Context, userID string, payload []byte) error {
	if err := a.repo.InsertEvent(ctx, userID, events.TypeParticipantJoined, payload); err != nil {
		return fmt.Errorf("failed to insert participant_joined outbox event: %w", err)
	}
	return nil
}

func (a *App) InsertParticipantLeft(ctx context.Context, userID string, payload []byte) error {
	if err := a.repo.InsertEvent(ctx, userID, events.TypeParticipantLeft, payload); err != nil {
		return fmt.Errorf("failed to insert participant_left outbox event: %w", err)
	}
	return nil
}

func (a *App) InsertCallStarted(ctx context.Context, userID string, payload []byte) error {
	if err := a.repo.InsertEvent(ctx, userID, events.TypeCallStarted, payload); err != nil {
		return fmt.Errorf("failed to insert call_started outbox event: %w", err)
	}
	return nil
}

func (a *App) InsertQueueTimeout(ctx context.Context, userID string, payload []byte) error {
	if err := a.repo.InsertEvent(ctx, userID, events.TypeQueueTimeout, payload); err != nil {
		return fmt.Errorf("failed to insert queue_timeout outbox event: %w", err)
	}
	return nil
}
