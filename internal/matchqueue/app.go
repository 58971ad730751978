package matchqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/speakuphq/gdhub/internal/events"
	"github.com/speakuphq/gdhub/internal/models"
	"github.com/speakuphq/gdhub/internal/monitoring"
	"github.com/speakuphq/gdhub/internal/room"
)

// Rooms defines what the queue manager needs from the room coordinator.
type Rooms interface {
	CreateFromQueue(ctx context.Context, req room.CreateFromQueueRequest) (*models.Room, error)
	ActiveRoomFor(ctx context.Context, userID string) (*models.Room, error)
}

// Repository defines what the queue manager needs from the queue store. The
// store is a write-through mirror of the in-memory pool so a restart can
// reload waiting users; matched entries are consumed inside the room
// creation transaction.
type Repository interface {
	InsertEntry(ctx context.Context, entry models.QueueEntry) error
	DeleteEntry(ctx context.Context, userID string) error
	ListEntries(ctx context.Context) ([]models.QueueEntry, error)
}

// OutboxApp defines what the queue manager needs from the outbox.
type OutboxApp interface {
	InsertQueueTimeout(ctx context.Context, userID string, payload []byte) error
}

// Config holds queue manager tuning.
type Config struct {
	TeamSize      int
	MaxWait       time.Duration
	SweepInterval time.Duration
	Topics        []string
}

// DefaultConfig returns default queue manager configuration.
func DefaultConfig() Config {
	return Config{
		TeamSize:      3,
		MaxWait:       10 * time.Minute,
		SweepInterval: 15 * time.Second,
		Topics: []string{
			"Is social media doing more harm than good?",
			"Should remote work become the default?",
			"Does AI threaten more jobs than it creates?",
			"Is a cashless economy worth the privacy cost?",
			"Should college education be free?",
			"Are electric vehicles really sustainable?",
		},
	}
}

// App is the global matchmaking queue. It is the single writer for the
// waiting pool: every mutation happens under one lock, which is what makes
// group formation atomic with respect to concurrent joins and leaves.
type App struct {
	cfg    Config
	repo   Repository
	rooms  Rooms
	outbox OutboxApp
	clock  clockwork.Clock

	mu       sync.Mutex
	entries  []models.QueueEntry // FIFO, joined_at ascending
	timedOut map[string]time.Time
}

// NewApp creates a new queue manager.
func NewApp(cfg Config, repo Repository, rooms Rooms, outbox OutboxApp, clock clockwork.Clock) *App {
	return &App{
		cfg:      cfg,
		repo:     repo,
		rooms:    rooms,
		outbox:   outbox,
		clock:    clock,
		timedOut: make(map[string]time.Time),
	}
}

// Load restores the waiting pool from the store, oldest first. Call once at
// startup before serving requests.
func (a *App) Load(ctx context.Context) error {
	entries, err := a.repo.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load queue entries: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})

	a.mu.Lock()
	a.entries = entries
	a.mu.Unlock()

	monitoring.SetQueueDepth(len(entries))
	log.Info().Int("entries", len(entries)).Msg("queue restored from store")
	return nil
}

// Join admits a user into the waiting pool and attempts group formation.
// Re-joining is idempotent: a user with a live room gets that room back, and
// a user already queued gets their current position without a duplicate
// entry.
func (a *App) Join(ctx context.Context, userID, displayName string) (models.QueueStatus, error) {
	if userID == "" {
		return models.QueueStatus{}, fmt.Errorf("%w: user id is required", models.ErrInvalidArgument)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if rm, err := a.rooms.ActiveRoomFor(ctx, userID); err != nil {
		return models.QueueStatus{}, fmt.Errorf("failed to check active room: %w", err)
	} else if rm != nil {
		monitoring.QueueOperation("join", "already_matched")
		return models.MatchedStatus(rm), nil
	}

	if a.indexOfLocked(userID) < 0 {
		entry := models.QueueEntry{
			UserID:          userID,
			DisplayName:     displayName,
			JoinedAt:        a.clock.Now().UTC(),
			GroupSizeTarget: a.cfg.TeamSize,
		}
		if err := a.repo.InsertEntry(ctx, entry); err != nil {
			return models.QueueStatus{}, fmt.Errorf("failed to enqueue: %w", err)
		}
		a.entries = append(a.entries, entry)
		delete(a.timedOut, userID)
	}
	monitoring.SetQueueDepth(len(a.entries))

	callerRoom := a.formGroupsLocked(ctx, userID)
	monitoring.SetQueueDepth(len(a.entries))

	if callerRoom != nil {
		monitoring.QueueOperation("join", "matched")
		return models.MatchedStatus(callerRoom), nil
	}
	monitoring.QueueOperation("join", "queued")
	return a.queuedStatusLocked(userID), nil
}

// Leave withdraws a user from the waiting pool. It takes effect under the
// formation lock, so a leaving user can never be grouped after this returns.
// Absent users are a no-op.
func (a *App) Leave(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", models.ErrInvalidArgument)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.indexOfLocked(userID)
	if idx < 0 {
		return nil
	}

	if err := a.repo.DeleteEntry(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	a.entries = append(a.entries[:idx], a.entries[idx+1:]...)
	monitoring.SetQueueDepth(len(a.entries))
	monitoring.QueueOperation("leave", "removed")
	return nil
}

// Status reports the current matchmaking state for a user without mutating
// the pool, except that a pending timeout notice is consumed by the read.
func (a *App) Status(ctx context.Context, userID string) (models.QueueStatus, error) {
	if userID == "" {
		return models.QueueStatus{}, fmt.Errorf("%w: user id is required", models.ErrInvalidArgument)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if rm, err := a.rooms.ActiveRoomFor(ctx, userID); err != nil {
		return models.QueueStatus{}, fmt.Errorf("failed to check active room: %w", err)
	} else if rm != nil {
		return models.MatchedStatus(rm), nil
	}

	if a.indexOfLocked(userID) >= 0 {
		return a.queuedStatusLocked(userID), nil
	}

	if _, ok := a.timedOut[userID]; ok {
		delete(a.timedOut, userID)
		return models.QueueStatus{Status: models.QueueStateTimedOut, GroupSize: a.cfg.TeamSize}, nil
	}

	return models.QueueStatus{Status: models.QueueStateIdle}, nil
}

// Run drives the periodic sweep: a safety net that retries group formation
// in case a join-time attempt was lost, and expires entries that waited past
// MaxWait so nobody queues forever.
func (a *App) Run(ctx context.Context) {
	ticker := a.clock.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", a.cfg.SweepInterval).
		Dur("max_wait", a.cfg.MaxWait).
		Msg("queue sweep started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("queue sweep stopped")
			return
		case <-ticker.Chan():
			a.sweep(ctx)
		}
	}
}

func (a *App) sweep(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now().UTC()
	kept := a.entries[:0]
	for _, e := range a.entries {
		waited := now.Sub(e.JoinedAt)
		if waited < a.cfg.MaxWait {
			kept = append(kept, e)
			continue
		}

		if err := a.repo.DeleteEntry(ctx, e.UserID); err != nil {
			log.Error().Err(err).Str("user_id", e.UserID).Msg("failed to expire queue entry")
			kept = append(kept, e)
			continue
		}
		a.timedOut[e.UserID] = now
		a.notifyTimeout(ctx, e.UserID, waited, now)
		monitoring.QueueOperation("sweep", "timed_out")
		log.Info().Str("user_id", e.UserID).Dur("waited", waited).Msg("queue entry timed out")
	}
	a.entries = kept

	a.formGroupsLocked(ctx, "")
	monitoring.SetQueueDepth(len(a.entries))
}

// formGroupsLocked forms as many full groups as the pool allows, oldest
// entries first. Entries leave the in-memory pool only after the room
// coordinator has durably created the room, so a failed creation leaves
// every member queued. Returns the room containing triggeredBy, if any.
func (a *App) formGroupsLocked(ctx context.Context, triggeredBy string) *models.Room {
	var callerRoom *models.Room
	for len(a.entries) >= a.cfg.TeamSize {
		members := make([]models.QueueEntry, a.cfg.TeamSize)
		copy(members, a.entries[:a.cfg.TeamSize])

		rm, err := a.rooms.CreateFromQueue(ctx, room.CreateFromQueueRequest{
			Topic:       a.pickTopic(),
			TeamSize:    a.cfg.TeamSize,
			Members:     members,
			TriggeredBy: triggeredBy,
		})
		if err != nil {
			log.Error().Err(err).Msg("group formation failed, members remain queued")
			break
		}

		a.entries = a.entries[a.cfg.TeamSize:]
		if _, ok := rm.Participant(triggeredBy); ok {
			callerRoom = rm
		}
	}
	return callerRoom
}

func (a *App) notifyTimeout(ctx context.Context, userID string, waited time.Duration, at time.Time) {
	data, err := json.Marshal(events.QueueTimeoutPayload{
		UserID:     userID,
		WaitedSec:  int(waited.Seconds()),
		TimedOutAt: at,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal queue timeout payload")
		return
	}
	if err := a.outbox.InsertQueueTimeout(ctx, userID, data); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to enqueue queue timeout event")
	}
}

func (a *App) pickTopic() string {
	return a.cfg.Topics[rand.IntN(len(a.cfg.Topics))]
}

func (a *App) indexOfLocked(userID string) int {
	for i := range a.entries {
		if a.entries[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (a *App) queuedStatusLocked(userID string) models.QueueStatus {
	return models.QueueStatus{
		Status:    models.QueueStateQueued,
		QueueSize: len(a.entries),
		Position:  a.indexOfLocked(userID) + 1,
		GroupSize: a.cfg.TeamSize,
	}
}
