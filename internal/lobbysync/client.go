package lobbysync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/speakuphq/gdhub/internal/events"
	"github.com/speakuphq/gdhub/internal/models"
)

// Server is the backend surface the sync client drives. In production this is
// the REST API; in tests it is the apps directly.
type Server interface {
	Join(ctx context.Context, userID, displayName string) (models.QueueStatus, error)
	Leave(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (models.QueueStatus, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	MarkJoined(ctx context.Context, roomID, userID string) (*models.Room, error)
	LeaveRoom(ctx context.Context, roomID, userID string) error
	StartCall(ctx context.Context, roomID string) (*models.Room, error)
}

// Source delivers a user's addressed push events. The returned cancel func
// releases the subscription.
type Source interface {
	Subscribe(userID string) (<-chan *events.Envelope, func(), error)
}

// Handler receives UI-facing callbacks as the client's matchmaking state
// changes. Nil callbacks are skipped.
type Handler struct {
	OnQueued             func(status models.QueueStatus)
	OnMatched            func(room *models.Room)
	OnLobbyUpdate        func(room *models.Room)
	OnCountdownStarted   func(seconds int)
	OnCountdownCancelled func()
	OnCallStart          func(room *models.Room)
	OnRetrying           func(err error)
	OnTimedOut           func()
	OnLeft               func()
}

// Config tunes the sync loop.
type Config struct {
	PollInterval time.Duration
	Countdown    time.Duration
}

// DefaultConfig returns the default sync loop tuning.
func DefaultConfig() Config {
	return Config{
		PollInterval: 3 * time.Second,
		Countdown:    10 * time.Second,
	}
}

// Client keeps one user's view of the matchmaking flow in sync with the
// server. Polling is the source of truth; push events only short-circuit the
// next poll. The pre-call countdown runs here: the server announces the
// quorum, the client counts down and asks for the call to start.
type Client struct {
	server  Server
	source  Source
	handler Handler
	clock   clockwork.Clock
	cfg     Config

	userID      string
	displayName string

	roomID    string
	teamSize  int
	countdown clockwork.Timer
}

// NewClient creates a sync client for one user.
func NewClient(server Server, source Source, handler Handler, cfg Config, clock clockwork.Clock, userID, displayName string) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultConfig().Countdown
	}
	return &Client{
		server:      server,
		source:      source,
		handler:     handler,
		clock:       clock,
		cfg:         cfg,
		userID:      userID,
		displayName: displayName,
	}
}

// Run joins the queue and drives the sync loop until the call starts, the
// queue wait times out, or the context is cancelled.
func (c *Client) Run(ctx context.Context) error {
	status, err := c.server.Join(ctx, c.userID, c.displayName)
	if err != nil {
		return fmt.Errorf("join queue: %w", err)
	}
	done, err := c.apply(ctx, status)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	var evCh <-chan *events.Envelope
	if c.source != nil {
		ch, cancel, err := c.source.Subscribe(c.userID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", c.userID).Msg("push subscription unavailable, falling back to polling")
		} else {
			evCh = ch
			defer cancel()
		}
	}

	ticker := c.clock.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	defer c.cancelCountdown(false)

	for {
		var countdownCh <-chan time.Time
		if c.countdown != nil {
			countdownCh = c.countdown.Chan()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.Chan():
			done, err := c.poll(ctx)
			if err != nil {
				c.retrying(err)
				continue
			}
			if done {
				return nil
			}

		case env, ok := <-evCh:
			if !ok {
				evCh = nil
				continue
			}
			done, err := c.handleEvent(ctx, env)
			if err != nil {
				c.retrying(err)
				continue
			}
			if done {
				return nil
			}

		case <-countdownCh:
			done, err := c.fireCountdown(ctx)
			if err != nil {
				c.retrying(err)
				continue
			}
			if done {
				return nil
			}
		}
	}
}

// LeaveQueue withdraws the user from matchmaking.
func (c *Client) LeaveQueue(ctx context.Context) error {
	if err := c.server.Leave(ctx, c.userID); err != nil {
		return err
	}
	if c.handler.OnLeft != nil {
		c.handler.OnLeft()
	}
	return nil
}

// LeaveLobby backs the user out of their current lobby, if any.
func (c *Client) LeaveLobby(ctx context.Context) error {
	if c.roomID == "" {
		return nil
	}
	if err := c.server.LeaveRoom(ctx, c.roomID, c.userID); err != nil {
		return err
	}
	c.roomID = ""
	c.cancelCountdown(false)
	if c.handler.OnLeft != nil {
		c.handler.OnLeft()
	}
	return nil
}

// poll refreshes from the server; in the queue that means Status, in a lobby
// it means the room itself.
func (c *Client) poll(ctx context.Context) (bool, error) {
	if c.roomID != "" {
		room, err := c.server.GetRoom(ctx, c.roomID)
		if err != nil {
			return false, err
		}
		return c.applyRoom(room)
	}

	status, err := c.server.Status(ctx, c.userID)
	if err != nil {
		return false, err
	}
	return c.apply(ctx, status)
}

func (c *Client) apply(ctx context.Context, status models.QueueStatus) (bool, error) {
	switch status.Status {
	case models.QueueStateQueued:
		if c.handler.OnQueued != nil {
			c.handler.OnQueued(status)
		}
		return false, nil

	case models.QueueStateMatched:
		return c.enterLobby(ctx, status.RoomID)

	case models.QueueStateTimedOut:
		if c.handler.OnTimedOut != nil {
			c.handler.OnTimedOut()
		}
		return true, nil

	default:
		// idle: the server no longer knows this client, nothing to sync
		if c.handler.OnLeft != nil {
			c.handler.OnLeft()
		}
		return true, nil
	}
}

// enterLobby announces arrival in the matched room and starts tracking it.
func (c *Client) enterLobby(ctx context.Context, roomID string) (bool, error) {
	room, err := c.server.MarkJoined(ctx, roomID, c.userID)
	if err != nil {
		if errors.Is(err, models.ErrRoomClosed) || errors.Is(err, models.ErrNotFound) {
			// the group dissolved before this client arrived; re-queue via poll
			c.roomID = ""
			return false, nil
		}
		return false, err
	}

	if _, ok := room.Participant(c.userID); !ok {
		log.Warn().Str("room_id", room.ID).Str("user_id", c.userID).Msg("matched to a room without a seat, ignoring")
		return false, nil
	}

	c.roomID = room.ID
	c.teamSize = room.TeamSize
	if c.handler.OnMatched != nil {
		c.handler.OnMatched(room)
	}
	return c.applyRoom(room)
}

// applyRoom advances the lobby state machine from a fresh room snapshot.
func (c *Client) applyRoom(room *models.Room) (bool, error) {
	switch room.Status {
	case models.RoomStatusActive:
		c.cancelCountdown(false)
		if c.handler.OnCallStart != nil {
			c.handler.OnCallStart(room)
		}
		return true, nil

	case models.RoomStatusCompleted:
		// lobby dissolved under us
		c.roomID = ""
		c.cancelCountdown(true)
		if c.handler.OnLeft != nil {
			c.handler.OnLeft()
		}
		return true, nil
	}

	if c.handler.OnLobbyUpdate != nil {
		c.handler.OnLobbyUpdate(room)
	}

	if room.JoinedCount() >= room.TeamSize {
		c.startCountdown()
	} else {
		c.cancelCountdown(true)
	}
	return false, nil
}

// startCountdown arms the pre-call countdown if it is not already running.
// A cancelled countdown restarts from the full duration.
func (c *Client) startCountdown() {
	if c.countdown != nil {
		return
	}
	c.countdown = c.clock.NewTimer(c.cfg.Countdown)
	if c.handler.OnCountdownStarted != nil {
		c.handler.OnCountdownStarted(int(c.cfg.Countdown / time.Second))
	}
}

func (c *Client) cancelCountdown(notify bool) {
	if c.countdown == nil {
		return
	}
	c.countdown.Stop()
	c.countdown = nil
	if notify && c.handler.OnCountdownCancelled != nil {
		c.handler.OnCountdownCancelled()
	}
}

// fireCountdown asks the server to start the call. Any peer may win this
// race; a conflict just means someone else already started it.
func (c *Client) fireCountdown(ctx context.Context) (bool, error) {
	c.countdown = nil

	room, err := c.server.StartCall(ctx, c.roomID)
	if err != nil {
		if errors.Is(err, models.ErrRoomClosed) {
			room, err = c.server.GetRoom(ctx, c.roomID)
			if err != nil {
				return false, err
			}
			return c.applyRoom(room)
		}
		return false, err
	}

	if c.handler.OnCallStart != nil {
		c.handler.OnCallStart(room)
	}
	return true, nil
}

// handleEvent reacts to one push event. Events addressed to someone else are
// dropped; the periodic poll remains the safety net either way.
func (c *Client) handleEvent(ctx context.Context, env *events.Envelope) (bool, error) {
	if env == nil || (env.UserID != "" && env.UserID != c.userID) {
		return false, nil
	}

	switch env.Type {
	case events.TypeRoomCreated:
		payload, err := events.ParsePayload(env)
		if err != nil {
			return false, nil
		}
		created, ok := payload.(events.RoomCreatedPayload)
		if !ok {
			return false, nil
		}
		return c.enterLobby(ctx, created.RoomID)

	case events.TypeParticipantJoined, events.TypeParticipantLeft:
		if c.roomID == "" {
			return false, nil
		}
		room, err := c.server.GetRoom(ctx, c.roomID)
		if err != nil {
			return false, err
		}
		return c.applyRoom(room)

	case events.TypeCallStarted:
		if c.roomID == "" {
			return false, nil
		}
		room, err := c.server.GetRoom(ctx, c.roomID)
		if err != nil {
			return false, err
		}
		return c.applyRoom(room)

	case events.TypeQueueTimeout:
		if c.handler.OnTimedOut != nil {
			c.handler.OnTimedOut()
		}
		return true, nil
	}

	return false, nil
}

func (c *Client) retrying(err error) {
	log.Warn().Err(err).Str("user_id", c.userID).Msg("sync attempt failed, will retry")
	if c.handler.OnRetrying != nil {
		c.handler.OnRetrying(err)
	}
}
