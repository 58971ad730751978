package events

import (
	"time"

	"github.com/speakuphq/gdhub/internal/models"
)

// Event payload types shared between the room service, the outbox relay and
// the gateway.

// RoomCreatedPayload is the payload for a global_gd_room_created event.
type RoomCreatedPayload struct {
	RoomID       string               `json:"room_id"`
	Topic        string               `json:"topic"`
	TeamSize     int                  `json:"team_size"`
	Participants []models.Participant `json:"participants"`
	CreatedAt    time.Time            `json:"created_at"`
}

// ParticipantJoinedPayload is the payload for a global_gd_participant_joined event.
type ParticipantJoinedPayload struct {
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
	JoinedCount int       `json:"joined_count"`
	TeamSize    int       `json:"team_size"`
}

// ParticipantLeftPayload is the payload for a global_gd_participant_left event.
type ParticipantLeftPayload struct {
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	LeftAt      time.Time `json:"left_at"`
	JoinedCount int       `json:"joined_count"`
	TeamSize    int       `json:"team_size"`
}

// CallStartedPayload is the payload for a global_gd_call_started event.
type CallStartedPayload struct {
	RoomID    string    `json:"room_id"`
	Topic     string    `json:"topic"`
	StartedAt time.Time `json:"started_at"`
}

// QueueTimeoutPayload is the payload for a global_gd_queue_timeout event.
type QueueTimeoutPayload struct {
	UserID     string    `json:"user_id"`
	WaitedSec  int       `json:"waited_sec"`
	TimedOutAt time.Time `json:"timed_out_at"`
}
