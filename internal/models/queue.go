package models

import (
	"time"
)

// QueueEntry is a user waiting in the global matchmaking pool.
type QueueEntry struct {
	UserID          string    `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	JoinedAt        time.Time `json:"joined_at"`
	GroupSizeTarget int       `json:"group_size_target"`
}

// QueueState defines the matchmaking state reported back to a client.
type QueueState string

const (
	QueueStateIdle     QueueState = "idle"
	QueueStateQueued   QueueState = "queued"
	QueueStateMatched  QueueState = "matched"
	QueueStateTimedOut QueueState = "timed_out"
)

// QueueStatus is the derived matchmaking status for one user. Position is a
// 1-indexed rank by join time and only set while queued; room fields are only
// set once matched.
type QueueStatus struct {
	Status       QueueState    `json:"status"`
	QueueSize    int           `json:"queue_size,omitempty"`
	Position     int           `json:"position,omitempty"`
	GroupSize    int           `json:"group_size,omitempty"`
	RoomID       string        `json:"room_id,omitempty"`
	Topic        string        `json:"topic,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}

// MatchedStatus builds the status response for a user that has a live room.
func MatchedStatus(room *Room) QueueStatus {
	return QueueStatus{
		Status:       QueueStateMatched,
		GroupSize:    room.TeamSize,
		RoomID:       room.ID,
		Topic:        room.Topic,
		Participants: room.Participants,
	}
}
