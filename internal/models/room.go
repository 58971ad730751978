package models

import (
	"time"
)

// RoomStatus defines the lifecycle state of a discussion room.
type RoomStatus string

const (
	RoomStatusLobby     RoomStatus = "lobby"
	RoomStatusActive    RoomStatus = "active"
	RoomStatusCompleted RoomStatus = "completed"
)

// CanTransitionTo reports whether a status change is a legal forward move.
// Rooms never regress; completed is terminal.
func (s RoomStatus) CanTransitionTo(next RoomStatus) bool {
	switch s {
	case RoomStatusLobby:
		return next == RoomStatusActive || next == RoomStatusCompleted
	case RoomStatusActive:
		return next == RoomStatusCompleted
	default:
		return false
	}
}

// Closed reports whether the room no longer accepts lobby activity.
func (s RoomStatus) Closed() bool {
	return s == RoomStatusCompleted
}

// Participant is one member of a room. JoinedAt is nil until the member's
// client has arrived in the lobby view.
type Participant struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	JoinedAt    *time.Time `json:"joined_at,omitempty"`
}

// Room represents a matched group discussion session.
type Room struct {
	ID           string        `json:"id"`
	Topic        string        `json:"topic"`
	TeamSize     int           `json:"team_size"`
	Participants []Participant `json:"participants"`
	Status       RoomStatus    `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Participant returns the participant entry for userID, if present.
func (r *Room) Participant(userID string) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

// JoinedCount returns the number of participants that have arrived in the lobby.
func (r *Room) JoinedCount() int {
	n := 0
	for i := range r.Participants {
		if r.Participants[i].JoinedAt != nil {
			n++
		}
	}
	return n
}
