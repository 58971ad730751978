package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the wire format for every push event. Each event is addressed
// to a single user; room-wide notifications fan out as one envelope per
// participant.
type Envelope struct {
	ID        string          `json:"id"`        // Event UUID
	UserID    string          `json:"user_id"`   // Addressee
	Type      Type            `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// Type represents the type of a matchmaking push event.
type Type string

const (
	TypeRoomCreated       Type = "global_gd_room_created"
	TypeParticipantJoined Type = "global_gd_participant_joined"
	TypeParticipantLeft   Type = "global_gd_participant_left"
	TypeCallStarted       Type = "global_gd_call_started"
	TypeQueueTimeout      Type = "global_gd_queue_timeout"
)

// UserSubjectPrefix is the NATS subject prefix for user-addressed events.
// The full subject is UserSubjectPrefix + userID.
const UserSubjectPrefix = "gd.user."

// UserSubject returns the NATS subject carrying events for one user.
func UserSubject(userID string) string {
	return UserSubjectPrefix + userID
}

// ParsePayload parses an envelope's data into the payload struct for its type.
func ParsePayload(env *Envelope) (interface{}, error) {
	switch env.Type {
	case TypeRoomCreated:
		var payload RoomCreatedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("parse %s payload: %w", env.Type, err)
		}
		return payload, nil

	case TypeParticipantJoined:
		var payload ParticipantJoinedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("parse %s payload: %w", env.Type, err)
		}
		return payload, nil

	case TypeParticipantLeft:
		var payload ParticipantLeftPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("parse %s payload: %w", env.Type, err)
		}
		return payload, nil

	case TypeCallStarted:
		var payload CallStartedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("parse %s payload: %w", env.Type, err)
		}
		return payload, nil

	case TypeQueueTimeout:
		var payload QueueTimeoutPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("parse %s payload: %w", env.Type, err)
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
