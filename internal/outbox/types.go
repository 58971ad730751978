package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/speakuphq/gdhub/internal/events"
)

// Event is one user-addressed push event waiting in the outbox table.
type Event struct {
	ID        uuid.UUID
	UserID    string
	EventType events.Type
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}

// Publisher hands an outbox event to the message bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
