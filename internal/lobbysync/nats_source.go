package lobbysync

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/speakuphq/gdhub/internal/events"
)

const sourceBufferSize = 16

// NATSSource subscribes to a user's event subject on the bus and delivers
// envelopes to the sync client. It uses a core subscription; the stream keeps
// history for the gateway, a live client only needs what arrives now.
type NATSSource struct {
	nc *nats.Conn
}

// NewNATSSource creates an event source over an existing NATS connection.
func NewNATSSource(nc *nats.Conn) *NATSSource {
	return &NATSSource{nc: nc}
}

// Subscribe starts delivering the user's events. The cancel func drains the
// subscription and closes the channel.
func (s *NATSSource) Subscribe(userID string) (<-chan *events.Envelope, func(), error) {
	ch := make(chan *events.Envelope, sourceBufferSize)

	sub, err := s.nc.Subscribe(events.UserSubject(userID), func(msg *nats.Msg) {
		var env events.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed event")
			return
		}
		select {
		case ch <- &env:
		default:
			log.Warn().Str("user_id", userID).Msg("event buffer full, dropping event")
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", events.UserSubject(userID), err)
	}

	cancel := func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to unsubscribe event source")
		}
		close(ch)
	}
	return ch, cancel, nil
}
