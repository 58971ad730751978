package room

import (
	"github.com/speakuphq/gdhub/internal/models"
)

// CreateFromQueueRequest carries one formed group from the queue manager into
// the coordinator. Members are the consumed queue entries in FIFO order;
// TriggeredBy is the user whose join completed the group and who is therefore
// already present in the lobby.
type CreateFromQueueRequest struct {
	Topic       string
	TeamSize    int
	Members     []models.QueueEntry
	TriggeredBy string
}
