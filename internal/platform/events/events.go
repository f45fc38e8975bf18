// Package events turns committed player events into wire envelopes for the
// event stream publishers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/botdiril/botdiril-game-backend/internal/game/models"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	"github.com/botdiril/botdiril-game-backend/pkg/requestcontext"
)

// Envelope is one published player event. ID is unique per publication so
// consumers can deduplicate redeliveries.
type Envelope struct {
	ID         uuid.UUID          `json:"id"`
	Identity   domain.Identity    `json:"identity"`
	Type       models.PlayerEvent `json:"type"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// Message is an encoded envelope ready for a transport.
type Message struct {
	Key   []byte
	Value []byte
}

// Encode builds one message per event. All events of one commit share the
// request time and are keyed by identity so a partitioned stream keeps a
// player's events in order.
func Encode(ctx context.Context, id domain.Identity, evts []models.PlayerEvent) ([]Message, error) {
	occurredAt := requestcontext.Now(ctx).UTC()
	key := []byte(id.String())

	msgs := make([]Message, 0, len(evts))
	for _, evt := range evts {
		value, err := json.Marshal(Envelope{
			ID:         uuid.New(),
			Identity:   id,
			Type:       evt,
			OccurredAt: occurredAt,
		})
		if err != nil {
			return nil, fmt.Errorf("encode %s event: %w", evt, err)
		}
		msgs = append(msgs, Message{Key: key, Value: value})
	}
	return msgs, nil
}
