package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/botdiril/botdiril-game-backend/internal/game/models"
	"github.com/botdiril/botdiril-game-backend/internal/platform/events"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
)

// DefaultFlushTimeout bounds a flush whose context has no deadline;
// *nats.Conn refuses to flush without one.
const DefaultFlushTimeout = 2 * time.Second

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// Publisher sends player events to one NATS subject.
type Publisher struct {
	conn    Conn
	subject string
}

func NewPublisher(conn Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// Connect dials url. An empty url is an error: the nats provider was
// selected explicitly.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is empty")
	}
	nc, err := nats.Connect(url, nats.Name("botdiril-game-backend"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Publish sends one message per event and flushes so the server has seen
// them before returning.
func (p *Publisher) Publish(ctx context.Context, id domain.Identity, evts []models.PlayerEvent) error {
	msgs, err := events.Encode(ctx, id, evts)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	for _, m := range msgs {
		msg := nats.NewMsg(p.subject)
		msg.Header.Set("Player-Id", string(m.Key))
		msg.Data = m.Value
		if err := p.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish player event: %w", err)
		}
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFlushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush player events: %w", err)
	}
	return nil
}
