package events

import (
	"context"
	"log/slog"

	"github.com/botdiril/botdiril-game-backend/internal/game/models"
	"github.com/botdiril/botdiril-game-backend/internal/platform/metrics"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/circuit"
)

// Publisher sends committed player events to a stream.
type Publisher interface {
	Publish(ctx context.Context, id domain.Identity, evts []models.PlayerEvent) error
}

// GuardedPublisher tracks stream health with a circuit breaker. Every call
// still reaches the stream; the breaker only decides when the stream is
// reported degraded or recovered, so an outage logs once instead of per
// command.
type GuardedPublisher struct {
	next    Publisher
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewGuardedPublisher(next Publisher, breaker *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *GuardedPublisher {
	return &GuardedPublisher{next: next, breaker: breaker, logger: logger, metrics: m}
}

func (g *GuardedPublisher) Publish(ctx context.Context, id domain.Identity, evts []models.PlayerEvent) error {
	err := g.next.Publish(ctx, id, evts)
	if err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.metrics.SetStreamDegraded(true)
			g.logger.ErrorContext(ctx, "event stream degraded",
				"stream", g.breaker.Name(),
				"error", err,
			)
		}
		return err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.metrics.SetStreamDegraded(false)
		g.logger.InfoContext(ctx, "event stream recovered", "stream", g.breaker.Name())
	}
	return nil
}
