package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/botdiril/botdiril-game-backend/internal/game/action"
	"github.com/botdiril/botdiril-game-backend/internal/game/models"
	"github.com/botdiril/botdiril-game-backend/internal/game/ports"
	"github.com/botdiril/botdiril-game-backend/internal/platform/metrics"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	dErrors "github.com/botdiril/botdiril-game-backend/pkg/domain-errors"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/sentinel"
)

const tracerName = "github.com/botdiril/botdiril-game-backend/internal/game/service"

// Rewards are the amounts the built-in commands move. They are supplied by
// configuration, not by the mutation engine.
type Rewards struct {
	DailyCoins int64
	DailyXP    int64
	SpendCoins int64
}

// DefaultPublishTimeout bounds event publication after a commit.
const DefaultPublishTimeout = 2 * time.Second

// DefaultRewards matches the amounts the game has always used.
var DefaultRewards = Rewards{DailyCoins: 150, SpendCoins: 150}

// Service loads, mutates and persists ledgers. Each mutation is one store
// transaction; the service holds no cross-request state of its own.
type Service struct {
	store     ports.LedgerStore
	publisher ports.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	rewards   Rewards

	publishTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher forwards committed events to p.
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithPublishTimeout overrides DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithMetrics records transaction outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRewards overrides the command amounts.
func WithRewards(r Rewards) Option {
	return func(s *Service) { s.rewards = r }
}

// New constructs a game service over store.
func New(store ports.LedgerStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		rewards: DefaultRewards,

		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Execute runs fn against the ledger of id inside one store transaction and
// returns the events it produced. A missing ledger starts from the defaults
// and is inserted on commit. Any error aborts the transaction.
func (s *Service) Execute(ctx context.Context, id domain.Identity, fn action.Mutation) ([]models.PlayerEvent, error) {
	return s.execute(ctx, "execute", id, fn)
}

// Daily grants the daily coin and experience bonus.
func (s *Service) Daily(ctx context.Context, id domain.Identity) ([]models.PlayerEvent, error) {
	coins, xp := s.rewards.DailyCoins, s.rewards.DailyXP
	return s.execute(ctx, "daily", id, func(p *models.Player) error {
		if err := p.Grant(models.Coins, coins); err != nil {
			return err
		}
		return p.GrantXP(xp)
	})
}

// Spend takes the configured coin cost.
func (s *Service) Spend(ctx context.Context, id domain.Identity) ([]models.PlayerEvent, error) {
	cost := s.rewards.SpendCoins
	return s.execute(ctx, "spend", id, func(p *models.Player) error {
		return p.Take(models.Coins, cost)
	})
}

// Balance returns the stored ledger, or the unsaved default ledger when the
// player has never been written.
func (s *Service) Balance(ctx context.Context, id domain.Identity) (*models.Player, error) {
	player, err := s.store.FindPlayer(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.NewPlayer(id), nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load ledger",
			"player_id", int64(id),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ledger")
	}
	return player, nil
}

func (s *Service) execute(ctx context.Context, command string, id domain.Identity, fn action.Mutation) ([]models.PlayerEvent, error) {
	ctx, span := s.tracer.Start(ctx, "game."+command, trace.WithAttributes(
		attribute.Int64("player.id", int64(id)),
	))
	defer span.End()

	var events []models.PlayerEvent
	err := s.store.RunInTx(ctx, func(tx ports.LedgerTx) error {
		player, err := tx.FindPlayer(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			player = models.NewPlayer(id)
		} else if err != nil {
			return err
		}

		derived, err := action.Run(player, fn)
		if err != nil {
			return err
		}
		if err := tx.UpsertPlayer(ctx, player); err != nil {
			return err
		}
		events = derived
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "ledger transaction aborted")
		return nil, s.translate(ctx, command, id, err)
	}

	s.metrics.IncTransaction(command, metrics.TxCommitted)
	s.metrics.AddLevelUps(countLevelUps(events))
	span.SetAttributes(attribute.Int("events", len(events)))
	s.publish(ctx, id, events)

	if events == nil {
		events = []models.PlayerEvent{}
	}
	return events, nil
}

// translate turns an aborted transaction into a domain error. Game errors
// are expected and keep their cause so transports can show the shortfall.
func (s *Service) translate(ctx context.Context, command string, id domain.Identity, err error) error {
	var notEnough *models.NotEnoughError
	switch {
	case errors.As(err, &notEnough):
		s.metrics.IncTransaction(command, metrics.TxRejected)
		return dErrors.Wrap(err, dErrors.CodeNotEnough, notEnough.Error())
	case errors.Is(err, models.ErrIllegalAction):
		s.metrics.IncTransaction(command, metrics.TxRejected)
		return dErrors.Wrap(err, dErrors.CodeIllegalAction, "illegal action")
	case errors.Is(err, sentinel.ErrConflict):
		s.metrics.IncTransaction(command, metrics.TxConflict)
		s.logger.WarnContext(ctx, "ledger transaction conflict",
			"command", command,
			"player_id", int64(id),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeConflict, "ledger transaction conflict")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.metrics.IncTransaction(command, metrics.TxFailed)
		s.logger.WarnContext(ctx, "ledger transaction cancelled",
			"command", command,
			"player_id", int64(id),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger transaction cancelled")
	default:
		s.metrics.IncTransaction(command, metrics.TxFailed)
		s.logger.ErrorContext(ctx, "ledger transaction failed",
			"command", command,
			"player_id", int64(id),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger transaction failed")
	}
}

// publish runs after commit. Failures are logged and counted only: the
// ledger change is already durable and must not be reported as failed.
// Publication outlives a cancelled request but never the publish timeout.
func (s *Service) publish(ctx context.Context, id domain.Identity, events []models.PlayerEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, id, events); err != nil {
		s.metrics.IncPublished("failed")
		s.logger.WarnContext(ctx, "failed to publish player events",
			"player_id", int64(id),
			"events", len(events),
			"error", err,
		)
		return
	}
	s.metrics.IncPublished("ok")
}

func countLevelUps(events []models.PlayerEvent) int {
	n := 0
	for _, e := range events {
		if e == models.EventLevelUp {
			n++
		}
	}
	return n
}
