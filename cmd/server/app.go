package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	authservice "github.com/botdiril/botdiril-game-backend/internal/auth/service"
	identitystore "github.com/botdiril/botdiril-game-backend/internal/auth/store/identity"
	keystore "github.com/botdiril/botdiril-game-backend/internal/auth/store/keys"
	"github.com/botdiril/botdiril-game-backend/internal/auth/token"
	gamehandler "github.com/botdiril/botdiril-game-backend/internal/game/handler"
	"github.com/botdiril/botdiril-game-backend/internal/game/ports"
	gameservice "github.com/botdiril/botdiril-game-backend/internal/game/service"
	gamestore "github.com/botdiril/botdiril-game-backend/internal/game/store"
	"github.com/botdiril/botdiril-game-backend/internal/platform/config"
	"github.com/botdiril/botdiril-game-backend/internal/platform/events"
	"github.com/botdiril/botdiril-game-backend/internal/platform/events/kafka"
	natsevents "github.com/botdiril/botdiril-game-backend/internal/platform/events/nats"
	"github.com/botdiril/botdiril-game-backend/internal/platform/httpserver"
	"github.com/botdiril/botdiril-game-backend/internal/platform/metrics"
	"github.com/botdiril/botdiril-game-backend/internal/platform/postgres"
	"github.com/botdiril/botdiril-game-backend/internal/platform/redis"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/circuit"
)

// app owns the long-running parts of the process.
type app struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// Run serves until ctx is cancelled or the server fails.
func (a *app) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, a.server, a.shutdownTimeout, a.logger)
	})
	return g.Wait()
}

// bootstrap connects every backing store and wires the services. The
// returned cleanup releases connections in reverse order.
func bootstrap(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, func(), error) {
	var cleanupFns []func()
	fail := func(err error) (*app, func(), error) {
		runCleanup(cleanupFns)()
		return nil, nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fail(err)
	}
	cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })

	pool, err := postgres.Connect(ctx, cfg.Postgres)
	if err != nil {
		return fail(err)
	}
	cleanupFns = append(cleanupFns, pool.Close)

	ledgers := gamestore.NewPostgres(pool, gamestore.WithSynchronousCommit(cfg.Postgres.SynchronousCommit))
	if cfg.Postgres.Migrate {
		if err := ledgers.Migrate(ctx); err != nil {
			return fail(err)
		}
	}

	publisher, closePublisher, err := newPublisher(ctx, cfg.Events)
	if err != nil {
		return fail(err)
	}
	cleanupFns = append(cleanupFns, closePublisher)
	if publisher != nil {
		publisher = events.NewGuardedPublisher(publisher, circuit.New(cfg.Events.Provider), log, m)
	}

	verifier := token.NewVerifier(
		keystore.NewRedis(rdb, keystore.WithPrefix(cfg.Auth.KeyPrefix), keystore.WithMetrics(m)),
		token.WithLeeway(cfg.Auth.Leeway),
	)
	resolver := identitystore.NewRedis(rdb, identitystore.WithPrefix(cfg.Auth.SubjectPrefix), identitystore.WithMetrics(m))
	authenticator := authservice.New(verifier, resolver, log, authservice.WithMetrics(m))

	game := gameservice.New(ledgers, log,
		gameservice.WithPublisher(publisher),
		gameservice.WithMetrics(m),
		gameservice.WithPublishTimeout(cfg.Events.PublishTimeout),
		gameservice.WithRewards(gameservice.Rewards{
			DailyCoins: cfg.Rewards.DailyCoins,
			DailyXP:    cfg.Rewards.DailyXP,
			SpendCoins: cfg.Rewards.SpendCoins,
		}),
	)

	router := newRouter(routerDeps{
		logger:         log,
		registry:       registry,
		game:           gamehandler.New(game, authenticator, log),
		requestTimeout: cfg.Server.RequestTimeout,
		health: []healthCheck{
			{name: "redis", check: rdb.Health},
			{name: "postgres", check: pool.Ping},
		},
	})

	return &app{
		server:          httpserver.New(cfg.Server.Addr, router),
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		logger:          log,
	}, runCleanup(cleanupFns), nil
}

// newPublisher selects the event stream. The none provider returns a nil
// publisher, which the game service treats as disabled.
func newPublisher(ctx context.Context, cfg config.EventsConfig) (ports.EventPublisher, func(), error) {
	switch cfg.Provider {
	case config.EventsKafka:
		client, err := kafka.NewClient(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		if err := kafka.EnsureTopic(ctx, client, cfg.KafkaTopic, 1, 1); err != nil {
			client.Close()
			return nil, nil, err
		}
		return kafka.NewPublisher(client, cfg.KafkaTopic), client.Close, nil
	case config.EventsNATS:
		nc, err := natsevents.Connect(cfg.NATSURL)
		if err != nil {
			return nil, nil, err
		}
		return natsevents.NewPublisher(nc, cfg.NATSSubject), nc.Close, nil
	case config.EventsNone:
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown events provider %q", cfg.Provider)
	}
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order. It is safe to call more than once.
func runCleanup(fns []func()) func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
