package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/botdiril/botdiril-game-backend/internal/game/models"
	"github.com/botdiril/botdiril-game-backend/internal/game/ports"
	"github.com/botdiril/botdiril-game-backend/internal/game/ports/mocks"
	"github.com/botdiril/botdiril-game-backend/internal/game/store"
	natsevents "github.com/botdiril/botdiril-game-backend/internal/platform/events/nats"
	"github.com/botdiril/botdiril-game-backend/internal/platform/metrics"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	dErrors "github.com/botdiril/botdiril-game-backend/pkg/domain-errors"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/sentinel"
)

const playerID = domain.Identity(42)

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	store     *store.InMemoryStore
	publisher *mocks.MockEventPublisher
	metrics   *metrics.Metrics
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.store = store.NewInMemory()
	s.publisher = mocks.NewMockEventPublisher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, discardLogger(),
		WithPublisher(s.publisher),
		WithMetrics(s.metrics),
		WithRewards(Rewards{DailyCoins: 150, DailyXP: 0, SpendCoins: 150}),
	)
}

func (s *ServiceSuite) persisted() *models.Player {
	player, err := s.store.FindPlayer(s.ctx, playerID)
	s.Require().NoError(err)
	return player
}

func (s *ServiceSuite) seedCoins(coins int64) {
	player := models.NewPlayer(playerID)
	s.Require().NoError(player.Grant(models.Coins, coins))
	s.store.Put(*player)
}

func (s *ServiceSuite) TestExecute_CreatesLedgerOnFirstAccess() {
	events, err := s.service.Execute(s.ctx, playerID, func(p *models.Player) error {
		return p.Grant(models.Coins, 150)
	})

	s.Require().NoError(err)
	s.Empty(events)
	player := s.persisted()
	s.Equal(int64(150), player.Balance(models.Coins))
	s.Equal(int64(1), player.Level)
	s.Equal(playerID, player.ID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.LedgerTransactions.WithLabelValues("execute", metrics.TxCommitted)))
}

func (s *ServiceSuite) TestExecute_NotEnoughLeavesLedgerUnchanged() {
	s.seedCoins(100)

	events, err := s.service.Execute(s.ctx, playerID, func(p *models.Player) error {
		return p.Take(models.Coins, 150)
	})

	s.Require().Error(err)
	s.Nil(events)
	s.True(dErrors.HasCode(err, dErrors.CodeNotEnough))
	var notEnough *models.NotEnoughError
	s.Require().ErrorAs(err, &notEnough)
	s.Equal(models.Coins, notEnough.Currency)
	s.Equal(int64(50), notEnough.Shortfall)
	s.Equal(int64(100), s.persisted().Balance(models.Coins))
}

func (s *ServiceSuite) TestExecute_GameErrorAfterPartialMutationPersistsNothing() {
	s.seedCoins(10)

	_, err := s.service.Execute(s.ctx, playerID, func(p *models.Player) error {
		if err := p.Grant(models.Keys, 3); err != nil {
			return err
		}
		return fmt.Errorf("reroll: %w", models.ErrIllegalAction)
	})

	s.True(dErrors.HasCode(err, dErrors.CodeIllegalAction))
	player := s.persisted()
	s.Zero(player.Balance(models.Keys))
	s.Equal(int64(10), player.Balance(models.Coins))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.LedgerTransactions.WithLabelValues("execute", metrics.TxRejected)))
}

func (s *ServiceSuite) TestExecute_GameErrorOnAbsentLedgerCreatesNothing() {
	_, err := s.service.Execute(s.ctx, playerID, func(p *models.Player) error {
		return p.Take(models.Coins, 1)
	})

	s.True(dErrors.HasCode(err, dErrors.CodeNotEnough))
	_, err = s.store.FindPlayer(s.ctx, playerID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestExecute_LevelUpIsPublishedAfterCommit() {
	s.publisher.EXPECT().
		Publish(gomock.Any(), playerID, []models.PlayerEvent{models.EventLevelUp}).
		DoAndReturn(func(ctx context.Context, id domain.Identity, _ []models.PlayerEvent) error {
			player, err := s.store.FindPlayer(ctx, id)
			s.Require().NoError(err)
			s.Equal(int64(5), player.Level, "events are published only after the ledger is committed")
			return nil
		})

	events, err := s.service.Execute(s.ctx, playerID, func(p *models.Player) error {
		p.Level = 5
		return nil
	})

	s.Require().NoError(err)
	s.Equal([]models.PlayerEvent{models.EventLevelUp}, events)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.LevelUps))
}

func (s *ServiceSuite) TestExecute_PublishFailureDoesNotFailCommittedMutation() {
	s.publisher.EXPECT().
		Publish(gomock.Any(), playerID, gomock.Any()).
		Return(errors.New("broker unavailable"))

	events, err := s.service.Execute(s.ctx, playerID, func(p *models.Player) error {
		return p.GrantXP(1000)
	})

	s.Require().NoError(err)
	s.Equal([]models.PlayerEvent{models.EventLevelUp}, events)
	s.Equal(int64(2), s.persisted().Level)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.EventsPublished.WithLabelValues("failed")))
}

func (s *ServiceSuite) TestExecute_PublishHasItsOwnDeadline() {
	var deadline time.Time
	var hasDeadline bool
	var callerCancelled error
	s.publisher.EXPECT().
		Publish(gomock.Any(), playerID, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.Identity, _ []models.PlayerEvent) error {
			deadline, hasDeadline = ctx.Deadline()
			callerCancelled = ctx.Err()
			return nil
		})

	ctx, cancel := context.WithTimeout(s.ctx, time.Hour)
	defer cancel()
	start := time.Now()
	_, err := s.service.Execute(ctx, playerID, func(p *models.Player) error {
		return p.GrantXP(1000)
	})

	s.Require().NoError(err)
	s.Require().True(hasDeadline, "publication must be bounded")
	s.WithinDuration(start.Add(DefaultPublishTimeout), deadline, time.Second)
	s.NoError(callerCancelled)
}

func (s *ServiceSuite) TestExecute_HungPublisherDoesNotHoldTheResponse() {
	svc := New(s.store, discardLogger(),
		WithPublisher(s.publisher),
		WithMetrics(s.metrics),
		WithPublishTimeout(20*time.Millisecond),
	)
	s.publisher.EXPECT().
		Publish(gomock.Any(), playerID, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.Identity, _ []models.PlayerEvent) error {
			<-ctx.Done()
			return ctx.Err()
		})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Execute(context.Background(), playerID, func(p *models.Player) error {
			return p.GrantXP(1000)
		})
		done <- err
	}()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.FailNow("Execute blocked on a hung publisher")
	}
	s.Equal(int64(2), s.persisted().Level)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.EventsPublished.WithLabelValues("failed")))
}

func TestExecute_PublishesThroughNATS(t *testing.T) {
	conn := &deadlineConn{}
	svc := New(store.NewInMemory(), discardLogger(),
		WithPublisher(natsevents.NewPublisher(conn, "game.player.events")),
	)

	events, err := svc.Execute(context.Background(), playerID, func(p *models.Player) error {
		return p.GrantXP(1000)
	})

	require.NoError(t, err)
	assert.Equal(t, []models.PlayerEvent{models.EventLevelUp}, events)
	assert.Equal(t, 1, conn.published)
	assert.NoError(t, conn.flushErr)
}

// deadlineConn refuses to flush without a deadline, like *nats.Conn.
type deadlineConn struct {
	published int
	flushErr  error
}

func (c *deadlineConn) PublishMsg(*nats.Msg) error {
	c.published++
	return nil
}

func (c *deadlineConn) FlushWithContext(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		c.flushErr = nats.ErrNoDeadlineContext
	}
	return c.flushErr
}

func (s *ServiceSuite) TestExecute_CancelledContextWritesNothing() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.service.Execute(ctx, playerID, func(p *models.Player) error {
		return p.Grant(models.Coins, 150)
	})

	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	_, err = s.store.FindPlayer(s.ctx, playerID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestExecute_CancelledDuringMutationWritesNothing() {
	ctx, cancel := context.WithCancel(s.ctx)

	_, err := s.service.Execute(ctx, playerID, func(p *models.Player) error {
		cancel()
		return p.Grant(models.Coins, 150)
	})

	s.Require().Error(err)
	_, err = s.store.FindPlayer(s.ctx, playerID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestExecute_PanicAbortsTransaction() {
	s.seedCoins(100)

	s.Panics(func() {
		_, _ = s.service.Execute(s.ctx, playerID, func(p *models.Player) error {
			_ = p.Take(models.Coins, 100)
			panic("mutation bug")
		})
	})

	s.Equal(int64(100), s.persisted().Balance(models.Coins))
}

func (s *ServiceSuite) TestDailyAndSpend() {
	events, err := s.service.Daily(s.ctx, playerID)
	s.Require().NoError(err)
	s.Empty(events)
	s.Equal(int64(150), s.persisted().Balance(models.Coins))

	_, err = s.service.Spend(s.ctx, playerID)
	s.Require().NoError(err)
	s.Zero(s.persisted().Balance(models.Coins))

	_, err = s.service.Spend(s.ctx, playerID)
	var notEnough *models.NotEnoughError
	s.Require().ErrorAs(err, &notEnough)
	s.Equal(int64(150), notEnough.Shortfall)
}

func (s *ServiceSuite) TestDaily_GrantsConfiguredXP() {
	svc := New(s.store, discardLogger(), WithRewards(Rewards{DailyCoins: 10, DailyXP: 1000}))

	events, err := svc.Daily(s.ctx, playerID)

	s.Require().NoError(err)
	s.Equal([]models.PlayerEvent{models.EventLevelUp}, events)
	player := s.persisted()
	s.Equal(int64(10), player.Balance(models.Coins))
	s.Equal(int64(2), player.Level)
}

func (s *ServiceSuite) TestBalance_DefaultLedgerIsNotPersisted() {
	player, err := s.service.Balance(s.ctx, playerID)

	s.Require().NoError(err)
	s.Equal(*models.NewPlayer(playerID), *player)
	_, err = s.store.FindPlayer(s.ctx, playerID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestBalance_ReturnsStoredLedger() {
	s.seedCoins(75)

	player, err := s.service.Balance(s.ctx, playerID)

	s.Require().NoError(err)
	s.Equal(int64(75), player.Balance(models.Coins))
}

func TestExecute_StoreFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(store *mocks.MockLedgerStore, tx *mocks.MockLedgerTx)
		wantCode dErrors.Code
	}{
		{
			name: "commit conflict surfaces as conflict",
			setup: func(store *mocks.MockLedgerStore, tx *mocks.MockLedgerTx) {
				tx.EXPECT().FindPlayer(gomock.Any(), playerID).Return(nil, sentinel.ErrNotFound)
				tx.EXPECT().UpsertPlayer(gomock.Any(), gomock.Any()).Return(nil)
				store.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, fn func(ports.LedgerTx) error) error {
						if err := fn(tx); err != nil {
							return err
						}
						return fmt.Errorf("commit: %w", sentinel.ErrConflict)
					})
			},
			wantCode: dErrors.CodeConflict,
		},
		{
			name: "load failure surfaces as internal and skips mutation",
			setup: func(store *mocks.MockLedgerStore, tx *mocks.MockLedgerTx) {
				tx.EXPECT().FindPlayer(gomock.Any(), playerID).Return(nil, errors.New("connection reset"))
				store.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, fn func(ports.LedgerTx) error) error {
						return fn(tx)
					})
			},
			wantCode: dErrors.CodeInternal,
		},
		{
			name: "upsert failure surfaces as internal",
			setup: func(store *mocks.MockLedgerStore, tx *mocks.MockLedgerTx) {
				tx.EXPECT().FindPlayer(gomock.Any(), playerID).Return(models.NewPlayer(playerID), nil)
				tx.EXPECT().UpsertPlayer(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
				store.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, fn func(ports.LedgerTx) error) error {
						return fn(tx)
					})
			},
			wantCode: dErrors.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockLedgerStore(ctrl)
			tx := mocks.NewMockLedgerTx(ctrl)
			publisher := mocks.NewMockEventPublisher(ctrl)
			tt.setup(store, tx)

			svc := New(store, discardLogger(), WithPublisher(publisher))
			events, err := svc.Execute(context.Background(), playerID, func(p *models.Player) error {
				p.Level++
				return p.Grant(models.Coins, 5)
			})

			if !dErrors.HasCode(err, tt.wantCode) {
				t.Fatalf("expected code %s, got %v", tt.wantCode, err)
			}
			if events != nil {
				t.Fatalf("expected no events on failure, got %v", events)
			}
		})
	}
}
