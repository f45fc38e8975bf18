package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/botdiril/botdiril-game-backend/internal/game/models"
	"github.com/botdiril/botdiril-game-backend/internal/game/ports"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/sentinel"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	// DefaultSynchronousCommit makes commit wait until synchronous standbys
	// have applied the transaction. Without synchronous standbys PostgreSQL
	// falls back to a durable local commit.
	DefaultSynchronousCommit = "remote_apply"

	migrationsDir = "migrations"

	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// PostgresStore persists ledgers in the players table.
type PostgresStore struct {
	pool              *pgxpool.Pool
	synchronousCommit string
	txTimeout         time.Duration
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithSynchronousCommit overrides the synchronous_commit level used by
// ledger transactions.
func WithSynchronousCommit(level string) PostgresOption {
	return func(s *PostgresStore) {
		if level != "" {
			s.synchronousCommit = level
		}
	}
}

// WithTxTimeout bounds transactions whose context carries no deadline.
// Without it the caller's context is the only bound.
func WithTxTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed ledger store.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		pool:              pool,
		synchronousCommit: DefaultSynchronousCommit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Migrate applies pending goose migrations from the embedded schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// RunInTx runs fn in a SERIALIZABLE transaction whose commit is acknowledged
// at the configured synchronous_commit level.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return translate(err, "begin transaction")
	}
	// Rollback after a successful commit is a no-op; on every other path it
	// aborts, even when ctx is already cancelled.
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if _, err := tx.Exec(ctx, `SELECT set_config('synchronous_commit', $1, true)`, s.synchronousCommit); err != nil {
		return translate(err, "set synchronous_commit")
	}

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return translate(err, "commit")
	}
	return nil
}

// FindPlayer reads a ledger outside any transaction.
func (s *PostgresStore) FindPlayer(ctx context.Context, id domain.Identity) (*models.Player, error) {
	row := s.pool.QueryRow(ctx, `SELECT level, xp, energy, currencies FROM players WHERE id = $1`, int64(id))
	return scanPlayer(id, row)
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) FindPlayer(ctx context.Context, id domain.Identity) (*models.Player, error) {
	row := t.tx.QueryRow(ctx, `SELECT level, xp, energy, currencies FROM players WHERE id = $1 FOR UPDATE`, int64(id))
	return scanPlayer(id, row)
}

func (t *postgresTx) UpsertPlayer(ctx context.Context, player *models.Player) error {
	currencies, err := json.Marshal(player.Currencies)
	if err != nil {
		return fmt.Errorf("marshal currencies: %w", err)
	}
	query := `
		INSERT INTO players (id, level, xp, energy, currencies, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET
			level      = EXCLUDED.level,
			xp         = EXCLUDED.xp,
			energy     = EXCLUDED.energy,
			currencies = EXCLUDED.currencies,
			updated_at = EXCLUDED.updated_at
	`
	_, err = t.tx.Exec(ctx, query, int64(player.ID), player.Level, player.XP, player.Energy, string(currencies))
	if err != nil {
		return translate(err, "upsert player")
	}
	return nil
}

func scanPlayer(id domain.Identity, row pgx.Row) (*models.Player, error) {
	player := &models.Player{ID: id}
	var currencies []byte
	if err := row.Scan(&player.Level, &player.XP, &player.Energy, &currencies); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, translate(err, "find player")
	}
	if err := json.Unmarshal(currencies, &player.Currencies); err != nil {
		return nil, fmt.Errorf("decode currencies for player %s: %w", id, err)
	}
	return player, nil
}

// translate maps serialization failures and deadlocks to sentinel.ErrConflict
// while keeping the driver error in the chain.
func translate(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
