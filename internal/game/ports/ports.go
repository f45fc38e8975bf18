//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

package ports

import (
	"context"

	"github.com/botdiril/botdiril-game-backend/internal/game/models"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
)

// LedgerTx is the view of the ledger store inside one transaction.
type LedgerTx interface {
	// FindPlayer returns sentinel.ErrNotFound when no ledger exists yet.
	FindPlayer(ctx context.Context, id domain.Identity) (*models.Player, error)
	// UpsertPlayer replaces the ledger for player.ID or inserts it.
	UpsertPlayer(ctx context.Context, player *models.Player) error
}

// LedgerStore is the persistent ledger store.
//
// RunInTx runs fn in one atomic transaction with the strongest consistency
// the store offers. It commits only when fn returns nil and aborts on every
// other exit, including panics and context cancellation. Commit contention
// is reported as sentinel.ErrConflict and is never retried here.
type LedgerStore interface {
	RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error
	FindPlayer(ctx context.Context, id domain.Identity) (*models.Player, error)
}

// EventPublisher forwards committed player events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, id domain.Identity, events []models.PlayerEvent) error
}
