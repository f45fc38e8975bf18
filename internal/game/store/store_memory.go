package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/botdiril/botdiril-game-backend/internal/game/models"
	"github.com/botdiril/botdiril-game-backend/internal/game/ports"
	"github.com/botdiril/botdiril-game-backend/pkg/domain"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/sentinel"
)

// InMemoryStore keeps ledgers in a map. Transactions are serialized and
// stage their writes until commit, so an aborted transaction leaves nothing
// behind. Intended for tests and local runs.
type InMemoryStore struct {
	mu      sync.Mutex
	players map[domain.Identity]models.Player
}

// NewInMemory constructs an empty in-memory ledger store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{players: make(map[domain.Identity]models.Player)}
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, writes: make(map[domain.Identity]models.Player)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for id, player := range tx.writes {
		s.players[id] = player
	}
	return nil
}

func (s *InMemoryStore) FindPlayer(_ context.Context, id domain.Identity) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &player, nil
}

// Put seeds a ledger outside any transaction.
func (s *InMemoryStore) Put(player models.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[player.ID] = player
}

type memoryTx struct {
	store  *InMemoryStore
	writes map[domain.Identity]models.Player
}

func (t *memoryTx) FindPlayer(_ context.Context, id domain.Identity) (*models.Player, error) {
	if player, ok := t.writes[id]; ok {
		return &player, nil
	}
	player, ok := t.store.players[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &player, nil
}

func (t *memoryTx) UpsertPlayer(_ context.Context, player *models.Player) error {
	t.writes[player.ID] = *player
	return nil
}
