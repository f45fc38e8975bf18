// Package action runs a single ledger mutation and derives the domain events
// it caused by diffing the ledger before and after.
package action

import (
	"github.com/botdiril/botdiril-game-backend/internal/game/models"
)

// Mutation changes exactly one ledger in place. It must not perform I/O and
// reports business rejections as game errors (see models.IsGameError).
type Mutation func(player *models.Player) error

// Context holds the pre-mutation snapshot and the events discovered so far.
// It lives for one mutation.
type Context struct {
	snapshot models.Player
	events   []models.PlayerEvent
}

// Run applies fn to player and returns the derived events in discovery order.
//
// When fn fails the player is restored to its snapshot and the error is
// returned unchanged. A level increase of any size yields a single LevelUp;
// XP is not consulted.
func Run(player *models.Player, fn Mutation) ([]models.PlayerEvent, error) {
	ctx := &Context{snapshot: *player}

	if err := fn(player); err != nil {
		*player = ctx.snapshot
		return nil, err
	}

	ctx.update(player)
	return ctx.events, nil
}

func (c *Context) update(observed *models.Player) {
	if observed.Level > c.snapshot.Level {
		c.events = append(c.events, models.EventLevelUp)
		c.snapshot = *observed
	}
}
