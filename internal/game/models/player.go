package models

import (
	"fmt"
	"math"

	"github.com/botdiril/botdiril-game-backend/pkg/domain"
)

const (
	DefaultLevel  int64   = 1
	DefaultEnergy float64 = 100
)

// Player is a user's economy ledger. It holds no I/O or transaction state;
// the game service loads, mutates and persists it.
//
// Balances never go below zero. Level and XP only grow under the shipped
// mutations, but the type does not enforce that.
type Player struct {
	ID         domain.Identity `json:"id"`
	Level      int64           `json:"level"`
	XP         int64           `json:"xp"`
	Energy     float64         `json:"energy"`
	Currencies CurrencyMap     `json:"currencies"`
}

// NewPlayer returns the default ledger for an identity seen for the first time.
func NewPlayer(id domain.Identity) *Player {
	return &Player{
		ID:     id,
		Level:  DefaultLevel,
		Energy: DefaultEnergy,
	}
}

// Balance returns the balance for c, or zero for an unknown currency.
func (p *Player) Balance(c Currency) int64 {
	if !c.Valid() {
		return 0
	}
	return p.Currencies[c]
}

// Take removes amount of c. When the balance is short it returns a
// *NotEnoughError with the exact shortfall and leaves the balance untouched.
func (p *Player) Take(c Currency, amount int64) error {
	if !c.Valid() || amount < 0 {
		return fmt.Errorf("take %d %s: %w", amount, c, ErrIllegalAction)
	}
	balance := p.Currencies[c]
	if balance < amount {
		return &NotEnoughError{Currency: c, Shortfall: amount - balance}
	}
	p.Currencies[c] = balance - amount
	return nil
}

// Grant adds amount of c. Balances have no upper bound other than int64.
func (p *Player) Grant(c Currency, amount int64) error {
	if !c.Valid() || amount < 0 {
		return fmt.Errorf("grant %d %s: %w", amount, c, ErrIllegalAction)
	}
	if p.Currencies[c] > math.MaxInt64-amount {
		return fmt.Errorf("grant %d %s: balance overflow: %w", amount, c, ErrIllegalAction)
	}
	p.Currencies[c] += amount
	return nil
}

// XPForLevelUp is the cumulative experience needed to leave level.
func XPForLevelUp(level int64) int64 {
	return level * 1000
}

// GrantXP adds experience and raises the level past every threshold crossed.
// Thresholds are cumulative, so level L is left once XP reaches L*1000.
func (p *Player) GrantXP(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("grant %d xp: %w", amount, ErrIllegalAction)
	}
	if p.XP > math.MaxInt64-amount {
		return fmt.Errorf("grant %d xp: overflow: %w", amount, ErrIllegalAction)
	}
	p.XP += amount
	if reached := p.XP/XPForLevelUp(1) + 1; reached > p.Level {
		p.Level = reached
	}
	return nil
}
