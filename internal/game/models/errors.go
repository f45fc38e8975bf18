package models

import (
	"errors"
	"fmt"
)

// ErrIllegalAction rejects a mutation for state-specific reasons.
var ErrIllegalAction = errors.New("illegal action")

// NotEnoughError reports the exact amount a player is missing.
type NotEnoughError struct {
	Currency  Currency
	Shortfall int64
}

func (e *NotEnoughError) Error() string {
	return fmt.Sprintf("insufficient resource: need %d more %s", e.Shortfall, e.Currency.DisplayName())
}

// IsGameError reports whether err is an expected business rejection rather
// than an infrastructure failure.
func IsGameError(err error) bool {
	var notEnough *NotEnoughError
	return errors.As(err, &notEnough) || errors.Is(err, ErrIllegalAction)
}
