package models

// PlayerEvent is a domain event derived from a ledger mutation.
type PlayerEvent string

const (
	EventLevelUp PlayerEvent = "LevelUp"
)
