package sentinel

import "errors"

// Infrastructure facts returned (optionally wrapped) by stores. Services
// translate them into domain errors; transports never see them directly.
//
// - ErrNotFound: no entry for the key (ledger row, key id, subject mapping)
// - ErrConflict: the store refused to serialize a transaction
// - ErrUnavailable: the backing store could not be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
