package model

import "github.com/google/uuid"

// AccountUpdate represents one observed change to a watched account.
type AccountUpdate struct {
	ID         uuid.UUID // Observation id, assigned locally
	Address    string    // Account address
	Slot       uint64    // Ledger slot the state was observed at
	Data       []byte    // Raw account data, nil if the account is absent
	ObservedAt int64     // Local observation time (µs since epoch)
	Source     string    // "poll" or "ws"
}

// Exists reports whether the account was present at the observed slot.
func (u AccountUpdate) Exists() bool {
	return u.Data != nil
}
