// Package model defines shared data types used across solwatch.
//
// Conventions:
//   - Addresses: base58 account address strings, treated as opaque keys
//   - Slots: uint64 ledger slot numbers, higher is newer
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: uuid.UUID for observation rows
package model
