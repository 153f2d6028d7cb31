// Package registry implements the Account Registry component.
//
// The Account Registry:
//   - Tracks the set of accounts currently being watched
//   - Holds the registered callbacks per account, keyed by callback id
//   - Assigns process-local, strictly increasing callback ids
//   - Provides point-in-time snapshots for the polling loader
//
// Pure in-memory bookkeeping; no I/O.
package registry
