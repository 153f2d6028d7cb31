// Package loader implements the Polling Loader component.
//
// The Polling Loader:
//   - Owns the account registry and a per-address version cache
//   - Polls the ledger node on a fixed interval for all watched accounts
//   - Partitions addresses into sub-batches of at most ChunkSize and posts
//     each group of GroupSize sub-batches as one JSON-RPC batch call
//   - Dispatches registered callbacks only when an account's content changed
//     at a strictly newer slot
//
// The version cache is written only by the polling goroutine, so it needs no
// locking. The first registration starts the loop; Stop ends it.
package loader
