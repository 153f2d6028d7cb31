// Package database provides PostgreSQL connection pool management.
//
// The watcher keeps a single pool used by the archiver for the
// account_updates table (append-only, insert with conflict skip).
package database
