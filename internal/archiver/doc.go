// Package archiver persists observed account updates to PostgreSQL.
//
// Updates are accumulated into batches and flushed either when the
// batch reaches its size limit or on a periodic ticker. Inserts are
// append-only with ON CONFLICT DO NOTHING, so replays are harmless.
package archiver
