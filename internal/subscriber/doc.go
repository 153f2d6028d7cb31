// Package subscriber implements push-based account change notification.
//
// The Subscriber:
//   - Maintains one WebSocket connection to the ledger node
//   - Issues accountSubscribe per watched address
//   - Dispatches callbacks with the same change-detection rule as the
//     polling loader (strictly newer slot, different content)
//   - Reconnects with exponential backoff and resubscribes on failure
//
// It complements the polling loader: polling provides guaranteed eventual
// coverage, the subscriber provides low-latency push updates.
package subscriber
