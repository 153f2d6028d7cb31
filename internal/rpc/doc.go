// Package rpc provides the JSON-RPC client for the ledger node.
//
// The client speaks the node's HTTP JSON-RPC interface and batches
// getMultipleAccounts requests: all sub-batches of a concurrency group are
// posted as a single JSON-RPC batch array, and responses are correlated back
// to their sub-batch by request id.
//
// Account data arrives base64-encoded and is decoded to raw bytes here;
// interpretation of the bytes is the caller's responsibility.
package rpc
