package subscriber

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected   = errors.New("not connected")
	ErrAlreadyClosed  = errors.New("already closed")
	ErrSubscribeError = errors.New("subscribe rejected")
)

// Config configures a Subscriber.
type Config struct {
	URL               string        // WebSocket URL of the ledger node
	Commitment        string        // Commitment level (default: "confirmed")
	SubscribeTimeout  time.Duration // Timeout waiting for a subscribe response
	WriteTimeout      time.Duration // Write deadline for sends
	PingInterval      time.Duration // Interval between client pings
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Commitment:        "confirmed",
		SubscribeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		PingInterval:      15 * time.Second,
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}

// wsRequest is a JSON-RPC request sent over the socket.
type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// wsMessage is the envelope of everything the node sends: either a response
// to one of our requests (ID set) or a notification (Method set).
type wsMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   *wsError        `json:"error"`
	Params  json.RawMessage `json:"params"`
}

// wsError is a JSON-RPC error object.
type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// accountNotification is the payload of an accountNotification message.
type accountNotification struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value *struct {
			Data []string `json:"data"` // [payload, encoding]
		} `json:"value"`
	} `json:"result"`
}
