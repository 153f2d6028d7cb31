package subscriber

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jholt/solwatch/internal/registry"
	"github.com/jholt/solwatch/internal/rpc"
)

// InitialFetcher loads the current state of a newly subscribed account so
// the caller sees a baseline before the first push notification arrives.
type InitialFetcher interface {
	GetMultipleAccountsBatch(ctx context.Context, subBatches [][]string, commitment string) ([]rpc.BatchResult, error)
}

// Subscriber maintains a WebSocket connection and per-account subscriptions.
type Subscriber struct {
	cfg     Config
	logger  *slog.Logger
	initial InitialFetcher

	writeMu sync.Mutex

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup

	reqID     atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan wsMessage

	watchMu    sync.Mutex
	watches    map[string]*watch
	subToWatch map[int64]*watch
}

// watch tracks one subscribed address and its last delivered state.
type watch struct {
	address string
	cb      registry.Callback

	mu     sync.Mutex
	seen   bool
	slot   uint64
	buffer []byte
}

// dispatch applies the slot-monotonic change rule and invokes the callback.
func (w *watch) dispatch(data []byte, slot uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seen && slot <= w.slot {
		return false
	}
	if w.seen && (data == nil) == (w.buffer == nil) && bytes.Equal(data, w.buffer) {
		return false
	}

	w.cb(data, slot)
	w.seen = true
	w.slot = slot
	w.buffer = data
	return true
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithInitialFetcher makes SubscribeAccount load the account's current state
// once, right after the subscription is established.
func WithInitialFetcher(f InitialFetcher) Option {
	return func(s *Subscriber) {
		s.initial = f
	}
}

// New creates a new Subscriber.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Commitment == "" {
		cfg.Commitment = def.Commitment
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = def.SubscribeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = def.ReconnectMaxWait
	}

	s := &Subscriber{
		cfg:        cfg,
		logger:     logger,
		done:       make(chan struct{}),
		pending:    make(map[int64]chan wsMessage),
		watches:    make(map[string]*watch),
		subToWatch: make(map[int64]*watch),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect establishes the WebSocket connection and starts the read loop.
func (s *Subscriber) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.adopt(conn)

	s.logger.Debug("websocket connected", "url", s.cfg.URL)
	return nil
}

// Close shuts the connection down. After Close returns, no further callbacks
// fire. Closing a closed subscriber is a no-op.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	conn := s.conn
	s.mu.Unlock()

	close(s.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}

	s.wg.Wait()
	return nil
}

// IsConnected returns the current connection state.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SubscribeAccount subscribes to push notifications for the given address.
// Returns the server-assigned subscription id.
func (s *Subscriber) SubscribeAccount(ctx context.Context, address string, cb registry.Callback) (int64, error) {
	if address == "" {
		return 0, registry.ErrEmptyAddress
	}
	if cb == nil {
		return 0, registry.ErrNilCallback
	}

	w := &watch{address: address, cb: cb}

	s.watchMu.Lock()
	if _, exists := s.watches[address]; exists {
		s.watchMu.Unlock()
		return 0, fmt.Errorf("already subscribed to %s", address)
	}
	s.watches[address] = w
	s.watchMu.Unlock()

	subID, err := s.subscribe(ctx, w)
	if err != nil {
		s.watchMu.Lock()
		delete(s.watches, address)
		s.watchMu.Unlock()
		return 0, err
	}

	if s.initial != nil {
		s.loadInitial(ctx, w)
	}

	return subID, nil
}

// UnsubscribeAccount cancels the subscription for an address. Unsubscribing
// an unknown address is a no-op.
func (s *Subscriber) UnsubscribeAccount(ctx context.Context, address string) error {
	s.watchMu.Lock()
	w, ok := s.watches[address]
	var subID int64
	if ok {
		delete(s.watches, address)
		for id, cand := range s.subToWatch {
			if cand == w {
				subID = id
				delete(s.subToWatch, id)
				break
			}
		}
	}
	s.watchMu.Unlock()

	if !ok || subID == 0 {
		return nil
	}

	_, err := s.call(ctx, "accountUnsubscribe", []any{subID})
	return err
}

// subscribe issues accountSubscribe for a watch and records the mapping.
func (s *Subscriber) subscribe(ctx context.Context, w *watch) (int64, error) {
	result, err := s.call(ctx, "accountSubscribe", []any{
		w.address,
		map[string]string{
			"encoding":   "base64",
			"commitment": s.cfg.Commitment,
		},
	})
	if err != nil {
		return 0, err
	}

	var subID int64
	if err := json.Unmarshal(result, &subID); err != nil {
		return 0, fmt.Errorf("parse subscription id: %w", err)
	}

	s.watchMu.Lock()
	s.subToWatch[subID] = w
	s.watchMu.Unlock()

	return subID, nil
}

// loadInitial fetches the account's current state once and delivers it
// through the normal dispatch rule, so a faster push notification wins.
func (s *Subscriber) loadInitial(ctx context.Context, w *watch) {
	results, err := s.initial.GetMultipleAccountsBatch(ctx, [][]string{{w.address}}, s.cfg.Commitment)
	if err != nil || len(results) == 0 || results[0].Err != nil {
		s.logger.Warn("initial account load failed", "address", w.address, "err", err)
		return
	}

	res := results[0]
	var data []byte
	if len(res.Entries) > 0 {
		if res.Entries[0].Err != nil {
			return
		}
		if res.Entries[0].Account != nil {
			data = res.Entries[0].Account.Data
		}
	}
	w.dispatch(data, res.Slot)
}

// call sends a request and waits for its correlated response.
func (s *Subscriber) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	id := s.reqID.Add(1)
	ch := make(chan wsMessage, 1)

	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	req := wsRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := s.send(req); err != nil {
		return nil, err
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, fmt.Errorf("%w: %d %s", ErrSubscribeError, msg.Error.Code, msg.Error.Message)
		}
		return msg.Result, nil
	case <-time.After(s.cfg.SubscribeTimeout):
		return nil, fmt.Errorf("%s: timeout waiting for response", method)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrAlreadyClosed
	}
}

// send marshals and writes a request to the connection.
func (s *Subscriber) send(req wsRequest) error {
	s.mu.RLock()
	conn := s.conn
	connected := s.connected
	s.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// dial opens a new WebSocket connection.
func (s *Subscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return nil, err
	}

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error { return nil })

	return conn, nil
}

// adopt installs a connection and starts its goroutines.
func (s *Subscriber) adopt(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.readLoop(conn)
	go s.pingLoop(conn)
}

// readLoop reads messages until the connection drops, then hands off to the
// reconnect loop unless the subscriber was closed.
func (s *Subscriber) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			if s.conn == conn {
				s.connected = false
			}
			s.mu.Unlock()

			if closed {
				return
			}

			s.logger.Warn("websocket read failed", "err", err)
			s.wg.Add(1)
			go s.reconnectLoop()
			return
		}

		s.handleMessage(data)
	}
}

// pingLoop sends periodic pings on the given connection.
func (s *Subscriber) pingLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := conn.WriteControl(
				websocket.PingMessage,
				nil,
				time.Now().Add(s.cfg.WriteTimeout),
			)
			if err != nil {
				return
			}
		}
	}
}

// reconnectLoop redials with exponential backoff and resubscribes.
func (s *Subscriber) reconnectLoop() {
	defer s.wg.Done()

	wait := s.cfg.ReconnectBaseWait

	for {
		select {
		case <-s.done:
			return
		case <-time.After(wait):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := s.dial(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("reconnect failed", "err", err, "next_wait", wait)
			wait *= 2
			if wait > s.cfg.ReconnectMaxWait {
				wait = s.cfg.ReconnectMaxWait
			}
			continue
		}

		select {
		case <-s.done:
			conn.Close()
			return
		default:
		}

		s.adopt(conn)
		s.resubscribeAll()
		s.logger.Info("websocket reconnected", "url", s.cfg.URL)
		return
	}
}

// resubscribeAll re-issues accountSubscribe for every watch after a
// reconnect. Old subscription ids are discarded.
func (s *Subscriber) resubscribeAll() {
	s.watchMu.Lock()
	s.subToWatch = make(map[int64]*watch)
	watches := make([]*watch, 0, len(s.watches))
	for _, w := range s.watches {
		watches = append(watches, w)
	}
	s.watchMu.Unlock()

	for _, w := range watches {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SubscribeTimeout)
		_, err := s.subscribe(ctx, w)
		cancel()
		if err != nil {
			s.logger.Error("resubscribe failed", "address", w.address, "err", err)
		}
	}
}

// handleMessage routes one inbound message.
func (s *Subscriber) handleMessage(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("failed to parse message", "err", err)
		return
	}

	// Command response.
	if msg.ID != 0 {
		s.pendingMu.Lock()
		ch, ok := s.pending[msg.ID]
		s.pendingMu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
		}
		return
	}

	if msg.Method != "accountNotification" {
		return
	}

	var notif accountNotification
	if err := json.Unmarshal(msg.Params, &notif); err != nil {
		s.logger.Warn("failed to parse account notification", "err", err)
		return
	}

	s.watchMu.Lock()
	w, ok := s.subToWatch[notif.Subscription]
	s.watchMu.Unlock()
	if !ok {
		return
	}

	var buf []byte
	if v := notif.Result.Value; v != nil {
		if len(v.Data) < 1 {
			s.logger.Warn("notification missing data field", "address", w.address)
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(v.Data[0])
		if err != nil {
			s.logger.Warn("failed to decode notification data", "address", w.address, "err", err)
			return
		}
		buf = decoded
	}

	w.dispatch(buf, notif.Result.Context.Slot)
}
