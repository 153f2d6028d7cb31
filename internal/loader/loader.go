package loader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jholt/solwatch/internal/registry"
	"github.com/jholt/solwatch/internal/rpc"
)

// AccountFetcher issues batched multi-account reads against the ledger node.
type AccountFetcher interface {
	GetMultipleAccountsBatch(ctx context.Context, subBatches [][]string, commitment string) ([]rpc.BatchResult, error)
}

// Config holds Polling Loader configuration.
type Config struct {
	Interval       time.Duration // Poll interval (default: 1s)
	ChunkSize      int           // Max addresses per getMultipleAccounts request (default: 99)
	GroupSize      int           // Sub-batches posted together in one JSON-RPC batch (default: 10)
	Commitment     string        // Commitment level passed to the node (default: "confirmed")
	RequestTimeout time.Duration // Per-group request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       time.Second,
		ChunkSize:      99,
		GroupSize:      10,
		Commitment:     "confirmed",
		RequestTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.ChunkSize < 1 {
		c.ChunkSize = def.ChunkSize
	}
	if c.GroupSize < 1 {
		c.GroupSize = def.GroupSize
	}
	if c.Commitment == "" {
		c.Commitment = def.Commitment
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	return c
}

// Stats contains runtime counters for the loader.
type Stats struct {
	Cycles        int64 // Completed poll cycles
	Batches       int64 // Sub-batches issued
	FailedBatches int64 // Sub-batches that returned an error
	Notifications int64 // Callback invocations
	StaleSkips    int64 // Responses dropped because the slot did not advance
}

// bufferAndSlot is one version-cache entry. A nil buffer means the account
// did not exist at slot.
type bufferAndSlot struct {
	slot   uint64
	buffer []byte
}

// Loader polls watched accounts and dispatches callbacks on content changes.
type Loader struct {
	cfg     Config
	fetcher AccountFetcher
	logger  *slog.Logger

	registry *registry.Registry

	// cache is written only by the run goroutine.
	cache map[string]bufferAndSlot

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// New creates a new Loader. Zero config fields fall back to defaults.
func New(cfg Config, fetcher AccountFetcher, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		cfg:      cfg.withDefaults(),
		fetcher:  fetcher,
		logger:   logger,
		registry: registry.New(),
		cache:    make(map[string]bufferAndSlot),
	}
}

// RegisterAccount adds a callback for the given address. The first
// registration on an empty registry starts the polling loop.
func (l *Loader) RegisterAccount(address string, cb registry.Callback) (int, error) {
	id, wasEmpty, err := l.registry.Register(address, cb)
	if err != nil {
		return 0, err
	}
	if wasEmpty {
		l.Start()
	}
	return id, nil
}

// Registry exposes the underlying account registry.
func (l *Loader) Registry() *registry.Registry {
	return l.registry
}

// Start begins the polling loop. Starting a running loader is a no-op.
func (l *Loader) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.running = true

	l.wg.Add(1)
	go l.run(l.ctx)

	l.logger.Info("account loader started",
		"interval", l.cfg.Interval,
		"chunk_size", l.cfg.ChunkSize,
		"group_size", l.cfg.GroupSize,
		"commitment", l.cfg.Commitment,
	)
}

// Stop cancels the polling loop and waits for it to drain. After Stop
// returns, no further callbacks fire. Stopping a stopped loader is a no-op.
func (l *Loader) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("account loader stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (l *Loader) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// run is the main polling loop.
func (l *Loader) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	l.pollCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pollCycle(ctx)
		}
	}
}
