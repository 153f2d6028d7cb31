package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jholt/solwatch/internal/archiver"
	"github.com/jholt/solwatch/internal/config"
	"github.com/jholt/solwatch/internal/database"
	"github.com/jholt/solwatch/internal/loader"
	"github.com/jholt/solwatch/internal/model"
	"github.com/jholt/solwatch/internal/rpc"
	"github.com/jholt/solwatch/internal/subscriber"
	"github.com/jholt/solwatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/watcher.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting watcher",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"rpc_endpoint", cfg.RPC.Endpoint,
		"accounts", len(cfg.Accounts),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database and start the archiver when persistence is on
	var pool *pgxpool.Pool
	var arch *archiver.Archiver
	if cfg.Archiver.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		logger.Info("database connected")

		arch = archiver.New(archiver.Config{
			BatchSize:     cfg.Archiver.BatchSize,
			FlushInterval: cfg.Archiver.FlushInterval,
		}, pool, logger)

		if err := arch.Start(ctx); err != nil {
			logger.Error("failed to start archiver", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			arch.Stop(shutdownCtx)
		}()
	}

	// Create RPC client
	rpcClient := rpc.NewClient(
		cfg.RPC.Endpoint,
		rpc.WithLogger(logger),
		rpc.WithTimeout(cfg.RPC.Timeout),
		rpc.WithRetries(cfg.RPC.MaxRetries, cfg.RPC.RetryBackoff),
	)

	// Create the polling loader
	ldr := loader.New(loader.Config{
		Interval:       cfg.Loader.Interval,
		ChunkSize:      cfg.Loader.ChunkSize,
		GroupSize:      cfg.Loader.GroupSize,
		Commitment:     cfg.Loader.Commitment,
		RequestTimeout: cfg.Loader.RequestTimeout,
	}, rpcClient, logger)

	// Register the configured accounts. The first registration starts the
	// polling loop.
	for _, addr := range cfg.Accounts {
		if _, err := ldr.RegisterAccount(addr, watchCallback(addr, "poll", arch, logger)); err != nil {
			logger.Error("failed to register account", "address", addr, "error", err)
			os.Exit(1)
		}
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		ldr.Stop(shutdownCtx)
	}()

	logger.Info("polling loader started",
		"interval", cfg.Loader.Interval,
		"chunk_size", cfg.Loader.ChunkSize,
		"group_size", cfg.Loader.GroupSize,
	)

	// Optional WebSocket push subscriptions
	var sub *subscriber.Subscriber
	if cfg.Subscriber.Enabled {
		sub = subscriber.New(subscriber.Config{
			URL:               cfg.Subscriber.URL,
			Commitment:        cfg.Loader.Commitment,
			SubscribeTimeout:  cfg.Subscriber.SubscribeTimeout,
			PingInterval:      cfg.Subscriber.PingInterval,
			ReconnectBaseWait: cfg.Subscriber.ReconnectBaseDelay,
			ReconnectMaxWait:  cfg.Subscriber.ReconnectMaxDelay,
		}, logger, subscriber.WithInitialFetcher(rpcClient))

		if err := sub.Connect(ctx); err != nil {
			logger.Error("failed to connect subscriber", "error", err)
			os.Exit(1)
		}
		defer sub.Close()

		for _, addr := range cfg.Accounts {
			subID, err := sub.SubscribeAccount(ctx, addr, watchCallback(addr, "ws", arch, logger))
			if err != nil {
				logger.Error("failed to subscribe account", "address", addr, "error", err)
				os.Exit(1)
			}
			logger.Debug("account subscribed", "address", addr, "subscription_id", subID)
		}

		logger.Info("subscriber connected", "url", cfg.Subscriber.URL)
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(pool, ldr, sub, logger),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("watcher running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("watcher stopped")
}

// watchCallback builds the callback invoked whenever a watched account's
// state changes. It logs the change and hands it to the archiver when one
// is configured.
func watchCallback(address, source string, arch *archiver.Archiver, logger *slog.Logger) func(data []byte, slot uint64) {
	return func(data []byte, slot uint64) {
		logger.Debug("account changed",
			"address", address,
			"slot", slot,
			"bytes", len(data),
			"source", source,
		)

		if arch != nil {
			arch.Record(model.AccountUpdate{
				ID:         uuid.New(),
				Address:    address,
				Slot:       slot,
				Data:       data,
				ObservedAt: time.Now().UnixMicro(),
				Source:     source,
			})
		}
	}
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pool *pgxpool.Pool, ldr *loader.Loader, sub *subscriber.Subscriber, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		// Check the polling loader
		stats := ldr.Stats()
		health.Components["loader"] = map[string]interface{}{
			"accounts":       ldr.Registry().Len(),
			"cycles":         stats.Cycles,
			"failed_batches": stats.FailedBatches,
		}
		if ldr.Registry().Len() == 0 {
			health.Status = "degraded"
		}

		// Check the subscriber
		if sub != nil {
			if sub.IsConnected() {
				health.Components["subscriber"] = "connected"
			} else {
				health.Components["subscriber"] = "reconnecting"
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
			}
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := ldr.Stats()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"cycles":         stats.Cycles,
			"batches":        stats.Batches,
			"failed_batches": stats.FailedBatches,
			"notifications":  stats.Notifications,
			"stale_skips":    stats.StaleSkips,
		})
	})

	return mux
}
