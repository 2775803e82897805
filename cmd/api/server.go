package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/PxPatel/p2p-swap/config"
	"github.com/PxPatel/p2p-swap/internal/api"
	"github.com/PxPatel/p2p-swap/internal/api/handlers"
	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/api/middleware"
	"github.com/PxPatel/p2p-swap/internal/api/routes"
	"github.com/PxPatel/p2p-swap/internal/assets"
	"github.com/PxPatel/p2p-swap/internal/events"
	"github.com/PxPatel/p2p-swap/internal/metrics"
	"github.com/PxPatel/p2p-swap/internal/storage"
	"github.com/PxPatel/p2p-swap/internal/storage/postgres"
	"github.com/PxPatel/p2p-swap/internal/storage/redis"
	"github.com/PxPatel/p2p-swap/internal/storage/sqlite"
	"github.com/PxPatel/p2p-swap/internal/telemetry"
	"github.com/PxPatel/p2p-swap/internal/trading"
)

const version = "1.0.0"

func main() {
	app := &cli.App{
		Name:    "p2p-swap",
		Usage:   "peer-to-peer asset swap trade service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply the PostgreSQL schema and exit",
				Action: migrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and configures the default logger
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := logger.Configure(cfg.Logger.Level, cfg.Logger.Format); err != nil {
		return nil, errors.Wrap(err, "failed to configure logger")
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting P2P Swap API Server", map[string]interface{}{
		"version": version,
	})

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:        cfg.Telemetry.TracingEnabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", map[string]interface{}{"error": err.Error()})
		}
	}()

	store, err := buildStorageLayers(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close trade store", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	hub := events.NewHub(cfg.API.StreamBuffer)
	serviceOpts := []trading.Option{trading.WithPublisher(hub)}

	var collector *metrics.Collector
	var streams handlers.StreamObserver
	if cfg.Telemetry.MetricsEnabled {
		collector = metrics.NewCollector()
		streams = collector
		serviceOpts = append(serviceOpts, trading.WithPublisher(collector))
	}

	service := trading.NewService(store, serviceOpts...)

	assetsClient := assets.NewClient(assets.Config{
		BaseURL:           cfg.Assets.HeliusBaseURL,
		APIKey:            cfg.Assets.HeliusAPIKey,
		Timeout:           cfg.Assets.Timeout,
		CacheSize:         cfg.Assets.CacheSize,
		CacheTTL:          cfg.Assets.CacheTTL,
		RequestsPerSecond: cfg.Assets.RequestsPerSecond,
		Burst:             cfg.Assets.Burst,
	}, nil)
	if !assetsClient.Configured() {
		logger.Warn("HELIUS_API_KEY not set, NFT lookups will return 503", nil)
	}

	holder := handlers.NewTradeHolder(service, assetsClient, hub, streams)
	holder.Version = version

	var limiter *middleware.RateLimiter
	if cfg.API.RateLimitEnabled {
		limiter, err = middleware.NewRateLimiter(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst, cfg.API.RateLimitClients)
		if err != nil {
			return err
		}
		limiter.TrustProxy = cfg.API.TrustProxy
	}

	handler := routes.SetupRoutes(holder, routes.Options{
		Metrics:       collector,
		RateLimiter:   limiter,
		AllowedOrigin: cfg.API.AllowedOrigin,
	})

	server := api.NewServer(api.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		// Open streams end once the server stops accepting work
		<-gctx.Done()
		hub.Close()
		return nil
	})

	return g.Wait()
}

func migrate(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !cfg.Database.Enabled {
		return errors.New("DATABASE_ENABLED must be set to run migrations")
	}

	pool, err := postgres.NewPool(c.Context, postgresConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.RunMigrations(c.Context, pool); err != nil {
		return err
	}

	logger.Info("Migrations applied", map[string]interface{}{
		"host":     cfg.Database.Host,
		"database": cfg.Database.Name,
	})
	return nil
}

func postgresConfig(cfg *config.Config) postgres.Config {
	return postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		SSLMode:         cfg.Database.SSLMode,
	}
}

// buildStorageLayers constructs the storage layers based on configuration.
// Layers are ordered fastest first: memory, Redis, PostgreSQL or SQLite,
// then the write-only trade journal.
func buildStorageLayers(ctx context.Context, cfg *config.Config) (storage.TradeStore, error) {
	var stores []storage.TradeStore
	durable := false

	// L1: In-memory (fastest) - if enabled
	var memStore *storage.InMemoryTradeStore
	if cfg.Memory.Enabled {
		memStore = storage.NewInMemoryTradeStore()
		stores = append(stores, memStore)
		logger.Info("In-memory storage layer enabled", nil)
	}

	// L2: Redis (distributed cache) - if enabled
	if cfg.Redis.Enabled {
		redisStore, err := redis.NewTradeStore(ctx, redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxRetries:   cfg.Redis.MaxRetries,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			TLSEnabled:   cfg.Redis.TLSEnabled,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Warn("Failed to connect to Redis, continuing without distributed cache", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			logger.Info("Redis cache connected successfully", map[string]interface{}{
				"host": cfg.Redis.Host,
				"port": cfg.Redis.Port,
			})
			stores = append(stores, redisStore)
			durable = true
		}
	}

	// L3: PostgreSQL or SQLite (persistent storage)
	switch {
	case cfg.Database.Enabled:
		pgStore, err := postgres.NewTradeStore(ctx, postgresConfig(cfg))
		if err != nil {
			logger.Warn("Failed to connect to PostgreSQL, continuing without persistent storage", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			logger.Info("PostgreSQL connected successfully", map[string]interface{}{
				"host":     cfg.Database.Host,
				"database": cfg.Database.Name,
			})
			stores = append(stores, pgStore)
			durable = true
		}
	case cfg.SQLite.Enabled:
		sqliteStore, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			logger.Warn("Failed to open SQLite, continuing without persistent storage", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			logger.Info("SQLite storage enabled", map[string]interface{}{
				"path": cfg.SQLite.Path,
			})
			stores = append(stores, sqliteStore)
			durable = true
		}
	}

	if len(stores) == 0 {
		return nil, errors.New("no readable trade store available")
	}

	// Without a durable layer the journal is the only record; rebuild memory from it
	if cfg.Audit.Enabled && cfg.Audit.ReplayOnStart && memStore != nil && !durable {
		applied, err := storage.ReplayJournal(ctx, cfg.Audit.Path, memStore)
		if err != nil {
			logger.Warn("Failed to replay trade journal", map[string]interface{}{
				"path":  cfg.Audit.Path,
				"error": err.Error(),
			})
		} else if applied > 0 {
			logger.Info("Trade journal replayed", map[string]interface{}{
				"path":    cfg.Audit.Path,
				"entries": applied,
				"trades":  memStore.Len(),
			})
		}
	}

	// L4: File storage (audit log)
	if cfg.Audit.Enabled {
		fileStore, err := storage.NewFileTradeStore(cfg.Audit.Path)
		if err != nil {
			logger.Warn("Failed to open trade journal", map[string]interface{}{
				"path":  cfg.Audit.Path,
				"error": err.Error(),
			})
		} else {
			stores = append(stores, fileStore)
			logger.Info("Trade file log enabled", map[string]interface{}{
				"path": cfg.Audit.Path,
			})
		}
	}

	logger.Info("Storage layers initialized", map[string]interface{}{
		"trade_layers": len(stores),
	})

	if len(stores) == 1 {
		return stores[0], nil
	}
	return storage.NewCompositeTradeStore(stores...), nil
}
