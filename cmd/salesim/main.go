// Command salesim seeds a store and fires concurrent sales at the fulfillment
// service, then checks that the stock and cost ledgers still reconcile.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tavola/backend/internal/application/fulfillment"
	"github.com/tavola/backend/internal/infrastructure/cache"
	"github.com/tavola/backend/internal/infrastructure/config"
	"github.com/tavola/backend/internal/infrastructure/event"
	"github.com/tavola/backend/internal/infrastructure/lock"
	"github.com/tavola/backend/internal/infrastructure/logger"
	"github.com/tavola/backend/internal/infrastructure/persistence"
	"github.com/tavola/backend/internal/infrastructure/persistence/memstore"
	"github.com/tavola/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	backendMemory   = "memory"
	backendDatabase = "database"
)

var _ fulfillment.Metrics = (*telemetry.FulfillmentMetrics)(nil)

func main() {
	sim := DefaultSimulationConfig()
	var (
		backend     string
		journalPath string
		seed        int64
	)

	flag.StringVar(&backend, "backend", backendMemory, "Stock backend (memory, database)")
	flag.IntVar(&sim.StoreItems, "store-items", sim.StoreItems, "Number of store items to seed")
	flag.IntVar(&sim.MenuItems, "menu-items", sim.MenuItems, "Number of menu items with recipes")
	flag.IntVar(&sim.Sales, "sales", sim.Sales, "Number of sales to submit")
	flag.IntVar(&sim.Workers, "workers", sim.Workers, "Concurrent sale workers")
	flag.IntVar(&sim.MaxLines, "max-lines", sim.MaxLines, "Maximum lines per sale")
	flag.Float64Var(&sim.RatePerSec, "rate", 0, "Sales per second (0 = unpaced)")
	flag.Float64Var(&sim.VoidRatio, "void-ratio", sim.VoidRatio, "Share of fulfilled sales to void")
	flag.Int64Var(&seed, "seed", 0, "Data generator seed (0 = random)")
	flag.StringVar(&journalPath, "journal", "", "Append domain events to this file as JSON lines")
	flag.Parse()
	sim.Seed = uint64(seed)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	sim.RetryPolicy = fulfillment.RetryPolicy{
		MaxAttempts: cfg.Fulfillment.RetryAttempts,
		Delay:       cfg.Fulfillment.RetryDelay,
	}

	if err := run(cfg, sim, backend, journalPath); err != nil {
		fmt.Fprintf(os.Stderr, "salesim: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, sim SimulationConfig, backend, journalPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	providers, err := telemetry.Setup(ctx, cfg.Telemetry, bootLog)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			bootLog.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	log, err := logger.New(logCfg, providers.LogCore(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting sale simulator",
		zap.String("app", cfg.App.Name),
		zap.String("backend", backend),
		zap.Int("sales", sim.Sales),
		zap.Int("workers", sim.Workers),
		zap.String("recipe_cache", cfg.Fulfillment.RecipeCache),
		zap.String("sale_guard", cfg.Fulfillment.SaleGuard),
	)

	scope, repos, closeStore, err := openStore(cfg, backend, providers, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var redisClient *redis.Client
	if cfg.Fulfillment.RecipeCache == config.RecipeCacheRedis || cfg.Fulfillment.SaleGuard == "redis" {
		redisClient, err = cache.NewRedisClientFromConfig(cfg.Redis)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	factory := cache.NewRecipeCatalogFactory(cfg.Fulfillment, cache.WithLogger(log), cache.WithRedisClient(redisClient))
	catalog, cached, err := factory.Wrap(repos.Recipes)
	if err != nil {
		return fmt.Errorf("recipe catalog: %w", err)
	}
	if cached != nil {
		go func() {
			if err := cached.StartInvalidationSubscription(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("Recipe invalidation subscription ended", zap.Error(err))
			}
		}()
	}

	metrics, err := telemetry.NewFulfillmentMetricsFromProvider(providers.Meter)
	if err != nil {
		return fmt.Errorf("fulfillment metrics: %w", err)
	}

	svc := fulfillment.NewService(scope, catalog, log, fulfillment.Options{
		LockTimeout:          cfg.Fulfillment.LockTimeout,
		RejectUnknownRecipes: cfg.Fulfillment.RejectUnknownRecipes,
	})
	svc.SetMetrics(metrics)
	if cfg.Fulfillment.SaleGuard == "redis" {
		svc.SetSaleGuard(lock.NewRedisSaleGuard(redisClient,
			lock.WithTTL(cfg.Fulfillment.SaleGuardTTL),
			lock.WithLogger(log),
		))
	}

	eventBus := event.NewInMemoryEventBus(log)
	lowStockHandler := fulfillment.NewLowStockHandler(log).
		WithNotifier(fulfillment.NewLoggingStockAlertNotifier(log)).
		WithMetrics(metrics)
	eventBus.Subscribe(lowStockHandler)

	var journal *event.Journal
	if journalPath != "" {
		f, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer f.Close()
		journal = event.NewJournal(f, event.NewCostingEventSerializer())
		eventBus.Subscribe(journal)
	}

	if err := eventBus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()
	svc.SetEventPublisher(eventBus)

	simulator := NewSimulator(svc, repos, sim, log)
	if err := simulator.Seed(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	report, err := simulator.Run(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	log.Info("Simulation finished", report.Fields()...)

	stats := eventBus.Stats()
	log.Info("Event delivery",
		zap.Int64("published", stats.Published),
		zap.Int64("delivered", stats.Delivered),
		zap.Int64("failed", stats.Failed),
	)
	if cached != nil {
		hits, misses := cached.Stats()
		log.Info("Recipe cache", zap.Int64("hits", hits), zap.Int64("misses", misses))
	}
	if journal != nil {
		log.Info("Journal written", zap.String("path", journalPath), zap.Int("events", journal.Written()))
	}

	if err := simulator.Verify(ctx, report); err != nil {
		log.Error("Ledgers do not reconcile", zap.Error(err))
		return err
	}
	log.Info("Ledgers reconcile")
	return nil
}

// openStore returns the transaction scope and repositories of the chosen backend
func openStore(cfg *config.Config, backend string, providers *telemetry.Providers, log *zap.Logger) (fulfillment.TransactionScope, Repositories, func(), error) {
	switch backend {
	case backendMemory:
		store := memstore.New()
		return store, Repositories{
			StoreItems: store.StoreItems(),
			Recipes:    store.Recipes(),
			Sales:      store.Sales(),
			CostLogs:   store.CostLogs(),
		}, func() {}, nil

	case backendDatabase:
		db, err := persistence.NewDatabase(&cfg.Database, log)
		if err != nil {
			return nil, Repositories{}, nil, fmt.Errorf("connect database: %w", err)
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}
		if err := providers.DBTracing(cfg.Database.Driver, log).Register(db.DB); err != nil {
			closeDB()
			return nil, Repositories{}, nil, fmt.Errorf("register db tracing: %w", err)
		}
		if err := db.AutoMigrate(); err != nil {
			closeDB()
			return nil, Repositories{}, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("Database connected", zap.String("driver", cfg.Database.Driver))
		return persistence.NewGormTransactionScope(db.DB), Repositories{
			StoreItems: persistence.NewGormStoreItemRepository(db.DB),
			Recipes:    persistence.NewGormRecipeRepository(db.DB),
			Sales:      persistence.NewGormSaleRepository(db.DB),
			CostLogs:   persistence.NewGormSaleCostLogRepository(db.DB),
		}, closeDB, nil
	}
	return nil, Repositories{}, nil, fmt.Errorf("unknown backend %q", backend)
}
