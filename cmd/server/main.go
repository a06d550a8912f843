package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"crosspay.backend/internal/config"
	"crosspay.backend/internal/domain/repositories"
	"crosspay.backend/internal/infrastructure/blockchain"
	"crosspay.backend/internal/infrastructure/bridge"
	pgsource "crosspay.backend/internal/infrastructure/datasources/postgres"
	"crosspay.backend/internal/infrastructure/indexer"
	"crosspay.backend/internal/infrastructure/jobs"
	"crosspay.backend/internal/infrastructure/metrics"
	repoimpl "crosspay.backend/internal/infrastructure/repositories"
	"crosspay.backend/internal/interfaces/http/handlers"
	"crosspay.backend/internal/usecases"
	"crosspay.backend/pkg/logger"
	"crosspay.backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(cfg config.DatabaseConfig) (*gorm.DB, error) {
		sqlDB, err := pgsource.NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		return gorm.Open(postgres.New(postgres.Config{
			Conn:                 sqlDB,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	openSQLite = func(path string) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(path), &gorm.Config{})
	}
	runServer = func(srv *http.Server) error { return srv.ListenAndServe() }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	bootCtx := context.Background()
	logger.Info(bootCtx, "Logger initialized", zap.String("env", cfg.Server.Env))

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, closeStore, err := openStore(bootCtx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	// Infrastructure clients
	clientFactory := blockchain.NewClientFactory(cfg.Chains...)
	defer clientFactory.Close()
	readers := usecases.FactoryReaders(clientFactory)
	bridgeClient := bridge.NewClient(cfg.Bridge.APIURL, cfg.Bridge.IntegratorID, cfg.Bridge.Timeout)
	indexerClient := indexer.NewClient(cfg.Indexer.URL, cfg.Indexer.Timeout)

	// Usecases
	resolver := usecases.NewTokenResolver(readers, cfg.Chains, cfg.Wrapped, recorder, cfg.Planner.BalanceCacheTTL)
	planners := usecases.NewPlannerRegistry(usecases.PlannerDeps{
		Bridge:                 bridgeClient,
		Resolver:               resolver,
		Builder:                usecases.NewRouteBuilder(cfg.Wrapped),
		Fetcher:                usecases.NewQuoteFetcher(bridgeClient, cfg.Planner.MaxSwapQuoteOptions, cfg.Planner.QuoteConcurrency, recorder),
		Chains:                 cfg.Chains,
		Metrics:                recorder,
		ShowUnavailableOptions: cfg.Planner.ShowUnavailableOptions,
	})
	defer planners.Close()
	refiner := usecases.NewQuoteRefiner(bridgeClient, recorder)

	histories := usecases.NewHistoryRegistry(usecases.HistoryDeps{
		Storage: store,
		Tracker: bridgeClient,
		Indexer: indexerClient,
		Readers: readers,
		Tokens:  resolver,
		Metrics: recorder,
	}, usecases.HistoryOptions{
		PollInterval: cfg.History.PollInterval,
		RemoteLimit:  cfg.Indexer.RemoteLimit,
	})
	defer histories.Close()
	// payments are signed by the wallet, so the server only records them.
	// Handlers bind the recorder to the requesting account's history.
	executionRecorder := usecases.NewExecutionRecorder(nil, nil, bridgeClient, recorder)

	// Handlers
	planHandler := handlers.NewPlanHandler(planners, refiner, histories, executionRecorder, cfg.Planner.ShowUnavailableOptions)
	historyHandler := handlers.NewHistoryHandler(histories, executionRecorder)
	chainHandler := handlers.NewChainHandler(cfg.Chains, cfg.Wrapped, resolver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncJob := jobs.NewHistorySyncJob(histories, cfg.History.SyncInterval)
	go syncJob.Start(ctx)
	defer syncJob.Stop()

	r := newRouter(routeDeps{
		planHandler:    planHandler,
		historyHandler: historyHandler,
		chainHandler:   chainHandler,
		metrics:        reg,
		corsOrigins:    cfg.Server.CORSAllowedOrigins,
		idempotency:    cfg.Storage.Driver == "redis",
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		logger.Info(context.Background(), "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(context.Background(), "Server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info(bootCtx, "CrossPay backend starting",
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("routes", len(r.Routes())),
	)
	if err := runServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// openStore connects the payment-history backend selected by STORAGE_DRIVER.
// The returned store is nil for driver "none".
func openStore(ctx context.Context, cfg *config.Config) (repositories.KeyValueStore, func(), error) {
	noop := func() {}

	switch cfg.Storage.Driver {
	case "redis":
		if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
			logger.Error(ctx, "Failed to initialize Redis", zap.Error(err))
			return nil, noop, fmt.Errorf("failed to initialize redis: %w", err)
		}
		logger.Info(ctx, "Redis initialized")
		return repoimpl.NewRedisKeyValueRepository(), func() { _ = redis.Close() }, nil

	case "postgres":
		db, err := openDB(cfg.Database)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to database: %w", err)
		}
		return migratedStore(ctx, db, "postgres")

	case "sqlite":
		db, err := openSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open sqlite %s: %w", cfg.Storage.SQLitePath, err)
		}
		return migratedStore(ctx, db, "sqlite")

	case "memory":
		return repoimpl.NewMemoryKeyValueRepository(), noop, nil

	case "none", "":
		logger.Warn(ctx, "Payment history persistence disabled")
		return nil, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func migratedStore(ctx context.Context, db *gorm.DB, name string) (repositories.KeyValueStore, func(), error) {
	sqlDB, err := getStdDB(db)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to get generic database object: %w", err)
	}
	closeDB := func() { _ = sqlDB.Close() }

	if err := sqlDB.PingContext(ctx); err != nil {
		closeDB()
		return nil, func() {}, fmt.Errorf("%s not available: %w", name, err)
	}

	kv := repoimpl.NewKeyValueRepository(db)
	if err := kv.AutoMigrate(); err != nil {
		closeDB()
		return nil, func() {}, fmt.Errorf("failed to migrate %s: %w", name, err)
	}
	logger.Info(ctx, "Payment history storage ready", zap.String("driver", name))
	return kv, closeDB, nil
}
