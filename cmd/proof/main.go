package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/proofly/internal/proof/auth"
	"github.com/gartstein/proofly/internal/proof/config"
	"github.com/gartstein/proofly/internal/proof/controller"
	gorm "github.com/gartstein/proofly/internal/proof/db"
	"github.com/gartstein/proofly/internal/proof/events"
	"github.com/gartstein/proofly/internal/proof/handlers"
	"github.com/gartstein/proofly/internal/proof/idgen"
	"github.com/gartstein/proofly/internal/proof/ledger"
	"github.com/gartstein/proofly/internal/proof/membership"
	"github.com/gartstein/proofly/internal/proof/metrics"
	"github.com/gartstein/proofly/internal/proof/middleware"
	"github.com/gartstein/proofly/internal/proof/registry"
	"github.com/gartstein/proofly/internal/proof/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// eventSink is a producer the service can emit to and main can close.
type eventSink interface {
	Produce(event events.Event)
	Close()
}

func main() {
	logger := initLogger()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	cfgPath := os.Getenv("PROOF_CONFIG")
	if cfgPath == "" {
		cfgPath = config.DefaultPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err), zap.String("driver", cfg.StoreDriver))
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", zap.Error(err))
		}
	}()

	producer, err := initProducer(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize event producer", zap.Error(err))
	}
	defer producer.Close()

	if cfg.AuditGroupID != "" {
		consumer := events.NewConsumer(cfg.KafkaBrokers, cfg.AuditGroupID, cfg.Topic, logger)
		consumer.RegisterHandler(events.AuditHandler(logger))
		consumer.Start(ctx)
		defer func() {
			cancel()
			consumer.Close()
		}()
	}

	gen := idgen.NewGenerator(st, nil, cfg.CodeLength, logger)
	index := membership.NewIndex(st, logger)
	reg := registry.NewRegistry(st, gen, logger)
	ldg := ledger.NewLedger(st, gen, ledger.Config{
		ProofValidity:   cfg.ProofValidity,
		MaxMintAttempts: cfg.MaxMintAttempts,
	}, logger)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(promRegistry)

	proofSvc := controller.NewProofService(reg, index, ldg, producer, logger, controller.WithMetrics(recorder))
	proofHandler := handlers.NewProofHandler(proofSvc, logger)

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  middleware.PerMinute(cfg.VerifyRatePerMinute),
		Burst: cfg.VerifyBurst,
	}, logger)
	defer limiter.Stop()

	authInterceptor := auth.NewAuthInterceptor(cfg.JWTSecret)
	server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, logger, grpc.ChainUnaryInterceptor(
		authInterceptor.Unary(),
		limiter.UnaryInterceptor(auth.ServicePrefix+"VerifyProof"),
	))
	server.RegisterGRPCHandler(proofHandler)

	if err := server.RegisterHTTPGateway(proofHandler, handlers.HTTPOptions{
		JWTSecret:     cfg.JWTSecret,
		VerifyLimiter: limiter,
		Gatherer:      promRegistry,
		Ready: func(ctx context.Context) error {
			return st.View(ctx, func(store.Tx) error { return nil })
		},
	}); err != nil {
		logger.Fatal("Failed to register HTTP gateway", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	waitForShutdown(server, errCh, logger)
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, _ := zap.NewProduction()
	return logger
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn("Using in-memory store; state is lost on restart")
		return store.NewMemoryStore(), nil
	case config.StoreRedis:
		return store.OpenRedisStore(ctx, cfg.RedisURL)
	case config.StoreSQLite:
		return gorm.NewRepository(&gorm.Config{Driver: gorm.DriverSQLite, Path: cfg.SQLitePath})
	default:
		return connectPostgres(ctx, cfg, logger)
	}
}

// connectPostgres retries while the database is still coming up.
func connectPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	dbConf := &gorm.Config{
		Driver:   gorm.DriverPostgres,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	var repo *gorm.Repository
	connect := func() error {
		var err error
		repo, err = gorm.NewRepository(dbConf)
		return err
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = time.Minute

	err := backoff.RetryNotify(connect, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		logger.Warn("Database not ready, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// initProducer publishes to Kafka when brokers are configured and to the
// log otherwise.
func initProducer(cfg *config.Config, logger *zap.Logger) (eventSink, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("No Kafka brokers configured; domain events go to the log")
		return events.NewLogProducer(logger), nil
	}
	return events.NewProducer(cfg.KafkaBrokers, logger, cfg.Topic)
}

// waitForShutdown blocks until an interrupt, SIGTERM or a server failure,
// then shuts down servers.
func waitForShutdown(server *handlers.Server, errCh <-chan error, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	server.Stop()
	logger.Info("Servers stopped properly")
}
