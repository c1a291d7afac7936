package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Monadic-DNA/Batcher-sub000/internal/api"
	"github.com/Monadic-DNA/Batcher-sub000/internal/app"
	"github.com/Monadic-DNA/Batcher-sub000/internal/config"
	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
	"github.com/Monadic-DNA/Batcher-sub000/internal/ledger"
	"github.com/Monadic-DNA/Batcher-sub000/internal/metrics"
	"github.com/Monadic-DNA/Batcher-sub000/internal/store"
	batchrabbit "github.com/Monadic-DNA/Batcher-sub000/pkg/rabbitmq"
	"github.com/Monadic-DNA/Batcher-sub000/pkg/tokenclient"
)

func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pgConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	pgConfig.MaxConns = 100
	pgConfig.MinConns = 20
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return dbpool, nil
}

func openToken(ctx context.Context, cfg config.Config, logger *slog.Logger) (ledger.Token, func(), error) {
	if cfg.TokenRPCURL != "" {
		client, err := tokenclient.Dial(ctx, tokenclient.Config{
			RPCURL:         cfg.TokenRPCURL,
			TokenAddress:   cfg.TokenAddress,
			ChainID:        cfg.TokenChainID,
			CustodyKey:     cfg.CustodyPrivateKey,
			ReceiptTimeout: cfg.TokenReceiptTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("token client connected", "token", cfg.TokenAddress, "custody", client.Custody().Hex())
		return client, client.Close, nil
	}

	custody := cfg.Operator
	if cfg.CustodyAddress != "" {
		custody = common.HexToAddress(cfg.CustodyAddress)
	}
	logger.Warn("TOKEN_RPC_URL not set, using in-memory token; balances are not persisted", "custody", custody.Hex())
	return tokenclient.NewMemoryToken(custody), func() {}, nil
}

func runServe(parent context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var repository store.Repository
	if cfg.DatabaseURL != "" {
		dbpool, err := openPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer dbpool.Close()
		logger.Info("database connection established")
		repository = store.NewPostgresRepository(dbpool)
	} else {
		logger.Warn("DATABASE_URL not set, ledger state is held in memory only")
		repository = store.NewMemoryRepository()
	}

	token, closeToken, err := openToken(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialise token client: %w", err)
	}
	defer closeToken()

	var publisher app.EventPublisher = &batchrabbit.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		if producer, err := batchrabbit.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}

	m := metrics.New()
	forwarder := app.NewEventForwarder(publisher, cfg.EventsExchange, m, logger)

	l, err := ledger.Open(ctx, ledger.Options{
		Repository: repository,
		Token:      token,
		Sink:       forwarder,
		Logger:     logger,
		Policy: domain.Policy{
			PaymentWindow:       cfg.PaymentWindow,
			PatienceWindow:      cfg.PatienceWindow,
			SlashPenaltyPercent: cfg.SlashPenaltyPercent,
		},
		Genesis: ledger.Genesis{
			DepositPrice:   cfg.DepositPrice,
			DefaultMaxSize: cfg.DefaultBatchSize,
			Admins:         cfg.Admins,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	m.SetFunds(l.Funds())

	service := app.NewService(l, m)
	jobs := app.NewJobs(l, cfg.Operator, m, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.SlashingSweepSchedule)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	handler := api.NewHandler(service, jobs, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:      cfg.AuthJWTSecret,
		JWTIssuer:      cfg.AuthJWTIssuer,
		InternalAPIKey: cfg.InternalAPIKey,
		Metrics:        m.Handler(),
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-sigCh:
		logger.Info("shutdown signal received, gracefully shutting down")
	case err := <-serverErr:
		logger.Error("server failed to start", "error", err)
		<-scheduler.Stop().Done()
		return err
	}

	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func runAudit(parent context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for the audit consumer")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the audit consumer")
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	consumer, err := batchrabbit.NewConsumer(cfg.RabbitMQURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer consumer.Close()

	audit := app.NewAuditConsumer(store.NewPostgresRepository(dbpool), logger)
	logger.Info("audit consumer started", "exchange", cfg.EventsExchange, "queue", cfg.AuditQueue)

	err = consumer.ConsumeWithBindings(ctx, cfg.EventsExchange, cfg.AuditQueue, map[string]batchrabbit.Handler{
		"#": audit.HandleEvent,
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("audit consumer stopped")
	return nil
}

func runMigrate(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required to run migrations")
	}

	dbpool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	applied, err := store.ApplyMigrations(ctx, dbpool)
	if err != nil {
		return err
	}
	logger.Info("migrations complete", "applied", applied)
	return nil
}
