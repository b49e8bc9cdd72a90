package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/app"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/clock"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/config"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/gateway/httpclient"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/gateway/payment"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/gateway/quote"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/gateway/wallet"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/jobs/reaper"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/jobs/relay"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/logging"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/outbox"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/platform/kafka"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/platform/observability"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/storage/postgres"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/storage/sqlite"
	transporthttp "github.com/enricoviveri-cyber/onramp-deploy/internal/transport/http"
	"github.com/enricoviveri-cyber/onramp-deploy/migrations"
)

const (
	serviceName       = "onramp-api"
	defaultConfigPath = "config.yaml"
)

var version = "dev"

func main() {
	envPath, envErr := config.LoadDotEnv()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, closeLogs, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		ServiceName: serviceName,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = closeLogs() }()

	switch {
	case envErr != nil:
		logger.Warn("failed to load .env", zap.Error(envErr))
	case envPath == "":
		logger.Warn(".env not found in current or parent directories")
	default:
		logger.Info("loaded env", zap.String("path", envPath))
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
		_ = closeLogs()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(rootCtx, observability.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		URLPath:        cfg.Tracing.URLPath,
		AuthHeader:     cfg.Tracing.AuthHeader,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	startupCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
	defer cancel()

	store, err := openStorage(startupCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	clk := clock.NewSystem()

	seeds := make([]domain.Token, 0, len(cfg.Catalog.Tokens))
	for _, t := range cfg.Catalog.Tokens {
		seeds = append(seeds, t.Token())
	}
	if _, err := app.NewCatalogSeeder(store.seeds, clk, logger).Seed(startupCtx, seeds); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	ledger := app.NewInventoryLedger(store.tokens, clk, logger)
	reservations := app.NewReservationManager(ledger, store.holds, clk,
		app.WithHoldTTL(cfg.Reservations.HoldTTL),
		app.WithReapBatch(cfg.Reservations.ReapBatch),
		app.WithReservationLogger(logger),
	)
	idempotency := app.NewIdempotencyStore(store.keys, clk, logger,
		app.WithClaimLease(cfg.Idempotency.ClaimLease),
	)

	var wg sync.WaitGroup
	collab := buildCollaborators(cfg, clk, logger)

	if cfg.Events.OutboxDir != "" {
		events, err := outbox.Open(cfg.Events.OutboxDir)
		if err != nil {
			return fmt.Errorf("open outbox: %w", err)
		}
		defer func() {
			if err := events.Close(); err != nil {
				logger.Warn("outbox close", zap.Error(err))
			}
		}()
		collab.Events = events

		if len(cfg.Events.KafkaBrokers) > 0 {
			producer := kafka.NewProducer(cfg.Events.KafkaBrokers, cfg.Events.Topic)
			defer func() { _ = producer.Close() }()

			r := relay.New(events, producer, cfg.Events.RelayInterval, logger.Named("relay"))
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.Run(rootCtx)
			}()
			logger.Info("event relay started",
				zap.Strings("brokers", cfg.Events.KafkaBrokers),
				zap.String("topic", cfg.Events.Topic),
			)
		}
	}

	orchestrator := app.NewOrderOrchestrator(store.orders, reservations, idempotency, collab, clk,
		app.WithBankAccount(app.BankAccount{IBAN: cfg.Bank.IBAN, BIC: cfg.Bank.BIC}),
		app.WithOrchestratorLogger(logger),
	)

	sweeper := reaper.New(reservations, cfg.Reservations.ReapInterval, logger.Named("reaper"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(rootCtx)
	}()

	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: transporthttp.NewRouter(transporthttp.Services{
			Reservations: reservations,
			Orders:       orchestrator,
			Storage:      store.pinger,
		}, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api listening", zap.String("addr", server.Addr), zap.String("storage", cfg.Storage.Driver))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case <-rootCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	logger.Info("server stopped")
	return serveErr
}

// storage bundles the repositories of whichever driver is configured.
type storage struct {
	tokens app.TokenRepository
	seeds  app.TokenSeedRepository
	holds  app.HoldRepository
	orders app.OrderRepository
	keys   app.IdempotencyRepository
	pinger transporthttp.Pinger
	close  func()
}

func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return storage{}, fmt.Errorf("connect to db: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return storage{}, fmt.Errorf("db ping: %w", err)
		}
		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			pool.Close()
			return storage{}, fmt.Errorf("apply migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", zap.Strings("names", applied))
		}
		tokens := postgres.NewTokenRepository(pool)
		return storage{
			tokens: tokens,
			seeds:  tokens,
			holds:  postgres.NewHoldRepository(pool),
			orders: postgres.NewOrderRepository(pool),
			keys:   postgres.NewIdempotencyRepository(pool),
			pinger: tokens,
			close:  pool.Close,
		}, nil
	default:
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return storage{}, err
		}
		return storage{
			tokens: db,
			seeds:  db,
			holds:  db,
			orders: db,
			keys:   db,
			pinger: db,
			close: func() {
				if err := db.Close(); err != nil {
					logger.Warn("sqlite close", zap.Error(err))
				}
			},
		}, nil
	}
}

// buildCollaborators uses the HTTP gateways whose base URL is configured and
// local stand-ins for the rest.
func buildCollaborators(cfg config.Config, clk clock.Clock, logger *zap.Logger) app.Collaborators {
	client := func(baseURL string, opts ...httpclient.Option) *httpclient.Client {
		opts = append(opts,
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Gateways.Timeout}),
			httpclient.WithRetry(cfg.Gateways.Retries, time.Second),
			httpclient.WithLogger(logger),
		)
		return httpclient.New(baseURL, opts...)
	}

	var collab app.Collaborators
	if cfg.Gateways.PaymentsURL != "" {
		collab.Payment = payment.NewGateway(client(cfg.Gateways.PaymentsURL, httpclient.WithAPIKey(cfg.Gateways.PaymentsAPIKey)))
	} else {
		logger.Warn("payments url not set, using mock payment gateway")
		collab.Payment = payment.Mock{}
	}
	if cfg.Gateways.WalletURL != "" {
		collab.Wallet = wallet.NewClient(client(cfg.Gateways.WalletURL))
	} else {
		logger.Warn("wallet url not set, using mock wallet")
		collab.Wallet = wallet.Mock{}
	}
	if cfg.Gateways.QuotesURL != "" {
		collab.Quotes = quote.NewClient(client(cfg.Gateways.QuotesURL))
	} else {
		collab.Quotes = quote.NewStatic(cfg.Gateways.QuoteRate, clk)
	}
	return collab
}
