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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/blocchat/chainledger/internal/admin"
	"github.com/blocchat/chainledger/internal/alert"
	"github.com/blocchat/chainledger/internal/auth"
	"github.com/blocchat/chainledger/internal/cache"
	"github.com/blocchat/chainledger/internal/chain"
	"github.com/blocchat/chainledger/internal/chain/evm"
	"github.com/blocchat/chainledger/internal/config"
	"github.com/blocchat/chainledger/internal/gate"
	"github.com/blocchat/chainledger/internal/ledger"
	"github.com/blocchat/chainledger/internal/profile"
	"github.com/blocchat/chainledger/internal/shop"
	"github.com/blocchat/chainledger/internal/store/postgres"
	redispkg "github.com/blocchat/chainledger/internal/store/redis"
	"github.com/blocchat/chainledger/internal/tracing"
)

// resolveGateCache picks the shared Redis cache when a Redis URL is
// configured and falls back to the in-process LRU otherwise.
func resolveGateCache(cfg *config.Config, logger *slog.Logger) (gate.DefinitionCache, func(), error) {
	if cfg.Redis.URL == "" {
		logger.Info("gate cache backend: in-memory", "size", cfg.Gate.CacheSize, "ttl", cfg.Gate.CacheTTL.String())
		return cache.NewGateCache(cfg.Gate.CacheSize, cfg.Gate.CacheTTL), func() {}, nil
	}

	client, err := redispkg.NewClient(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize redis gate cache: %w", err)
	}
	logger.Info("gate cache backend: redis", "ttl", cfg.Gate.CacheTTL.String())
	return redispkg.NewGateCache(client, cfg.Gate.CacheTTL), func() { client.Close() }, nil
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}

func main() {
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting chainledger",
		"chains", len(cfg.Chains.RPCURLs),
		"gate_chain_id", cfg.Gate.ChainID,
		"reconcile_interval", cfg.Reconcile.Interval.String(),
		"admin_addresses", len(cfg.Auth.AdminAddresses),
	)

	shutdownTracing, err := tracing.Init(context.Background(), tracing.Options{
		ServiceName: "chainledger",
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	if err := db.RunMigrations(cfg.DB.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	gateCache, closeCache, err := resolveGateCache(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize gate cache", "error", err, "redis_url", cfg.Redis.URL)
		os.Exit(1)
	}
	defer closeCache()

	readers := make([]chain.Reader, 0, len(cfg.Chains.RPCURLs))
	for chainID, rpcURL := range cfg.Chains.RPCURLs {
		readers = append(readers, evm.NewAdapter(evm.Config{
			ChainID:        chainID,
			RPCURL:         rpcURL,
			RequestsPerSec: cfg.Chains.RequestsPerSec,
			Burst:          cfg.Chains.Burst,
		}, logger))
		logger.Info("chain adapter registered", "chain_id", chainID)
	}
	registry := chain.NewRegistry(readers...)

	gateReader, err := registry.Reader(cfg.Gate.ChainID)
	if err != nil {
		logger.Error("gate chain not registered", "error", err)
		os.Exit(1)
	}

	alerter := buildAlerter(cfg, logger)

	ledgerSvc := ledger.NewService(
		postgres.NewTransactionRepo(db),
		registry,
		alerter,
		logger,
		ledger.WithWorkers(cfg.Reconcile.Workers),
		ledger.WithMaxRetries(uint64(cfg.Reconcile.MaxRetries)),
	)
	gateSvc := gate.NewEvaluator(postgres.NewGateRepo(db), gateReader, gateCache, logger)
	profileSvc := profile.NewService(postgres.NewProfileRepo(db), logger)
	shopSvc := shop.NewService(postgres.NewShopRepo(db), logger)
	authSvc := auth.NewService(cfg.Auth.AdminAddresses, logger)

	apiServer := admin.NewServer(ledgerSvc, gateSvc, profileSvc, shopSvc, authSvc, logger)
	rateLimiter := admin.NewRateLimitMiddleware(logger)
	defer rateLimiter.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, logger)
	})

	g.Go(func() error {
		return runAPIServer(gCtx, cfg.Server.APIPort, rateLimiter.Wrap(apiServer.Handler()), logger)
	})

	g.Go(func() error {
		err := ledgerSvc.RunPeriodic(gCtx, cfg.Reconcile.Interval)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := authSvc.RunCleanup(gCtx, cfg.Auth.CleanupInterval)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("chainledger exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("chainledger shut down gracefully")
}

func runAPIServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("api server shutdown error", "error", err)
		}
	}()

	logger.Info("api server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
