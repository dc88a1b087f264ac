package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dejobratic/nooks/internal/branches"
	claimsmemory "github.com/dejobratic/nooks/internal/claims/memory"
	claimspostgres "github.com/dejobratic/nooks/internal/claims/postgres"
	claimsredis "github.com/dejobratic/nooks/internal/claims/redis"
	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/config"
	"github.com/dejobratic/nooks/internal/database"
	"github.com/dejobratic/nooks/internal/delivery"
	"github.com/dejobratic/nooks/internal/kafka"
	"github.com/dejobratic/nooks/internal/loyalty"
	loyaltypostgres "github.com/dejobratic/nooks/internal/loyalty/postgres"
	"github.com/dejobratic/nooks/internal/orders/adapters"
	httpadapter "github.com/dejobratic/nooks/internal/orders/adapters/http"
	orderspostgres "github.com/dejobratic/nooks/internal/orders/adapters/postgres"
	ordersapp "github.com/dejobratic/nooks/internal/orders/app"
	ordersmetrics "github.com/dejobratic/nooks/internal/orders/metrics"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/dejobratic/nooks/internal/pos"
	"github.com/dejobratic/nooks/internal/promo"
	promopostgres "github.com/dejobratic/nooks/internal/promo/postgres"
	"github.com/dejobratic/nooks/internal/sideeffects"
	"github.com/dejobratic/nooks/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		slog.Error("failed to load env files", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, err := telemetry.ParseLevel(cfg.Telemetry.LogLevel)
	if err != nil {
		slog.Warn("falling back to info logging", "error", err)
	}
	logger := telemetry.NewLogger(level).With("service", cfg.Service.Name)
	slog.SetDefault(logger)

	// Clients render amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("api stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()
	logger.Info("telemetry initialized",
		"tracing", tel.TracingEnabled(),
		"metrics", tel.MetricsEnabled(),
	)

	meter := telemetry.Meter()
	clk := clock.Real()

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		version, err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations applied", "path", cfg.Database.MigrationsPath, "version", version)
	}

	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return err
	}
	if err := dbMetrics.ObservePool(pool); err != nil {
		return err
	}

	registry, err := branches.Load(cfg.Branches.Path)
	if err != nil {
		return fmt.Errorf("load branch registry: %w", err)
	}
	logger.Info("branch registry loaded", "path", cfg.Branches.Path, "branches", len(registry.All()))

	payments, err := payment.NewGateway(payment.Config{
		MoyasarSecretKey:     cfg.Payment.MoyasarSecretKey,
		MoyasarWebhookSecret: cfg.Payment.MoyasarWebhookSecret,
		MoyasarBaseURL:       cfg.Payment.MoyasarBaseURL,
		StripeSecretKey:      cfg.Payment.StripeSecretKey,
		StripeWebhookSecret:  cfg.Payment.StripeWebhookSecret,
		StripeBaseURL:        cfg.Payment.StripeBaseURL,
		RedirectEndpoint:     cfg.Payment.RedirectEndpoint,
		MinChargeMinor:       cfg.Payment.MinChargeMinor,
		Timeout:              cfg.Payment.Timeout,
	}, nil, clk)
	if err != nil {
		return fmt.Errorf("configure payment gateway: %w", err)
	}
	logger.Info("payment provider configured", "provider", payments.Provider())

	posClient := pos.NewClient(pos.Config{
		BaseURL:      cfg.POS.BaseURL,
		AccessToken:  cfg.POS.AccessToken,
		ClientID:     cfg.POS.ClientID,
		ClientSecret: cfg.POS.ClientSecret,
		Timeout:      cfg.POS.Timeout,
	}, nil, clk)
	if !posClient.Configured() {
		logger.Warn("POS integration not configured; orders will be placed in demo mode")
	}

	dispatch := delivery.NewClient(delivery.Config{
		BaseURL:            cfg.Delivery.BaseURL,
		RefreshToken:       cfg.Delivery.RefreshToken,
		PickupLocationCode: cfg.Delivery.PickupLocationCode,
		WebhookSecret:      cfg.Delivery.WebhookSecret,
		Timeout:            cfg.Delivery.Timeout,
	}, nil, clk)

	checkoutClaims, closeClaims, err := newClaims(cfg, pool)
	if err != nil {
		return err
	}
	defer closeClaims()

	events, closeEvents, err := newEventBus(cfg, logger, clk, meter)
	if err != nil {
		return err
	}
	defer closeEvents()

	sideEffectMetrics, err := sideeffects.NewMetrics(meter)
	if err != nil {
		return err
	}
	runner := sideeffects.NewRunner(sideeffects.Config{
		Workers:   cfg.Checkout.SideEffectWorkers,
		QueueSize: cfg.Checkout.SideEffectQueue,
		Timeout:   cfg.Checkout.SideEffectTimeout,
	}, logger, sideEffectMetrics)

	orderMetrics, err := ordersmetrics.NewMetrics(meter)
	if err != nil {
		return err
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return err
	}

	service := ordersapp.NewService(ordersapp.Dependencies{
		Repo:           adapters.NewObservableRepository(orderspostgres.NewRepository(pool, clk), dbMetrics),
		Sessions:       orderspostgres.NewPaymentSessions(pool, clk),
		Claims:         checkoutClaims,
		Branches:       registry,
		Payments:       payments,
		POS:            posClient,
		Delivery:       dispatch,
		Loyalty:        loyalty.NewService(loyaltypostgres.NewStore(pool)),
		Promotions:     promo.NewService(promopostgres.NewStore(pool), clk),
		Events:         events,
		Effects:        runner,
		Clock:          clk,
		CommissionRate: cfg.Commission.Rate,
		MinChargeMinor: cfg.Payment.MinChargeMinor,
	}, logger, orderMetrics)

	handler := httpadapter.NewHandler(service, logger, httpadapter.Options{
		DeepLinkSchemes:       cfg.HTTP.DeepLinkSchemes,
		DispatchWebhookSecret: cfg.Delivery.WebhookSecret,
		Ready:                 database.Readiness(pool),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpadapter.NewRouter(handler, httpMetrics, logger, cfg.HTTP.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("http server starting", "port", cfg.HTTP.Port)

	return serve(ctx, logger, srv, ln, runner, cfg.HTTP.ShutdownGrace)
}

// serve runs the HTTP server and the side-effect runner until ctx is done.
// The runner outlives the server so tasks submitted by in-flight requests
// during shutdown are still executed.
func serve(ctx context.Context, logger *slog.Logger, srv *http.Server, ln net.Listener, runner *sideeffects.Runner, grace time.Duration) error {
	runnerCtx, stopRunner := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRunner()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runner.Run(runnerCtx)
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer stopRunner()
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		logger.Info("http server stopped")
		return nil
	})

	return g.Wait()
}

func newClaims(cfg *config.Config, pool *pgxpool.Pool) (ports.CheckoutClaims, func(), error) {
	switch cfg.Checkout.ClaimBackend {
	case config.ClaimBackendMemory:
		return claimsmemory.NewStore(), func() {}, nil
	case config.ClaimBackendRedis:
		if cfg.Redis.Addr == "" {
			return nil, nil, errors.New("REDIS_ADDR is required for the redis claim backend")
		}
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return claimsredis.NewStore(rdb, cfg.Checkout.ClaimTTL), func() { _ = rdb.Close() }, nil
	default:
		return claimspostgres.NewStore(pool, cfg.Checkout.ClaimTTL), func() {}, nil
	}
}

func newEventBus(cfg *config.Config, logger *slog.Logger, clk clock.Clock, meter metric.Meter) (ports.EventBus, func(), error) {
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Kafka.Enabled() {
		logger.Info("kafka disabled; order events are logged only")
		return adapters.NewObservableEventBus(kafka.NewLoggingEventBus(logger), kafkaMetrics), func() {}, nil
	}

	bus := kafka.NewEventBus(kafka.NewWriter(cfg.Kafka.Brokers), kafka.Topics{
		Mirror:    cfg.Kafka.MirrorTopic,
		Cancelled: cfg.Kafka.CancelledTopic,
		Status:    cfg.Kafka.StatusTopic,
	}, cfg.Service.Name, clk)
	closeBus := func() {
		if err := bus.Close(); err != nil {
			logger.Warn("kafka writer close failed", "error", err)
		}
	}
	return adapters.NewObservableEventBus(bus, kafkaMetrics), closeBus, nil
}
