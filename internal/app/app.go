// Package app wires the shopdesk processes together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shopdesk/internal/domain/auth"
	"github.com/xenking/shopdesk/internal/domain/finance"
	"github.com/xenking/shopdesk/internal/domain/inventory"
	"github.com/xenking/shopdesk/internal/domain/order"
	"github.com/xenking/shopdesk/internal/domain/shipping"
	"github.com/xenking/shopdesk/internal/handler"
	"github.com/xenking/shopdesk/internal/outbox"
	"github.com/xenking/shopdesk/internal/storage/postgres"
	"github.com/xenking/shopdesk/pkg/health"
	"github.com/xenking/shopdesk/pkg/httpmiddleware"
)

// openDatabase connects to PostgreSQL and applies the schema.
func openDatabase(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return pool, nil
}

func newHealth(ctx context.Context, pool *pgxpool.Pool) *health.Health {
	h := health.New()
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	h.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	h.Start(ctx, 10*time.Second)
	return h
}

// Run creates all dependencies, starts the API server, and handles graceful
// shutdown. It is the single wiring point of the api-server process.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	healthSvc := newHealth(ctx, pool)

	// Repositories.
	tx := postgres.NewTxManager(pool)
	products := postgres.NewProductRepository(pool)
	logs := postgres.NewInventoryLogRepository(pool)
	incomes := postgres.NewIncomeRepository(pool)
	logistics := postgres.NewLogisticsRepository(pool)
	events := postgres.NewOutboxRepository(pool, cfg.Kafka.Topic)

	// Domain services.
	stock := inventory.NewLedger(products, logs)
	fin := finance.NewLedger(incomes)
	ship := shipping.NewService(logistics)
	orders, err := order.NewService(order.Deps{
		Tx:         tx,
		Orders:     postgres.NewOrderRepository(pool),
		Items:      postgres.NewOrderItemRepository(pool),
		Products:   products,
		Stock:      stock,
		Finance:    fin,
		Shipping:   ship,
		AfterSales: postgres.NewAfterSalesRepository(pool),
		Reviews:    postgres.NewReviewRepository(pool),
		Events:     events,
	},
		order.WithMeterProvider(m.MeterProvider()),
		order.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(handler.Config{LowStockThreshold: cfg.LowStockThreshold}, handler.Deps{
		Tx:       tx,
		Orders:   orders,
		Products: products,
		Stock:    stock,
		Finance:  fin,
		Shipping: orders,
		Auth:     auth.NewVerifier(postgres.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper)),
	}).Register(mux)

	routes := httpmiddleware.MuxRoutes(mux)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type", handler.HeaderAPIKey, httpmiddleware.HeaderRequestID},
				MaxAge:       86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: handler.RateLimitKey,
			}),
			httpmiddleware.Instrument("shopdesk-api", routes, m),
			httpmiddleware.LogRequests(routes),
			httpmiddleware.Labeler(routes),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		defer healthSvc.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	healthSvc.SetReady(true)
	return g.Wait()
}

// RunRelay publishes committed order events from the outbox to Kafka until
// ctx is done. It is the single wiring point of the outbox-relay process.
func RunRelay(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	brokers := outbox.ParseBrokers(cfg.Kafka.Brokers)
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	lg.Info("Initializing relay",
		zap.Strings("brokers", brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.Duration("interval", cfg.Relay.Interval),
	)

	pool, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	healthSvc := newHealth(ctx, pool)
	defer healthSvc.Stop()

	publisher := outbox.NewKafkaPublisher(brokers)
	defer func() {
		if err := publisher.Close(); err != nil {
			lg.Warn("Close kafka writer", zap.Error(err))
		}
	}()

	relay := outbox.NewRelay(
		postgres.NewTxManager(pool),
		postgres.NewOutboxRepository(pool, cfg.Kafka.Topic),
		publisher,
		cfg.Relay.BatchSize,
		cfg.Relay.Interval,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(zctx.Base(gctx, lg))
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "probe server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	healthSvc.SetReady(true)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
