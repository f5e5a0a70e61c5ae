package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kasir-be/internal/config"
	"kasir-be/internal/db"
	"kasir-be/internal/httpx"
	"kasir-be/internal/idempotency"
	"kasir-be/internal/inventory"
	"kasir-be/internal/kafka"
	"kasir-be/internal/logger"
	"kasir-be/internal/metrics"
	"kasir-be/internal/middleware"
	"kasir-be/internal/order"
	"kasir-be/internal/payment"
	"kasir-be/internal/payment/webhook"
	"kasir-be/internal/pricing"
	"kasir-be/internal/product"
	"kasir-be/internal/promotion"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const (
	serviceName     = "kasir-be"
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
	eventBuffer     = 1024
)

// seams for tests
var (
	initDBFunc      = db.InitDB
	startServerFunc = startServer
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, cleanup := newServer(ctx, cfg, database)
	defer cleanup()

	addr := ":" + cfg.AppPort
	logger.L().Info("http server listening", zap.String("addr", addr), zap.String("env", cfg.AppEnv))
	return startServerFunc(ctx, addr, handler)
}

// newServer wires every component and returns the root handler plus a
// function releasing background resources.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB) (http.Handler, func()) {
	log := logger.L()
	var closers []func()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, cfg.MetricsPrefix)

	var events order.EventPublisher = order.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, serviceName, eventBuffer)
		producer.Start(context.Background())
		events = producer
		closers = append(closers, producer.Close)
	} else {
		log.Info("KAFKA_BROKERS not set, order events are not published")
	}

	var idem idempotency.Store
	if cfg.RedisAddr != "" {
		rdb := idempotency.NewClient(cfg.RedisAddr)
		idem = idempotency.NewRedisStore(rdb)
		closers = append(closers, func() { _ = rdb.Close() })
	} else {
		log.Info("REDIS_ADDR not set, idempotency keys are ignored")
	}

	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, every authenticated route will reject")
	}

	gateway := payment.NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransBaseURL, cfg.GatewayTimeout)
	payRepo := payment.NewRepository(database)
	products := product.NewRepository(database)
	promos := promotion.NewRepository(database)

	orderSvc := order.NewService(order.Config{
		TaxRate:        cfg.TaxRate,
		CodePrefix:     cfg.OrderCodePrefix,
		GatewayTimeout: cfg.GatewayTimeout,
		Location:       time.Local,
	}, order.Deps{
		Tx:         db.NewTxRunner(database),
		Repo:       order.NewRepository(database),
		Inventory:  inventory.NewManager(products),
		Promotions: promos,
		Evaluator:  pricing.NewEvaluator(time.Now),
		Payments:   payRepo,
		Gateway:    gateway,
		Events:     events,
		Metrics:    m,
	})

	limiterCtx, cancelLimiter := context.WithCancel(ctx)
	limiter := middleware.NewRateLimiter("", m.RecordRateLimited)
	go limiter.Cleanup(limiterCtx)
	closers = append(closers, cancelLimiter)

	router := httpx.NewRouter(httpx.Deps{
		Orders:     orderSvc,
		Products:   products,
		Promotions: promos,
		Now:        time.Now,
		Idem:       idem,
		Webhook:    webhook.NewWebhookHandler(orderSvc, gateway, payRepo).PaymentWebhookHandler,
		Metrics:    m,
		Gatherer:   reg,
		Limiter:    limiter,
		JWTSecret:  []byte(cfg.JWTSecret),
		Location:   time.Local,
		Timeout:    requestTimeout,
	})

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return router, cleanup
}

// startServer serves until ctx is cancelled, then drains in-flight requests.
func startServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
