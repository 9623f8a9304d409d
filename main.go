package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paygate/internal/application/fulfillment"
	apppayment "paygate/internal/application/payment"
	"paygate/internal/config"
	"paygate/internal/domain/payment"
	"paygate/internal/infrastructure/eventbus"
	"paygate/internal/infrastructure/gateway/dummy"
	"paygate/internal/infrastructure/gateway/epay"
	"paygate/internal/infrastructure/id"
	"paygate/internal/infrastructure/memory"
	"paygate/internal/infrastructure/observability/oteltrace"
	"paygate/internal/infrastructure/observability/prometrics"
	"paygate/internal/infrastructure/observability/telemetry"
	"paygate/internal/infrastructure/observability/zaplogger"
	redisrepo "paygate/internal/infrastructure/redis"
	"paygate/internal/infrastructure/sqlite"
	"paygate/internal/observability"
	"paygate/internal/pkg/logging"
	httppresentation "paygate/internal/presentation/http"
	"paygate/internal/registry"
)

func main() {
	cfg := config.Load()

	zl := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)
	systemLogger := logging.WithTrace(zl, logging.SystemTraceID, logging.SystemSpanID)

	baseLogger := zaplogger.Wrap(zl)
	tel := newTelemetry(baseLogger)

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		systemLogger.Fatal("store_init_failed", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer closeStore()

	bus := eventbus.New(baseLogger)
	fulfillment.NewSubscriber(tel).Attach(bus)

	client := &http.Client{Timeout: 10 * time.Second}

	reg := registry.New()
	for key, settings := range cfg.Backends {
		proc, err := buildProcessor(key, settings, client, cfg.Production())
		if err != nil {
			systemLogger.Fatal("backend_init_failed", zap.String("backend", key), zap.Error(err))
		}
		if err := reg.Register(key, proc); err != nil {
			systemLogger.Fatal("backend_register_failed", zap.String("backend", key), zap.Error(err))
		}
	}
	if err := reg.Validate(); err != nil {
		systemLogger.Fatal("backend_validation_failed", zap.Error(err))
	}
	systemLogger.Info("backends_registered", zap.Strings("backends", reg.Keys()))

	orders := memory.NewOrderSource()
	idGenerator := id.NewUUIDGenerator()
	paymentService := apppayment.NewService(
		reg, store, orders, bus, idGenerator, client,
		cfg.Backends, cfg.BaseURL, tel,
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(httppresentation.Observability(baseLogger, tel))
	httppresentation.NewHandler(paymentService, baseLogger).Register(e)
	httppresentation.NewOrderHandler(orders, idGenerator).Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: e,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		systemLogger.Info("http_server_start", zap.String("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
}

func newTelemetry(logger observability.Logger) observability.Telemetry {
	metrics := prometrics.New("paygate", "")

	counters := map[string]observability.Counter{
		"http_requests_total": metrics.Counter(
			"http_requests_total", "Total HTTP requests.",
			"method", "route", "status",
		),
		"payments_dispatched_total": metrics.Counter(
			"payments_dispatched_total", "Payments dispatched to gateway paywalls.",
			"backend", "method", "outcome",
		),
		"payment_callbacks_total": metrics.Counter(
			"payment_callbacks_total", "Gateway callbacks processed.",
			"outcome",
		),
		"orders_fulfilled_total": metrics.Counter(
			"orders_fulfilled_total", "Orders fulfilled after full payment.",
		),
	}
	histograms := map[string]observability.Histogram{
		"http_request_duration_seconds": metrics.Histogram(
			"http_request_duration_seconds", "HTTP request latency in seconds.",
			prometheus.DefBuckets,
			"method", "route", "status",
		),
	}

	return telemetry.New(oteltrace.New("paygate"), logger, counters, histograms)
}

func buildProcessor(key string, settings payment.Settings, client *http.Client, production bool) (payment.Processor, error) {
	switch key {
	case dummy.Slug:
		return dummy.New(settings, client, production), nil
	case epay.Slug:
		return epay.New(settings, production), nil
	default:
		return nil, fmt.Errorf("no processor implementation for backend %q", key)
	}
}

func buildStore(cfg *config.Config) (payment.Repository, func(), error) {
	switch cfg.Store {
	case "memory":
		return memory.NewPaymentRepository(), func() {}, nil

	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.RunMigrations(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqlite.NewPaymentRepository(db), func() { _ = db.Close() }, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisURL})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return redisrepo.NewPaymentRepository(client), func() { _ = client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q (memory, sqlite and redis are supported)", cfg.Store)
	}
}
