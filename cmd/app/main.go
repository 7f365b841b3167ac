package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/freshcart/order-engine/internal/cache"
	"github.com/freshcart/order-engine/internal/config"
	"github.com/freshcart/order-engine/internal/httpapi"
	"github.com/freshcart/order-engine/internal/infrastructure/cart"
	"github.com/freshcart/order-engine/internal/infrastructure/kafka"
	"github.com/freshcart/order-engine/internal/infrastructure/postgres"
	"github.com/freshcart/order-engine/internal/notify"
	"github.com/freshcart/order-engine/internal/observability"
	"github.com/freshcart/order-engine/internal/orchestrator"
	"github.com/freshcart/order-engine/internal/pkg/breaker"
	"github.com/freshcart/order-engine/internal/pkg/resilience"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewProm(reg)

	// storage
	pool, err := postgres.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Fatal("postgres connect failed", zap.Error(err))
	}
	defer pool.Close()
	orders := postgres.NewOrderRepository(pool)
	inapp := postgres.NewNotificationRepository(pool)

	// resilience: one breaker per downstream target, one shared registry
	registry := breaker.NewRegistry(cfg.CartTarget.Breaker)
	registry.Configure(resilience.TargetCart, cfg.CartTarget.Breaker)
	registry.Configure(resilience.TargetPush, cfg.PushTarget.Breaker)
	registry.Configure(resilience.TargetEmail, cfg.EmailTarget.Breaker)
	registry.Configure(resilience.TargetInApp, cfg.InAppTarget.Breaker)
	rc := resilience.NewClient(registry, cfg.Retry, logger, metrics)

	// cart store + cache
	cartClient := cart.NewClient(cfg.Cart.BaseURL, rc, resilience.NewTarget(resilience.TargetCart, cfg.CartTarget), logger)
	carts, err := cache.New(cfg.CacheCap, cfg.CacheTTL, cartClient, logger, metrics)
	if err != nil {
		logger.Fatal("cache init failed", zap.Error(err))
	}

	// notification fan-out
	dispatcher := notify.NewDispatcher([]notify.Sender{
		notify.NewPushSender(cfg.Notify.PushURL, rc, resilience.NewTarget(resilience.TargetPush, cfg.PushTarget)),
		notify.NewEmailSender(cfg.Notify.EmailURL, cfg.Notify.EmailFrom, rc, resilience.NewTarget(resilience.TargetEmail, cfg.EmailTarget)),
		notify.NewInAppSender(inapp, rc, resilience.NewTarget(resilience.TargetInApp, cfg.InAppTarget)),
	}, notify.DefaultRoutes(), logger, metrics)

	// status events out to the delivery tracker
	writer := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.StatusTopic)
	defer writer.Close()
	producer := kafka.NewProducer(writer, cfg.Kafka.Workers, cfg.Retry, logger)
	defer producer.Close()

	orch := orchestrator.New(carts, cartClient, orders, dispatcher, producer,
		cfg.Notify.DispatchBudget, logger, metrics)

	// delivery tracker events in
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.DeliveryTopic,
		GroupID: cfg.Kafka.Group,
	})
	defer reader.Close()
	consumer := kafka.NewConsumer(
		kafka.NewStatusHandler(orch, cfg.Retry, logger),
		reader,
		logger,
	)
	go consumer.Start(ctx)

	server := httpapi.New(orch, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger, metrics)

	logger.Info("order engine listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
